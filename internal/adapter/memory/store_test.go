package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neomorfeo/foodflow/internal/adapter/memory"
	"github.com/neomorfeo/foodflow/internal/domain"
	"github.com/neomorfeo/foodflow/internal/domain/storetest"
)

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.DonationStore {
		return memory.New()
	})
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	storetest.MustCreate(t, store, storetest.NewDonation(t, "d-1", storetest.Base.Add(2*time.Hour)))

	got, err := store.GetByID(ctx, "d-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	got.Status = domain.StatusDelivered

	again, _ := store.GetByID(ctx, "d-1")
	if again.Status != domain.StatusOpen {
		t.Errorf("Status = %q, want %q: caller mutation leaked into the store", again.Status, domain.StatusOpen)
	}
}

func TestStore_OffsetPastEnd(t *testing.T) {
	store := memory.New()
	storetest.MustCreate(t, store, storetest.NewDonation(t, "d-1", storetest.Base.Add(2*time.Hour)))

	got, err := store.List(context.Background(), domain.ListFilter{Offset: 5})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d donations, want 0", len(got))
	}
}

func TestStore_RejectsInconsistentDonation(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	bad := storetest.NewDonation(t, "d-1", storetest.Base.Add(2*time.Hour))
	bad.Status = domain.StatusClaimed
	err := store.Create(ctx, bad)

	var invErr *domain.InvariantError
	if !errors.As(err, &invErr) {
		t.Fatalf("Create error = %v, want *InvariantError", err)
	}
	if _, err := store.GetByID(ctx, "d-1"); !errors.Is(err, domain.ErrDonationNotFound) {
		t.Errorf("GetByID error = %v, want ErrDonationNotFound", err)
	}
}

func TestStore_SwapRejectsInconsistentResult(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	storetest.MustCreate(t, store, storetest.NewDonation(t, "d-1", storetest.Base.Add(2*time.Hour)))

	// Claimed without a nonprofit reference.
	_, err := store.CompareAndSwapStatus(ctx, "d-1", domain.StatusOpen, domain.StatusClaimed, domain.Changes{
		UpdatedAt: storetest.Base,
	})

	var invErr *domain.InvariantError
	if !errors.As(err, &invErr) {
		t.Fatalf("CompareAndSwapStatus error = %v, want *InvariantError", err)
	}
	got, _ := store.GetByID(ctx, "d-1")
	if got.Status != domain.StatusOpen {
		t.Errorf("Status = %q, want %q", got.Status, domain.StatusOpen)
	}
}

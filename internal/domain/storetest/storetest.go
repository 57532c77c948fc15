// Package storetest is a conformance suite for domain.DonationStore
// implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/neomorfeo/foodflow/internal/domain"
)

// Factory returns a fresh, empty store for one test.
type Factory func(t *testing.T) domain.DonationStore

// Base is the reference instant donations are created around.
var Base = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

// NewDonation builds a valid open donation whose window closes at safeUntil.
func NewDonation(t *testing.T, id string, safeUntil time.Time) domain.Donation {
	t.Helper()
	d, err := domain.NewDonation(id, domain.Draft{
		DonorID:  "donor-1",
		ItemName: "Apples",
		Quantity: "3 crates",
		Category: domain.CategoryProduce,
		Address:  "1 Orchard Rd",
		PickupWindow: domain.PickupWindow{
			Start: safeUntil.Add(-3 * time.Hour),
			End:   safeUntil.Add(-time.Hour),
		},
		SafeUntil: safeUntil,
	}, Base)
	if err != nil {
		t.Fatalf("building donation: %v", err)
	}
	return d
}

// MustCreate stores the donation or fails the test.
func MustCreate(t *testing.T, store domain.DonationStore, d domain.Donation) {
	t.Helper()
	if err := store.Create(context.Background(), d); err != nil {
		t.Fatalf("mustCreate failed: %v", err)
	}
}

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("GetNotFound", func(t *testing.T) { testGetNotFound(t, newStore(t)) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, newStore(t)) })
	t.Run("SwapClaim", func(t *testing.T) { testSwapClaim(t, newStore(t)) })
	t.Run("SwapWrongStatus", func(t *testing.T) { testSwapWrongStatus(t, newStore(t)) })
	t.Run("SwapNotFound", func(t *testing.T) { testSwapNotFound(t, newStore(t)) })
	t.Run("SwapPreconditions", func(t *testing.T) { testSwapPreconditions(t, newStore(t)) })
	t.Run("SwapLapseClaim", func(t *testing.T) { testSwapLapseClaim(t, newStore(t)) })
	t.Run("ConcurrentSwap", func(t *testing.T) { testConcurrentSwap(t, newStore(t)) })
	t.Run("ListFilters", func(t *testing.T) { testListFilters(t, newStore(t)) })
	t.Run("ListPagination", func(t *testing.T) { testListPagination(t, newStore(t)) })
}

func testCreateAndGet(t *testing.T, store domain.DonationStore) {
	ctx := context.Background()
	d := NewDonation(t, "d-1", Base.Add(2*time.Hour))
	d.Notes = "side door"
	MustCreate(t, store, d)

	got, err := store.GetByID(ctx, "d-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.ID != "d-1" {
		t.Errorf("ID = %q, want %q", got.ID, "d-1")
	}
	if got.Status != domain.StatusOpen {
		t.Errorf("Status = %q, want %q", got.Status, domain.StatusOpen)
	}
	if got.Notes != "side door" {
		t.Errorf("Notes = %q, want %q", got.Notes, "side door")
	}
	if got.Category != domain.CategoryProduce {
		t.Errorf("Category = %q, want %q", got.Category, domain.CategoryProduce)
	}
	if !got.SafeUntil.Equal(d.SafeUntil) {
		t.Errorf("SafeUntil = %v, want %v", got.SafeUntil, d.SafeUntil)
	}
	if !got.PickupWindow.End.Equal(d.PickupWindow.End) {
		t.Errorf("PickupWindow.End = %v, want %v", got.PickupWindow.End, d.PickupWindow.End)
	}
	if got.ClaimedByNonprofitID != "" || got.AssignedDriverID != "" {
		t.Error("new donation should have no claim or driver")
	}
}

func testGetNotFound(t *testing.T, store domain.DonationStore) {
	_, err := store.GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, domain.ErrDonationNotFound) {
		t.Errorf("expected ErrDonationNotFound, got %v", err)
	}
}

func testCreateDuplicate(t *testing.T, store domain.DonationStore) {
	d := NewDonation(t, "d-1", Base.Add(2*time.Hour))
	MustCreate(t, store, d)

	err := store.Create(context.Background(), d)
	var dup *domain.DuplicateDonationError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateDonationError, got %v", err)
	}
}

func testSwapClaim(t *testing.T, store domain.DonationStore) {
	ctx := context.Background()
	MustCreate(t, store, NewDonation(t, "d-1", Base.Add(2*time.Hour)))

	updatedAt := Base.Add(time.Minute)
	got, err := store.CompareAndSwapStatus(ctx, "d-1", domain.StatusOpen, domain.StatusClaimed, domain.Changes{
		ClaimedByNonprofitID: "np-a",
		UpdatedAt:            updatedAt,
		Require:              domain.Preconditions{SafeAt: Base},
	})
	if err != nil {
		t.Fatalf("CompareAndSwapStatus failed: %v", err)
	}
	if got.Status != domain.StatusClaimed {
		t.Errorf("Status = %q, want %q", got.Status, domain.StatusClaimed)
	}
	if got.ClaimedByNonprofitID != "np-a" {
		t.Errorf("ClaimedByNonprofitID = %q, want %q", got.ClaimedByNonprofitID, "np-a")
	}
	if !got.UpdatedAt.Equal(updatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, updatedAt)
	}

	stored, _ := store.GetByID(ctx, "d-1")
	if stored.Status != domain.StatusClaimed || stored.ClaimedByNonprofitID != "np-a" {
		t.Errorf("stored = %q/%q, want claimed/np-a", stored.Status, stored.ClaimedByNonprofitID)
	}
	if err := stored.CheckInvariants(); err != nil {
		t.Errorf("CheckInvariants: %v", err)
	}
}

func testSwapWrongStatus(t *testing.T, store domain.DonationStore) {
	ctx := context.Background()
	MustCreate(t, store, NewDonation(t, "d-1", Base.Add(2*time.Hour)))

	_, err := store.CompareAndSwapStatus(ctx, "d-1", domain.StatusClaimed, domain.StatusAssigned, domain.Changes{
		AssignedDriverID: "drv-x",
		UpdatedAt:        Base,
	})
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Actual != domain.StatusOpen {
		t.Errorf("Actual = %q, want %q", conflict.Actual, domain.StatusOpen)
	}

	stored, _ := store.GetByID(ctx, "d-1")
	if stored.Status != domain.StatusOpen || stored.AssignedDriverID != "" {
		t.Errorf("failed swap must not write: got %q/%q", stored.Status, stored.AssignedDriverID)
	}
}

func testSwapNotFound(t *testing.T, store domain.DonationStore) {
	_, err := store.CompareAndSwapStatus(context.Background(), "nonexistent", domain.StatusOpen, domain.StatusClaimed, domain.Changes{
		ClaimedByNonprofitID: "np-a",
		UpdatedAt:            Base,
	})
	if !errors.Is(err, domain.ErrDonationNotFound) {
		t.Errorf("expected ErrDonationNotFound, got %v", err)
	}
}

func testSwapPreconditions(t *testing.T, store domain.DonationStore) {
	ctx := context.Background()
	safeUntil := Base.Add(2 * time.Hour)
	MustCreate(t, store, NewDonation(t, "d-1", safeUntil))

	// Past the window: the claim must be refused inside the swap.
	_, err := store.CompareAndSwapStatus(ctx, "d-1", domain.StatusOpen, domain.StatusClaimed, domain.Changes{
		ClaimedByNonprofitID: "np-a",
		UpdatedAt:            Base,
		Require:              domain.Preconditions{SafeAt: safeUntil.Add(time.Second)},
	})
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError for expired claim, got %v", err)
	}

	if _, err := store.CompareAndSwapStatus(ctx, "d-1", domain.StatusOpen, domain.StatusClaimed, domain.Changes{
		ClaimedByNonprofitID: "np-a",
		UpdatedAt:            Base,
		Require:              domain.Preconditions{SafeAt: safeUntil},
	}); err != nil {
		t.Fatalf("claim at the boundary failed: %v", err)
	}

	// Wrong claimant.
	_, err = store.CompareAndSwapStatus(ctx, "d-1", domain.StatusClaimed, domain.StatusAssigned, domain.Changes{
		AssignedDriverID: "drv-x",
		UpdatedAt:        Base,
		Require:          domain.Preconditions{ClaimedByNonprofitID: "np-b"},
	})
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError for wrong claimant, got %v", err)
	}

	if _, err := store.CompareAndSwapStatus(ctx, "d-1", domain.StatusClaimed, domain.StatusAssigned, domain.Changes{
		AssignedDriverID: "drv-x",
		UpdatedAt:        Base,
		Require:          domain.Preconditions{ClaimedByNonprofitID: "np-a"},
	}); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	// Wrong driver.
	_, err = store.CompareAndSwapStatus(ctx, "d-1", domain.StatusAssigned, domain.StatusDelivered, domain.Changes{
		UpdatedAt: Base,
		Require:   domain.Preconditions{AssignedDriverID: "drv-y"},
	})
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError for wrong driver, got %v", err)
	}

	got, err := store.CompareAndSwapStatus(ctx, "d-1", domain.StatusAssigned, domain.StatusDelivered, domain.Changes{
		UpdatedAt: Base,
		Require:   domain.Preconditions{AssignedDriverID: "drv-x"},
	})
	if err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if got.Status != domain.StatusDelivered || got.ClaimedByNonprofitID != "np-a" || got.AssignedDriverID != "drv-x" {
		t.Errorf("delivered donation = %+v", got)
	}
	if err := got.CheckInvariants(); err != nil {
		t.Errorf("CheckInvariants: %v", err)
	}
}

func testSwapLapseClaim(t *testing.T, store domain.DonationStore) {
	ctx := context.Background()
	safeUntil := Base.Add(2 * time.Hour)
	MustCreate(t, store, NewDonation(t, "d-1", safeUntil))

	if _, err := store.CompareAndSwapStatus(ctx, "d-1", domain.StatusOpen, domain.StatusClaimed, domain.Changes{
		ClaimedByNonprofitID: "np-a",
		UpdatedAt:            Base,
	}); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	// Not yet expired.
	_, err := store.CompareAndSwapStatus(ctx, "d-1", domain.StatusClaimed, domain.StatusExpired, domain.Changes{
		LapseClaim: true,
		UpdatedAt:  Base,
		Require:    domain.Preconditions{ExpiredAt: safeUntil},
	})
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError before expiry, got %v", err)
	}

	got, err := store.CompareAndSwapStatus(ctx, "d-1", domain.StatusClaimed, domain.StatusExpired, domain.Changes{
		LapseClaim: true,
		UpdatedAt:  safeUntil.Add(time.Second),
		Require:    domain.Preconditions{ExpiredAt: safeUntil.Add(time.Second)},
	})
	if err != nil {
		t.Fatalf("expire failed: %v", err)
	}
	if got.ClaimedByNonprofitID != "" {
		t.Errorf("ClaimedByNonprofitID = %q, want empty", got.ClaimedByNonprofitID)
	}
	if got.LapsedClaimNonprofitID != "np-a" {
		t.Errorf("LapsedClaimNonprofitID = %q, want %q", got.LapsedClaimNonprofitID, "np-a")
	}
	if err := got.CheckInvariants(); err != nil {
		t.Errorf("CheckInvariants: %v", err)
	}
}

func testConcurrentSwap(t *testing.T, store domain.DonationStore) {
	ctx := context.Background()
	MustCreate(t, store, NewDonation(t, "d-1", Base.Add(2*time.Hour)))

	const contenders = 16
	var wg sync.WaitGroup
	results := make([]error, contenders)

	start := make(chan struct{})
	for i := range contenders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, results[i] = store.CompareAndSwapStatus(ctx, "d-1", domain.StatusOpen, domain.StatusClaimed, domain.Changes{
				ClaimedByNonprofitID: fmt.Sprintf("np-%d", i),
				UpdatedAt:            Base,
			})
		}()
	}
	close(start)
	wg.Wait()

	winner := ""
	for i, err := range results {
		var conflict *domain.ConflictError
		switch {
		case err == nil:
			if winner != "" {
				t.Fatalf("two winners: %s and np-%d", winner, i)
			}
			winner = fmt.Sprintf("np-%d", i)
		case errors.As(err, &conflict):
		default:
			t.Errorf("contender %d: unexpected error %v", i, err)
		}
	}
	if winner == "" {
		t.Fatal("no contender won")
	}

	stored, _ := store.GetByID(ctx, "d-1")
	if stored.ClaimedByNonprofitID != winner {
		t.Errorf("ClaimedByNonprofitID = %q, want winner %q", stored.ClaimedByNonprofitID, winner)
	}
}

func testListFilters(t *testing.T, store domain.DonationStore) {
	ctx := context.Background()

	fresh := NewDonation(t, "fresh", Base.Add(2*time.Hour))
	stale := NewDonation(t, "stale", Base.Add(-time.Second))
	other := NewDonation(t, "other-donor", Base.Add(2*time.Hour))
	other.DonorID = "donor-2"
	for _, d := range []domain.Donation{fresh, stale, other} {
		MustCreate(t, store, d)
	}
	if _, err := store.CompareAndSwapStatus(ctx, "other-donor", domain.StatusOpen, domain.StatusClaimed, domain.Changes{
		ClaimedByNonprofitID: "np-a",
		UpdatedAt:            Base,
	}); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	cases := []struct {
		name   string
		filter domain.ListFilter
		want   []string
	}{
		{"open and safe", domain.ListFilter{Statuses: []domain.Status{domain.StatusOpen}, SafeAt: Base}, []string{"fresh"}},
		{"due for expiry", domain.ListFilter{Statuses: []domain.Status{domain.StatusOpen, domain.StatusClaimed}, ExpiredAt: Base}, []string{"stale"}},
		{"by donor", domain.ListFilter{DonorID: "donor-2"}, []string{"other-donor"}},
		{"by claimant", domain.ListFilter{ClaimedByNonprofitID: "np-a"}, []string{"other-donor"}},
		{"by driver", domain.ListFilter{AssignedDriverID: "drv-x"}, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := store.List(ctx, tc.filter)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %d donations, want %d", len(got), len(tc.want))
			}
			for i, id := range tc.want {
				if got[i].ID != id {
					t.Errorf("got[%d].ID = %q, want %q", i, got[i].ID, id)
				}
			}
		})
	}
}

func testListPagination(t *testing.T, store domain.DonationStore) {
	ctx := context.Background()

	for i := range 5 {
		d := NewDonation(t, fmt.Sprintf("d-%d", i), Base.Add(2*time.Hour))
		d.CreatedAt = Base.Add(time.Duration(i) * time.Minute)
		d.UpdatedAt = d.CreatedAt
		MustCreate(t, store, d)
	}

	got, err := store.List(ctx, domain.ListFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d donations, want 2", len(got))
	}
	// Newest first: d-4, d-3, d-2, ...
	if got[0].ID != "d-3" || got[1].ID != "d-2" {
		t.Errorf("page = [%s %s], want [d-3 d-2]", got[0].ID, got[1].ID)
	}

	rest, err := store.List(ctx, domain.ListFilter{Offset: 3})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rest) != 2 {
		t.Errorf("got %d donations after offset 3, want 2", len(rest))
	}
}

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/neomorfeo/foodflow/internal/domain"
)

// FeedProjector serves read-side listings. It applies the same expiry
// policy as the engine so nothing shows as claimable once it has lapsed.
type FeedProjector struct {
	store domain.DonationStore
	now   domain.Clock
}

// NewFeedProjector creates a projector over the given store.
func NewFeedProjector(store domain.DonationStore, clock domain.Clock) *FeedProjector {
	if clock == nil {
		clock = time.Now
	}
	return &FeedProjector{store: store, now: clock}
}

// Page bounds a listing.
type Page struct {
	Limit  int
	Offset int
}

// ListOpen returns donations a nonprofit could claim at now.
func (p *FeedProjector) ListOpen(ctx context.Context, now time.Time, page Page) ([]domain.Donation, error) {
	now = now.UTC()
	donations, err := p.store.List(ctx, domain.ListFilter{
		Statuses: []domain.Status{domain.StatusOpen},
		SafeAt:   now,
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing open donations: %w", err)
	}

	// The store filters on the same bound; this keeps the projection honest
	// for stores that cannot push it down.
	out := donations[:0]
	for _, d := range donations {
		if d.Claimable(now) {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListAvailable is ListOpen evaluated at the projector's clock.
func (p *FeedProjector) ListAvailable(ctx context.Context, page Page) ([]domain.Donation, error) {
	return p.ListOpen(ctx, p.now(), page)
}

// ListClaimedBy returns every donation the nonprofit currently holds a claim on.
func (p *FeedProjector) ListClaimedBy(ctx context.Context, nonprofitID string, page Page) ([]domain.Donation, error) {
	donations, err := p.store.List(ctx, domain.ListFilter{
		ClaimedByNonprofitID: nonprofitID,
		Limit:                page.Limit,
		Offset:               page.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing donations claimed by %q: %w", nonprofitID, err)
	}
	return donations, nil
}

// ListAssignedTo returns every donation assigned to the driver.
func (p *FeedProjector) ListAssignedTo(ctx context.Context, driverID string, page Page) ([]domain.Donation, error) {
	donations, err := p.store.List(ctx, domain.ListFilter{
		AssignedDriverID: driverID,
		Limit:            page.Limit,
		Offset:           page.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing donations assigned to %q: %w", driverID, err)
	}
	return donations, nil
}

// ListByDonor returns the donor's own postings, newest first.
func (p *FeedProjector) ListByDonor(ctx context.Context, donorID string, page Page) ([]domain.Donation, error) {
	donations, err := p.store.List(ctx, domain.ListFilter{
		DonorID: donorID,
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing donations by donor %q: %w", donorID, err)
	}
	return donations, nil
}

// Now exposes the projector clock so callers can render effective statuses
// at the same instant the listing was filtered.
func (p *FeedProjector) Now() time.Time {
	return p.now().UTC()
}

package domain

import (
	"context"
	"time"
)

// DonationStore defines the persistence contract for donations.
// CompareAndSwapStatus is the only mutation path for an existing donation.
type DonationStore interface {
	Create(ctx context.Context, donation Donation) error
	GetByID(ctx context.Context, id string) (Donation, error)
	List(ctx context.Context, filter ListFilter) ([]Donation, error)
	// CompareAndSwapStatus moves the donation from expected to next and applies
	// changes in one indivisible step. It returns the updated donation, or a
	// *ConflictError when the stored row no longer satisfies expected or any
	// precondition.
	CompareAndSwapStatus(ctx context.Context, id string, expected, next Status, changes Changes) (Donation, error)
}

// Changes are the field updates and extra preconditions attached to a swap.
// Empty strings and zero times are left untouched or unchecked.
type Changes struct {
	ClaimedByNonprofitID string
	AssignedDriverID     string
	// LapseClaim moves an existing claim to LapsedClaimNonprofitID.
	LapseClaim bool
	UpdatedAt  time.Time
	Require    Preconditions
}

// Apply returns d with the status and field updates applied.
func (c Changes) Apply(d Donation, next Status) Donation {
	d.Status = next
	if c.ClaimedByNonprofitID != "" {
		d.ClaimedByNonprofitID = c.ClaimedByNonprofitID
	}
	if c.AssignedDriverID != "" {
		d.AssignedDriverID = c.AssignedDriverID
	}
	if c.LapseClaim && d.ClaimedByNonprofitID != "" {
		d.LapsedClaimNonprofitID = d.ClaimedByNonprofitID
		d.ClaimedByNonprofitID = ""
	}
	d.UpdatedAt = c.UpdatedAt.UTC()
	return d
}

// Preconditions are checked inside the same atomic unit as the status.
type Preconditions struct {
	ClaimedByNonprofitID string
	AssignedDriverID     string
	// SafeAt requires safe_until >= SafeAt (not expired at that instant).
	SafeAt time.Time
	// ExpiredAt requires safe_until < ExpiredAt.
	ExpiredAt time.Time
}

// Holds reports whether d satisfies the preconditions.
func (p Preconditions) Holds(d Donation) bool {
	if p.ClaimedByNonprofitID != "" && d.ClaimedByNonprofitID != p.ClaimedByNonprofitID {
		return false
	}
	if p.AssignedDriverID != "" && d.AssignedDriverID != p.AssignedDriverID {
		return false
	}
	if !p.SafeAt.IsZero() && IsExpired(d, p.SafeAt) {
		return false
	}
	if !p.ExpiredAt.IsZero() && !IsExpired(d, p.ExpiredAt) {
		return false
	}
	return true
}

// ListFilter holds optional criteria for listing donations.
type ListFilter struct {
	Statuses             []Status
	DonorID              string
	ClaimedByNonprofitID string
	AssignedDriverID     string
	// SafeAt keeps donations with safe_until >= SafeAt.
	SafeAt time.Time
	// ExpiredAt keeps donations with safe_until < ExpiredAt.
	ExpiredAt time.Time
	Limit     int
	Offset    int
}

// Matches reports whether d passes every criterion except pagination.
func (f ListFilter) Matches(d Donation) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, d.Status) {
		return false
	}
	if f.DonorID != "" && d.DonorID != f.DonorID {
		return false
	}
	if f.ClaimedByNonprofitID != "" && d.ClaimedByNonprofitID != f.ClaimedByNonprofitID {
		return false
	}
	if f.AssignedDriverID != "" && d.AssignedDriverID != f.AssignedDriverID {
		return false
	}
	if !f.SafeAt.IsZero() && IsExpired(d, f.SafeAt) {
		return false
	}
	if !f.ExpiredAt.IsZero() && !IsExpired(d, f.ExpiredAt) {
		return false
	}
	return true
}

func containsStatus(statuses []Status, s Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// EventPublisher defines the contract for emitting domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event, donation Donation) error
}

// TransitionValidator resolves the destination of an event from a status.
type TransitionValidator interface {
	Apply(ctx context.Context, current Status, event Event) (Status, error)
}

// ActorResolver maps caller credentials to a role-tagged identity.
// Authentication itself happens elsewhere; the engine trusts the result.
type ActorResolver interface {
	Resolve(ctx context.Context, credentials string) (Actor, error)
}

// Clock supplies the current time.
type Clock func() time.Time

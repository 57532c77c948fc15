package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neomorfeo/foodflow/internal/domain"
)

// LifecycleEngine applies donation transitions. Every transition is one
// compare-and-swap against the store; guards are re-checked inside it.
type LifecycleEngine struct {
	store     domain.DonationStore
	validator domain.TransitionValidator
	publisher domain.EventPublisher
	now       domain.Clock
	logger    *slog.Logger
}

// Option configures a LifecycleEngine.
type Option func(*LifecycleEngine)

// WithClock overrides the time source.
func WithClock(clock domain.Clock) Option {
	return func(e *LifecycleEngine) { e.now = clock }
}

// WithLogger overrides the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *LifecycleEngine) { e.logger = logger }
}

// NewLifecycleEngine creates an engine with the given adapters.
func NewLifecycleEngine(store domain.DonationStore, validator domain.TransitionValidator, publisher domain.EventPublisher, opts ...Option) *LifecycleEngine {
	e := &LifecycleEngine{
		store:     store,
		validator: validator,
		publisher: publisher,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateDonation posts a new open donation on behalf of a donor. Admins may
// post for any donor id; donors only for themselves.
func (e *LifecycleEngine) CreateDonation(ctx context.Context, actor domain.Actor, draft domain.Draft) (domain.Donation, error) {
	switch actor.Role {
	case domain.RoleDonor:
		draft.DonorID = actor.ID
	case domain.RoleAdmin:
		if strings.TrimSpace(draft.DonorID) == "" {
			draft.DonorID = actor.ID
		}
	default:
		return domain.Donation{}, e.rejectActor(ctx, domain.EventCreated, actor, "")
	}

	id, err := generateID()
	if err != nil {
		return domain.Donation{}, fmt.Errorf("generating donation id: %w", err)
	}

	donation, err := domain.NewDonation(id, draft, e.now())
	if err != nil {
		return domain.Donation{}, err
	}

	if err := e.store.Create(ctx, donation); err != nil {
		return domain.Donation{}, fmt.Errorf("creating donation: %w", err)
	}

	e.publish(ctx, domain.EventCreated, donation)
	return donation, nil
}

// GetDonation returns a donation by its unique identifier.
func (e *LifecycleEngine) GetDonation(ctx context.Context, id string) (domain.Donation, error) {
	return e.store.GetByID(ctx, id)
}

// Claim reserves an open donation for the calling nonprofit. Losing a race
// yields *domain.ConflictError.
func (e *LifecycleEngine) Claim(ctx context.Context, id string, actor domain.Actor) (domain.Donation, error) {
	return e.transition(ctx, id, actor, domain.EventClaim, func(now time.Time, _ domain.Donation) domain.Changes {
		return domain.Changes{
			ClaimedByNonprofitID: actor.ID,
			Require:              domain.Preconditions{SafeAt: now},
		}
	})
}

// AssignDriver binds a driver to a claimed donation. The caller must hold the
// claim or be an admin.
func (e *LifecycleEngine) AssignDriver(ctx context.Context, id, driverID string, actor domain.Actor) (domain.Donation, error) {
	driverID = strings.TrimSpace(driverID)
	if driverID == "" {
		return domain.Donation{}, &domain.ValidationError{Fields: []string{"driver_id"}, Reason: "required"}
	}
	return e.transition(ctx, id, actor, domain.EventAssignDriver, func(now time.Time, d domain.Donation) domain.Changes {
		return domain.Changes{
			AssignedDriverID: driverID,
			Require: domain.Preconditions{
				ClaimedByNonprofitID: d.ClaimedByNonprofitID,
				SafeAt:               now,
			},
		}
	})
}

// CompleteDelivery marks the caller's own assignment as delivered.
func (e *LifecycleEngine) CompleteDelivery(ctx context.Context, id string, actor domain.Actor) (domain.Donation, error) {
	return e.transition(ctx, id, actor, domain.EventCompleteDelivery, func(_ time.Time, _ domain.Donation) domain.Changes {
		return domain.Changes{
			Require: domain.Preconditions{AssignedDriverID: actor.ID},
		}
	})
}

// Expire moves an open or claimed donation past its safety window to expired.
func (e *LifecycleEngine) Expire(ctx context.Context, id string, actor domain.Actor) (domain.Donation, error) {
	return e.transition(ctx, id, actor, domain.EventExpire, func(now time.Time, _ domain.Donation) domain.Changes {
		return domain.Changes{
			LapseClaim: true,
			Require:    domain.Preconditions{ExpiredAt: now},
		}
	})
}

// ExpireDue expires every open or claimed donation whose window has passed
// and returns how many were moved. Donations advanced concurrently are skipped.
func (e *LifecycleEngine) ExpireDue(ctx context.Context) (int, error) {
	due, err := e.store.List(ctx, domain.ListFilter{
		Statuses:  []domain.Status{domain.StatusOpen, domain.StatusClaimed},
		ExpiredAt: e.now(),
	})
	if err != nil {
		return 0, fmt.Errorf("listing due donations: %w", err)
	}

	expired := 0
	for _, d := range due {
		_, err := e.Expire(ctx, d.ID, domain.SystemActor)
		var conflict *domain.ConflictError
		var trErr *domain.TransitionError
		switch {
		case err == nil:
			expired++
		case errors.As(err, &conflict), errors.As(err, &trErr):
			// Claimed, assigned or expired by someone else since the listing.
		default:
			return expired, fmt.Errorf("expiring donation %q: %w", d.ID, err)
		}
	}

	if expired > 0 {
		e.logger.InfoContext(ctx, "expired stale donations", "count", expired)
	}
	return expired, nil
}

// changeFunc builds the swap for a transition from the donation as read.
type changeFunc func(now time.Time, d domain.Donation) domain.Changes

// transition evaluates the event's guards against the current row for a
// precise error, then performs the swap with the same guards as
// preconditions so nothing can slip in between.
func (e *LifecycleEngine) transition(ctx context.Context, id string, actor domain.Actor, event domain.Event, build changeFunc) (domain.Donation, error) {
	policy := domain.Policies[event]
	if !policy.Permits(actor) {
		return domain.Donation{}, e.rejectActor(ctx, event, actor, id)
	}

	current, err := e.store.GetByID(ctx, id)
	if err != nil {
		return domain.Donation{}, err
	}

	now := e.now().UTC()

	if policy.RejectExpired && domain.LogicallyExpired(current, now) {
		return domain.Donation{}, &domain.ExpiredError{ID: id, SafeUntil: current.SafeUntil}
	}

	next, err := e.validator.Apply(ctx, current.Status, event)
	if err != nil {
		// Already at or past where this event leads: somebody applied it first.
		var trErr *domain.TransitionError
		if errors.As(err, &trErr) {
			if dst, ok := domain.Destination(event); ok && current.Status.Reached(dst) {
				return domain.Donation{}, &domain.ConflictError{ID: id, Expected: domain.Source(event), Actual: current.Status}
			}
		}
		return domain.Donation{}, err
	}

	if policy.Owns != nil && !policy.Owns(current, actor) {
		return domain.Donation{}, e.rejectActor(ctx, event, actor, id)
	}

	if policy.RequireExpired && !domain.IsExpired(current, now) {
		return domain.Donation{}, domain.ErrNotExpired
	}

	changes := build(now, current)
	changes.UpdatedAt = now

	updated, err := e.store.CompareAndSwapStatus(ctx, id, current.Status, next, changes)
	if err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			e.logger.InfoContext(ctx, "transition lost race",
				"event", event,
				"donation_id", id,
				"actor_id", actor.ID,
				"status", conflict.Actual,
			)
			return domain.Donation{}, err
		}
		e.logger.ErrorContext(ctx, "transition failed", "event", event, "donation_id", id, "error", err)
		return domain.Donation{}, fmt.Errorf("applying %s: %w", event, err)
	}

	e.publish(ctx, event, updated)
	return updated, nil
}

// publish emits the event for a change that is already committed. A failure
// here is logged and never turns the committed change into an error.
func (e *LifecycleEngine) publish(ctx context.Context, event domain.Event, d domain.Donation) {
	if err := e.publisher.Publish(ctx, event, d); err != nil {
		e.logger.ErrorContext(ctx, "publishing event failed",
			"event", event,
			"donation_id", d.ID,
			"status", d.Status,
			"error", err,
		)
	}
}

func (e *LifecycleEngine) rejectActor(ctx context.Context, event domain.Event, actor domain.Actor, donationID string) error {
	e.logger.WarnContext(ctx, "actor rejected, possible authorization gap",
		"event", event,
		"donation_id", donationID,
		"actor_id", actor.ID,
		"role", actor.Role,
	)
	return &domain.InvalidActorError{Event: event, ActorID: actor.ID, Role: actor.Role}
}

package river

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/foodflow/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// EventJobArgs carries the data needed to process a donation event asynchronously.
// River serializes this as JSON into its job queue table. It includes a snapshot
// of the donation at the time the event was published, so the worker never needs
// to query the database.
type EventJobArgs struct {
	Event       string    `json:"event"`
	DonationID  string    `json:"donation_id"`
	DonorID     string    `json:"donor_id"`
	Status      string    `json:"status"`
	NonprofitID string    `json:"nonprofit_id,omitempty"`
	DriverID    string    `json:"driver_id,omitempty"`
	SafeUntil   time.Time `json:"safe_until"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (EventJobArgs) Kind() string { return "donation.transitioned" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues a donation event as an async job in River.
func (p *Publisher) Publish(ctx context.Context, event domain.Event, d domain.Donation) error {
	nonprofit := d.ClaimedByNonprofitID
	if nonprofit == "" {
		nonprofit = d.LapsedClaimNonprofitID
	}
	_, err := p.client.Insert(ctx, EventJobArgs{
		Event:       string(event),
		DonationID:  d.ID,
		DonorID:     d.DonorID,
		Status:      string(d.Status),
		NonprofitID: nonprofit,
		DriverID:    d.AssignedDriverID,
		SafeUntil:   d.SafeUntil,
		OccurredAt:  d.UpdatedAt,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing event job: %w", err)
	}
	return nil
}

package river

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

// EventWorker processes donation event jobs from the River queue.
// It records the event in the structured log, which is where downstream
// notification hooks attach.
type EventWorker struct {
	river.WorkerDefaults[EventJobArgs]
}

// Work processes a single event job.
func (w *EventWorker) Work(ctx context.Context, job *river.Job[EventJobArgs]) error {
	slog.InfoContext(ctx, "processing donation event",
		"event", job.Args.Event,
		"donation_id", job.Args.DonationID,
		"status", job.Args.Status,
		"nonprofit_id", job.Args.NonprofitID,
		"driver_id", job.Args.DriverID,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}

// ExpirySweepArgs triggers one pass over donations whose safety window has passed.
type ExpirySweepArgs struct{}

// Kind returns the unique job type identifier used by River's job routing.
func (ExpirySweepArgs) Kind() string { return "donation.expiry_sweep" }

// Sweeper expires every donation that is past its window.
type Sweeper interface {
	ExpireDue(ctx context.Context) (int, error)
}

// ExpirySweepWorker runs the periodic expiry sweep. Sweeper is bound after
// construction because the engine it points at publishes through the same
// River client this worker is registered with.
type ExpirySweepWorker struct {
	river.WorkerDefaults[ExpirySweepArgs]
	Sweeper Sweeper
}

var errSweeperUnbound = errors.New("expiry sweep worker has no sweeper bound")

// Work runs a single sweep.
func (w *ExpirySweepWorker) Work(ctx context.Context, job *river.Job[ExpirySweepArgs]) error {
	if w.Sweeper == nil {
		return errSweeperUnbound
	}
	n, err := w.Sweeper.ExpireDue(ctx)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "expiry sweep finished",
		"expired", n,
		"job_id", job.ID,
	)
	return nil
}

// Timeout bounds a sweep so a stuck store cannot hold the queue slot.
func (w *ExpirySweepWorker) Timeout(*river.Job[ExpirySweepArgs]) time.Duration {
	return time.Minute
}

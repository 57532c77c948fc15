package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/robfig/cron/v3"
)

// Config tunes the River client.
type Config struct {
	// MaxWorkers bounds concurrent jobs on the default queue.
	MaxWorkers int
	// SweepSchedule is a standard five-field cron expression. Empty disables
	// the periodic expiry sweep.
	SweepSchedule string
}

// Setup creates a River client with the event and sweep workers registered
// and runs River's internal migrations. The caller must call client.Start()
// to begin processing jobs and client.Stop() for graceful shutdown.
func Setup(ctx context.Context, db *sql.DB, sweep *ExpirySweepWorker, cfg Config) (*Client, error) {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 2
	}

	var periodic []*river.PeriodicJob
	if cfg.SweepSchedule != "" {
		schedule, err := cron.ParseStandard(cfg.SweepSchedule)
		if err != nil {
			return nil, fmt.Errorf("parsing sweep schedule %q: %w", cfg.SweepSchedule, err)
		}
		periodic = append(periodic, river.NewPeriodicJob(
			schedule,
			func() (river.JobArgs, *river.InsertOpts) {
				return ExpirySweepArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		))
	}

	driver := riversqlite.New(db)

	// Run River's own migrations (creates river_job, river_leader, etc.).
	// These are separate from the app's goose migrations.
	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return nil, fmt.Errorf("creating river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, fmt.Errorf("running river migrations: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &EventWorker{})
	if sweep == nil {
		sweep = &ExpirySweepWorker{}
	}
	river.AddWorker(workers, sweep)

	client, err := river.NewClient(driver, &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.MaxWorkers},
		},
		Workers:      workers,
		PeriodicJobs: periodic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}

	return client, nil
}

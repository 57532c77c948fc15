package otel

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/foodflow/internal/domain"
)

const tracerName = "github.com/neomorfeo/foodflow/internal/adapter/otel"

// TracingStore wraps a domain.DonationStore with OpenTelemetry tracing.
// Each method creates a span with semantic attributes and records errors.
// Lost compare-and-swap races are counted rather than flagged as span
// errors, since they are an expected outcome under contention.
type TracingStore struct {
	next      domain.DonationStore
	tracer    trace.Tracer
	conflicts metric.Int64Counter
}

// Compile-time check: TracingStore implements domain.DonationStore.
var _ domain.DonationStore = (*TracingStore)(nil)

// NewTracingStore creates a tracing decorator around the given store.
func NewTracingStore(next domain.DonationStore) *TracingStore {
	meter := otel.Meter(tracerName)
	conflicts, err := meter.Int64Counter("foodflow.donation.swap_conflicts",
		metric.WithDescription("Status swaps refused because the donation had already moved"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		otel.Handle(err)
		conflicts = noop.Int64Counter{}
	}

	return &TracingStore{
		next:      next,
		tracer:    otel.Tracer(tracerName),
		conflicts: conflicts,
	}
}

func (s *TracingStore) Create(ctx context.Context, d domain.Donation) error {
	ctx, span := s.tracer.Start(ctx, "DonationStore.Create",
		trace.WithAttributes(
			attribute.String("donation.id", d.ID),
			attribute.String("donation.donor_id", d.DonorID),
			attribute.String("donation.category", string(d.Category)),
		),
	)
	defer span.End()

	err := s.next.Create(ctx, d)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *TracingStore) GetByID(ctx context.Context, id string) (domain.Donation, error) {
	ctx, span := s.tracer.Start(ctx, "DonationStore.GetByID",
		trace.WithAttributes(attribute.String("donation.id", id)),
	)
	defer span.End()

	d, err := s.next.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return d, err
}

func (s *TracingStore) List(ctx context.Context, filter domain.ListFilter) ([]domain.Donation, error) {
	ctx, span := s.tracer.Start(ctx, "DonationStore.List",
		trace.WithAttributes(
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
		),
	)
	defer span.End()

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		span.SetAttributes(attribute.StringSlice("filter.statuses", statuses))
	}

	donations, err := s.next.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(donations)))
	}
	return donations, err
}

func (s *TracingStore) CompareAndSwapStatus(ctx context.Context, id string, expected, next domain.Status, changes domain.Changes) (domain.Donation, error) {
	ctx, span := s.tracer.Start(ctx, "DonationStore.CompareAndSwapStatus",
		trace.WithAttributes(
			attribute.String("donation.id", id),
			attribute.String("status.expected", string(expected)),
			attribute.String("status.next", string(next)),
		),
	)
	defer span.End()

	d, err := s.next.CompareAndSwapStatus(ctx, id, expected, next, changes)

	var conflict *domain.ConflictError
	switch {
	case err == nil:
	case errors.As(err, &conflict):
		span.SetAttributes(
			attribute.Bool("swap.conflict", true),
			attribute.String("status.actual", string(conflict.Actual)),
		)
		s.conflicts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status.expected", string(expected)),
			attribute.String("status.next", string(next)),
		))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return d, err
}

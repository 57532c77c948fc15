package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/foodflow/internal/domain"
)

// Compile-time check: TracingPublisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*TracingPublisher)(nil)

// TracingPublisher records one span per published donation event. The span
// names the parties the transition touched, and failed publishes are counted
// because the engine does not surface them to callers.
type TracingPublisher struct {
	next     domain.EventPublisher
	tracer   trace.Tracer
	failures metric.Int64Counter
}

// NewTracingPublisher creates a tracing decorator around the given publisher.
func NewTracingPublisher(next domain.EventPublisher) *TracingPublisher {
	failures, err := otel.Meter(tracerName).Int64Counter("foodflow.donation.publish_failures",
		metric.WithDescription("Donation events that could not be enqueued"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		failures = noop.Int64Counter{}
	}
	return &TracingPublisher{
		next:     next,
		tracer:   otel.Tracer(tracerName),
		failures: failures,
	}
}

func (p *TracingPublisher) Publish(ctx context.Context, event domain.Event, d domain.Donation) error {
	ctx, span := p.tracer.Start(ctx, "EventPublisher.Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(eventAttributes(event, d)...),
	)
	defer span.End()

	if err := p.next.Publish(ctx, event, d); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "event not enqueued")
		p.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", string(event))))
		return err
	}
	return nil
}

// eventAttributes describes the donation as it stood after the event.
// Party ids are only set when the donation carries them.
func eventAttributes(event domain.Event, d domain.Donation) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("event.type", string(event)),
		attribute.String("donation.id", d.ID),
		attribute.String("donation.status", string(d.Status)),
		attribute.String("donation.donor_id", d.DonorID),
		attribute.String("donation.safe_until", d.SafeUntil.UTC().Format(time.RFC3339)),
	}
	if d.ClaimedByNonprofitID != "" {
		attrs = append(attrs, attribute.String("donation.nonprofit_id", d.ClaimedByNonprofitID))
	}
	if d.LapsedClaimNonprofitID != "" {
		attrs = append(attrs, attribute.String("donation.lapsed_nonprofit_id", d.LapsedClaimNonprofitID))
	}
	if d.AssignedDriverID != "" {
		attrs = append(attrs, attribute.String("donation.driver_id", d.AssignedDriverID))
	}
	return attrs
}

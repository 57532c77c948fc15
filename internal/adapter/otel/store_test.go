package otel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/neomorfeo/foodflow/internal/adapter/memory"
	adapter "github.com/neomorfeo/foodflow/internal/adapter/otel"
	"github.com/neomorfeo/foodflow/internal/domain"
	"github.com/neomorfeo/foodflow/internal/domain/storetest"
)

// --- Test provider setup ---

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter
}

func setupTestMeter(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader
}

func newTracedStore(t *testing.T) (*adapter.TracingStore, *memory.Store) {
	t.Helper()
	inner := memory.New()
	return adapter.NewTracingStore(inner), inner
}

// --- Tests ---

func TestTracingStore_Create_RecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	store, _ := newTracedStore(t)

	d := storetest.NewDonation(t, "d-1", storetest.Base.Add(time.Hour))
	if err := store.Create(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "DonationStore.Create" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "DonationStore.Create")
	}

	assertAttribute(t, spans[0], "donation.id", "d-1")
	assertAttribute(t, spans[0], "donation.donor_id", "donor-1")
	assertAttribute(t, spans[0], "donation.category", "Produce")
}

func TestTracingStore_GetByID_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)
	store, _ := newTracedStore(t)

	_, err := store.GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, domain.ErrDonationNotFound) {
		t.Fatalf("expected ErrDonationNotFound, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}

	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want %v", spans[0].Status.Code, codes.Error)
	}

	if len(spans[0].Events) == 0 {
		t.Error("expected error event on span")
	}
}

func TestTracingStore_List_RecordsResultCount(t *testing.T) {
	exporter := setupTestTracer(t)
	store, inner := newTracedStore(t)

	storetest.MustCreate(t, inner, storetest.NewDonation(t, "d-1", storetest.Base.Add(time.Hour)))
	storetest.MustCreate(t, inner, storetest.NewDonation(t, "d-2", storetest.Base.Add(time.Hour)))

	donations, err := store.List(context.Background(), domain.ListFilter{
		Statuses: []domain.Status{domain.StatusOpen},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(donations) != 2 {
		t.Errorf("got %d donations, want 2", len(donations))
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}

	assertAttribute(t, spans[0], "result.count", "2")
	assertAttribute(t, spans[0], "filter.statuses", `["open"]`)
}

func TestTracingStore_Swap_RecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	setupTestMeter(t)
	store, inner := newTracedStore(t)
	storetest.MustCreate(t, inner, storetest.NewDonation(t, "d-1", storetest.Base.Add(time.Hour)))

	_, err := store.CompareAndSwapStatus(context.Background(), "d-1", domain.StatusOpen, domain.StatusClaimed, domain.Changes{
		ClaimedByNonprofitID: "np-a",
		UpdatedAt:            storetest.Base,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "DonationStore.CompareAndSwapStatus" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "DonationStore.CompareAndSwapStatus")
	}
	assertAttribute(t, spans[0], "status.expected", "open")
	assertAttribute(t, spans[0], "status.next", "claimed")
	if spans[0].Status.Code == codes.Error {
		t.Error("successful swap should not mark the span as an error")
	}
}

func TestTracingStore_SwapConflict_CountsWithoutError(t *testing.T) {
	exporter := setupTestTracer(t)
	reader := setupTestMeter(t)
	store, inner := newTracedStore(t)
	storetest.MustCreate(t, inner, storetest.NewDonation(t, "d-1", storetest.Base.Add(time.Hour)))

	changes := domain.Changes{ClaimedByNonprofitID: "np-a", UpdatedAt: storetest.Base}
	if _, err := store.CompareAndSwapStatus(context.Background(), "d-1", domain.StatusOpen, domain.StatusClaimed, changes); err != nil {
		t.Fatalf("first swap failed: %v", err)
	}

	changes.ClaimedByNonprofitID = "np-b"
	_, err := store.CompareAndSwapStatus(context.Background(), "d-1", domain.StatusOpen, domain.StatusClaimed, changes)
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	lost := spans[1]
	if lost.Status.Code == codes.Error {
		t.Error("lost race should not mark the span as an error")
	}
	assertAttribute(t, lost, "swap.conflict", "true")
	assertAttribute(t, lost, "status.actual", "claimed")

	if got := conflictCount(t, reader); got != 1 {
		t.Errorf("swap_conflicts = %d, want 1", got)
	}
}

func TestTracingStore_SwapNotFound_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)
	reader := setupTestMeter(t)
	store, _ := newTracedStore(t)

	_, err := store.CompareAndSwapStatus(context.Background(), "nonexistent", domain.StatusOpen, domain.StatusClaimed, domain.Changes{
		ClaimedByNonprofitID: "np-a",
	})
	if !errors.Is(err, domain.ErrDonationNotFound) {
		t.Fatalf("expected ErrDonationNotFound, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want %v", spans[0].Status.Code, codes.Error)
	}
	if got := conflictCount(t, reader); got != 0 {
		t.Errorf("swap_conflicts = %d, want 0", got)
	}
}

// conflictCount sums the swap conflict counter across all attribute sets.
func conflictCount(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	return counterTotal(t, reader, "foodflow.donation.swap_conflicts")
}

// counterTotal sums an int64 counter across all attribute sets.
func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collecting metrics: %v", err)
	}

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s data = %T, want metricdata.Sum[int64]", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

// hasAttribute reports whether the span carries key at all.
func hasAttribute(span tracetest.SpanStub, key string) bool {
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			return true
		}
	}
	return false
}

// assertAttribute checks that a span has an attribute with the given key and string value.
func assertAttribute(t *testing.T, span tracetest.SpanStub, key, want string) {
	t.Helper()
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			got := attr.Value.Emit()
			if got != want {
				t.Errorf("attribute %q = %q, want %q", key, got, want)
			}
			return
		}
	}
	t.Errorf("attribute %q not found on span %q", key, span.Name)
}

package fulfill

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Metrics holds the fulfillment counters. A nil *Metrics is valid and
// records nothing, which keeps unit tests free of telemetry setup.
type Metrics struct {
	tracer trace.Tracer

	fulfilled  metric.Int64Counter
	decrements metric.Int64Counter
	duplicates metric.Int64Counter
	skipped    metric.Int64Counter
}

// NewMetrics registers the fulfillment instruments on the given providers.
func NewMetrics(mp metric.MeterProvider, tp trace.TracerProvider) (*Metrics, error) {
	meter := mp.Meter("storefront.fulfill")

	fulfilled, err := meter.Int64Counter("fulfill.orders",
		metric.WithDescription("Orders fulfilled"))
	if err != nil {
		return nil, err
	}
	decrements, err := meter.Int64Counter("fulfill.inventory.decrements",
		metric.WithDescription("Inventory decrements applied"))
	if err != nil {
		return nil, err
	}
	duplicates, err := meter.Int64Counter("fulfill.duplicate.deliveries",
		metric.WithDescription("Redelivered sessions skipped by the ledger"))
	if err != nil {
		return nil, err
	}
	skipped, err := meter.Int64Counter("fulfill.skipped.events",
		metric.WithDescription("Events dropped for missing payment reference"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		tracer:     tp.Tracer("storefront.fulfill"),
		fulfilled:  fulfilled,
		decrements: decrements,
		duplicates: duplicates,
		skipped:    skipped,
	}, nil
}

func noopTracerIfNil(m *Metrics) trace.Tracer {
	if m == nil || m.tracer == nil {
		return noop.NewTracerProvider().Tracer("storefront.fulfill")
	}
	return m.tracer
}

func (m *Metrics) recordFulfilled(ctx context.Context, decrements int) {
	if m == nil {
		return
	}
	m.fulfilled.Add(ctx, 1)
	m.decrements.Add(ctx, int64(decrements))
}

func (m *Metrics) recordDuplicate(ctx context.Context) {
	if m == nil {
		return
	}
	m.duplicates.Add(ctx, 1)
}

func (m *Metrics) recordSkippedEvent(ctx context.Context) {
	if m == nil {
		return
	}
	m.skipped.Add(ctx, 1)
}

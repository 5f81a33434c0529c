// Package fulfill orchestrates order fulfillment for verified payment
// events: it writes the order record, applies inventory decrements exactly
// once per checkout session, and keeps freshness markers current.
package fulfill

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/freshness"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

// Ledger records which checkout sessions have already had their inventory
// decrements applied, so redelivered webhooks cannot decrement twice.
type Ledger interface {
	// MarkProcessed records sessionID with a conditional insert. first is
	// true only for the call that created the entry.
	MarkProcessed(ctx context.Context, sessionID string) (first bool, err error)
}

// Orchestrator runs the fulfillment pipeline for one normalized event.
// All dependencies are injected; it owns no global state.
type Orchestrator struct {
	orders   order.Repository
	products product.Repository
	markers  freshness.Tracker
	ledger   Ledger
	metrics  *Metrics
	tracer   trace.Tracer
}

// New creates an Orchestrator with the given collaborators.
func New(
	orders order.Repository,
	products product.Repository,
	markers freshness.Tracker,
	ledger Ledger,
	metrics *Metrics,
) *Orchestrator {
	return &Orchestrator{
		orders:   orders,
		products: products,
		markers:  markers,
		ledger:   ledger,
		metrics:  metrics,
		tracer:   noopTracerIfNil(metrics),
	}
}

// SkipReason explains why a line item's decrement was not applied.
type SkipReason string

const (
	SkipProductNotFound SkipReason = "product_not_found"
	SkipInvalidQuantity SkipReason = "invalid_quantity"
	SkipDecrementFailed SkipReason = "decrement_failed"
)

// Report summarizes what one fulfillment call did.
type Report struct {
	SessionID string

	// SkippedNoPayment is set when the event carried no payment reference:
	// nothing was written at all.
	SkippedNoPayment bool

	// OrderWritten reports that the order record upsert succeeded.
	OrderWritten bool

	// AlreadyProcessed is set when the session was reconciled by an earlier
	// delivery; the order upsert still ran but no decrements were applied.
	AlreadyProcessed bool

	Applied []AppliedItem
	Skipped []SkippedItem
}

// AppliedItem is one successful inventory decrement.
type AppliedItem struct {
	ItemID   string
	Quantity int
}

// SkippedItem is one line item whose decrement was not applied. Skips are
// reported, never fatal: one bad line item must not block the rest.
type SkippedItem struct {
	ItemID   string
	Quantity int
	Reason   SkipReason
}

// Fulfill runs the pipeline for one normalized event:
//
//	order upsert -> orders marker -> session ledger -> per-item decrements -> products marker
//
// The order upsert is idempotent by (email, sessionId); the ledger makes the
// inventory pass exactly-once across redeliveries. Per-item failures are
// collected in the report. There is no cross-item transaction: each
// decrement is its own atomic unit, and a partial reconciliation is left as
// is (the ledger already claimed the session).
func (o *Orchestrator) Fulfill(ctx context.Context, ev *order.Event) (*Report, error) {
	ctx, span := o.tracer.Start(ctx, "fulfill.Fulfill",
		trace.WithAttributes(attribute.String("session_id", ev.SessionID)))
	defer span.End()

	lg := zctx.From(ctx).With(zap.String("session_id", ev.SessionID))
	report := &Report{SessionID: ev.SessionID}

	if ev.SkipFulfillment() {
		// No payment reference resolved: log and drop, the provider will
		// not produce one on redelivery either.
		lg.Info("No payment reference, skipping fulfillment")
		report.SkippedNoPayment = true
		o.metrics.recordSkippedEvent(ctx)
		return report, nil
	}

	if ev.Email == "" {
		return nil, errors.New("event has payment reference but no customer email")
	}

	if err := o.orders.Upsert(ctx, order.FromEvent(ev)); err != nil {
		return nil, errors.Wrap(err, "write order")
	}
	report.OrderWritten = true

	if err := o.markers.Touch(ctx, freshness.TypeOrders, ev.Email); err != nil {
		return nil, errors.Wrap(err, "touch orders marker")
	}
	lg.Info("Order recorded", zap.String("email", ev.Email))

	first, err := o.ledger.MarkProcessed(ctx, ev.SessionID)
	if err != nil {
		return nil, errors.Wrap(err, "mark session processed")
	}
	if !first {
		lg.Info("Session already reconciled, skipping inventory")
		report.AlreadyProcessed = true
		o.metrics.recordDuplicate(ctx)
		return report, nil
	}

	o.applyDecrements(ctx, ev.LineItems, report)
	o.metrics.recordFulfilled(ctx, len(report.Applied))
	return report, nil
}

// applyDecrements walks the line items, decrementing stock one atomic
// statement at a time and touching the global products marker after each
// success.
func (o *Orchestrator) applyDecrements(ctx context.Context, items []order.LineItem, report *Report) {
	lg := zctx.From(ctx).With(zap.String("session_id", report.SessionID))

	for _, item := range items {
		if item.ItemID == "" || item.Quantity <= 0 {
			report.Skipped = append(report.Skipped, SkippedItem{
				ItemID: item.ItemID, Quantity: item.Quantity, Reason: SkipInvalidQuantity,
			})
			continue
		}

		err := o.products.DecrementQuantity(ctx, item.ItemID, item.Quantity)
		switch {
		case errors.Is(err, product.ErrNotFound):
			lg.Warn("Purchased product not in catalog", zap.String("item_id", item.ItemID))
			report.Skipped = append(report.Skipped, SkippedItem{
				ItemID: item.ItemID, Quantity: item.Quantity, Reason: SkipProductNotFound,
			})
			continue
		case err != nil:
			lg.Error("Inventory decrement failed",
				zap.String("item_id", item.ItemID), zap.Error(err))
			report.Skipped = append(report.Skipped, SkippedItem{
				ItemID: item.ItemID, Quantity: item.Quantity, Reason: SkipDecrementFailed,
			})
			continue
		}

		report.Applied = append(report.Applied, AppliedItem{
			ItemID: item.ItemID, Quantity: item.Quantity,
		})

		if err := o.markers.Touch(ctx, freshness.TypeProducts, ""); err != nil {
			lg.Error("Products marker touch failed", zap.Error(err))
		}
	}
}

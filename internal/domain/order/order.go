package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Event is the canonical, provider-agnostic representation of one completed
// checkout. Both payment providers normalize into this shape before any
// write happens.
type Event struct {
	// SessionID is the provider checkout session id. It is unique per
	// checkout attempt across both providers and acts as the idempotency key
	// for the order write and the reconciliation ledger.
	SessionID string

	// Email identifies the customer; orders are persisted under it.
	Email string

	// Amount is the total paid in major currency units.
	Amount decimal.Decimal

	// AmountShipping is the shipping component of Amount.
	AmountShipping decimal.Decimal

	// Images and Titles are display-only line item data. Either may be
	// shorter than LineItems (or empty) when upstream metadata was truncated.
	Images []string
	Titles []string

	// PaymentID is the opaque provider payment reference. When empty the
	// event is recorded nowhere: fulfillment is skipped entirely.
	PaymentID string

	// LineItems are the purchased (product id, quantity) pairs used for
	// inventory reconciliation. Entries with a missing id or non-positive
	// quantity are dropped during normalization, never zero-filled.
	LineItems []LineItem
}

// LineItem is one purchasable product id plus purchased quantity.
type LineItem struct {
	ItemID   string
	Quantity int
}

// SkipFulfillment reports whether the event carries no payment reference and
// must therefore produce no writes at all.
func (e *Event) SkipFulfillment() bool {
	return e.PaymentID == ""
}

// Order is the persisted order record, owned by a customer (email) and keyed
// by the checkout session id. It is created once per session; redelivered
// webhooks overwrite it with identical data instead of duplicating it.
type Order struct {
	Email          string
	SessionID      string
	Amount         decimal.Decimal
	AmountShipping decimal.Decimal
	Images         []string
	Titles         []string
	PaymentID      string
	CreatedAt      time.Time
}

// FromEvent builds the persistable order record for a normalized event.
func FromEvent(e *Event) *Order {
	return &Order{
		Email:          e.Email,
		SessionID:      e.SessionID,
		Amount:         e.Amount,
		AmountShipping: e.AmountShipping,
		Images:         e.Images,
		Titles:         e.Titles,
		PaymentID:      e.PaymentID,
	}
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Upsert creates the order record or overwrites it when the same
	// (email, session id) pair was already written. CreatedAt is assigned
	// server-side on first insert and kept on conflict.
	Upsert(ctx context.Context, o *Order) error
}

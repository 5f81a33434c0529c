// Package freshness tracks per-resource "last updated" markers used by
// downstream caches and UIs to decide when to refetch.
package freshness

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Type names a logical resource whose freshness is tracked.
type Type string

const (
	// TypeOrders is scoped per customer email.
	TypeOrders Type = "orders"
	// TypeProducts is global; Touch is called with an empty email.
	TypeProducts Type = "products"
)

// ErrNotFound is returned when no marker exists for a (type, email) pair.
var ErrNotFound = errors.New("freshness marker not found")

// Marker is one freshness record. Email is empty for global types.
type Marker struct {
	Type      Type
	Email     string
	UpdatedAt time.Time
}

// Tracker upserts and reads freshness markers.
type Tracker interface {
	// Touch sets the marker for (typ, email) to the current server time,
	// creating it when absent. The create must be conditional so two
	// concurrent touches cannot produce two markers for the same key.
	Touch(ctx context.Context, typ Type, email string) error

	// Get returns the marker for (typ, email), or ErrNotFound.
	Get(ctx context.Context, typ Type, email string) (*Marker, error)
}

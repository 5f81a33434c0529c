package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. ID is the public
// catalog identifier, distinct from the storage row key; the catalog
// collaborator owns it and duplicates are its data-quality problem, so
// lookups take the first match.
type Product struct {
	ID          string
	Title       string
	Description string
	Price       decimal.Decimal
	Image       string
	Quantity    int64
}

// Repository defines catalog reads plus the single inventory mutation this
// service performs.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)

	// DecrementQuantity atomically subtracts qty from the product's stock in
	// one statement, never read-then-write, so concurrent purchases of the
	// same product cannot lose updates. Stock is allowed to go negative;
	// oversell prevention belongs to checkout-session creation, not here.
	// Returns ErrNotFound when no product matches id.
	DecrementQuantity(ctx context.Context, id string, qty int) error

	// Upsert writes a catalog row, keyed by the public id. Used by the seed
	// and ingest commands only.
	Upsert(ctx context.Context, p *Product) error
}

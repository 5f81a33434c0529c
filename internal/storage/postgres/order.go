package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
)

const upsertOrderSQL = `INSERT INTO orders (email, session_id, amount, amount_shipping, images, titles, payment_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (email, session_id) DO UPDATE SET
		amount = EXCLUDED.amount,
		amount_shipping = EXCLUDED.amount_shipping,
		images = EXCLUDED.images,
		titles = EXCLUDED.titles,
		payment_id = EXCLUDED.payment_id`

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Upsert writes the order record. The conflict clause leaves created_at
// untouched, so a redelivered webhook overwrites the payload fields without
// duplicating the row or moving its creation time.
func (r *OrderRepository) Upsert(ctx context.Context, o *order.Order) error {
	images, err := json.Marshal(emptyAsList(o.Images))
	if err != nil {
		return fmt.Errorf("marshaling order images: %w", err)
	}
	titles, err := json.Marshal(emptyAsList(o.Titles))
	if err != nil {
		return fmt.Errorf("marshaling order titles: %w", err)
	}

	_, err = r.pool.Exec(ctx, upsertOrderSQL,
		o.Email, o.SessionID, o.Amount, o.AmountShipping, images, titles, o.PaymentID)
	if err != nil {
		return fmt.Errorf("upserting order %q: %w", o.SessionID, err)
	}
	return nil
}

// emptyAsList keeps JSONB columns as [] rather than null.
func emptyAsList(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, title, description, price, image, quantity
		FROM products ORDER BY pk`

	// Lookups go through the public id column, not the row key, and take
	// the first match: duplicate ids are the catalog feed's bug, not ours.
	getProductByIDSQL = `SELECT id, title, description, price, image, quantity
		FROM products WHERE id = $1 ORDER BY pk LIMIT 1`

	// Single-statement decrement: concurrent purchases of the same product
	// serialize on the row lock instead of losing updates. No floor at
	// zero; oversell is handled (or not) at checkout-session creation.
	decrementQuantitySQL = `UPDATE products SET quantity = quantity - $2
		WHERE pk = (SELECT pk FROM products WHERE id = $1 ORDER BY pk LIMIT 1)`

	upsertProductSQL = `WITH target AS (
			SELECT pk FROM products WHERE id = $1 ORDER BY pk LIMIT 1
		), updated AS (
			UPDATE products p
			SET title = $2, description = $3, price = $4, image = $5, quantity = $6
			FROM target WHERE p.pk = target.pk
			RETURNING p.pk
		)
		INSERT INTO products (id, title, description, price, image, quantity)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE NOT EXISTS (SELECT 1 FROM updated)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the full catalog in insertion order.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns the first product matching the public id.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// DecrementQuantity atomically subtracts qty from the first product matching
// the public id. Returns product.ErrNotFound when no row matched.
func (r *ProductRepository) DecrementQuantity(ctx context.Context, id string, qty int) error {
	tag, err := r.pool.Exec(ctx, decrementQuantitySQL, id, qty)
	if err != nil {
		return fmt.Errorf("decrementing product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Upsert writes a catalog row keyed by the public id, updating the first
// matching row or inserting when none exists.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.Title, p.Description, p.Price, p.Image, p.Quantity)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		price decimal.Decimal
	)
	err := row.Scan(&p.ID, &p.Title, &p.Description, &price, &p.Image, &p.Quantity)
	p.Price = price
	return p, err
}

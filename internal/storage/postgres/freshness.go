package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/freshness"
)

const (
	touchMarkerSQL = `INSERT INTO last_updated (type, email, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (type, email) DO UPDATE SET updated_at = now()`

	getMarkerSQL = `SELECT type, email, updated_at FROM last_updated
		WHERE type = $1 AND email = $2`
)

var _ freshness.Tracker = (*FreshnessRepository)(nil)

// FreshnessRepository implements freshness.Tracker backed by PostgreSQL.
type FreshnessRepository struct {
	pool *pgxpool.Pool
}

// NewFreshnessRepository returns a FreshnessRepository that uses the given pool.
func NewFreshnessRepository(pool *pgxpool.Pool) *FreshnessRepository {
	return &FreshnessRepository{pool: pool}
}

// Touch upserts the marker in one statement. The (type, email) primary key
// is the conditional create: two concurrent touches race on the same row
// instead of producing two markers.
func (r *FreshnessRepository) Touch(ctx context.Context, typ freshness.Type, email string) error {
	_, err := r.pool.Exec(ctx, touchMarkerSQL, string(typ), email)
	if err != nil {
		return fmt.Errorf("touching %s marker: %w", typ, err)
	}
	return nil
}

// Get returns the marker for (typ, email), or freshness.ErrNotFound.
func (r *FreshnessRepository) Get(ctx context.Context, typ freshness.Type, email string) (*freshness.Marker, error) {
	var m freshness.Marker
	err := r.pool.QueryRow(ctx, getMarkerSQL, string(typ), email).
		Scan(&m.Type, &m.Email, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, freshness.ErrNotFound
		}
		return nil, fmt.Errorf("getting %s marker: %w", typ, err)
	}
	return &m, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/fulfill"
)

const markProcessedSQL = `INSERT INTO processed_sessions (session_id)
	VALUES ($1) ON CONFLICT (session_id) DO NOTHING`

var _ fulfill.Ledger = (*LedgerRepository)(nil)

// LedgerRepository implements fulfill.Ledger backed by PostgreSQL.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository returns a LedgerRepository that uses the given pool.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// MarkProcessed claims the session with a conditional insert. Exactly one
// delivery observes first=true, regardless of concurrent redeliveries.
func (r *LedgerRepository) MarkProcessed(ctx context.Context, sessionID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, markProcessedSQL, sessionID)
	if err != nil {
		return false, fmt.Errorf("marking session %q processed: %w", sessionID, err)
	}
	return tag.RowsAffected() == 1, nil
}

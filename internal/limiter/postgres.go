package limiter

import (
	"context"
	"errors"

	"github.com/and161185/keyqueue/internal/errs"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed limiter over client_records.remaining_tokens.
type PG struct {
	pool pgxQuerier
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

// NewPGWithQuerier constructs a PostgreSQL-backed limiter.
func NewPGWithQuerier(q pgxQuerier) *PG {
	return &PG{pool: q}
}

// Take decrements the client's token count if it is positive. The guarded
// UPDATE keeps remaining_tokens >= 0 under concurrent callers.
func (l *PG) Take(ctx context.Context, clientID uuid.UUID) (int32, error) {
	const q = `
UPDATE client_records SET remaining_tokens = remaining_tokens - 1
WHERE client_id=$1 AND remaining_tokens > 0
RETURNING remaining_tokens`
	var left int32
	err := l.pool.QueryRow(ctx, q, clientID).Scan(&left)
	switch {
	case err == nil:
		return left, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return 0, err
	}

	const exists = `SELECT EXISTS (SELECT 1 FROM client_records WHERE client_id=$1)`
	var known bool
	if err = l.pool.QueryRow(ctx, exists, clientID).Scan(&known); err != nil {
		return 0, err
	}
	if !known {
		return 0, errs.ErrNotFound
	}
	return 0, errs.ErrRateLimited
}

// ResetAll sets remaining_tokens of every client to allowance.
func (l *PG) ResetAll(ctx context.Context, allowance int32) (int64, error) {
	const q = `UPDATE client_records SET remaining_tokens=$1 WHERE remaining_tokens <> $1`
	ct, err := l.pool.Exec(ctx, q, allowance)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

package postgres

import (
	"context"
	"errors"

	"github.com/and161185/keyqueue/internal/errs"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// KeyPackageRepo implements KeyPackageRepository using PostgreSQL.
type KeyPackageRepo struct{ db *DB }

// NewKeyPackageRepo constructs a key package repository.
func NewKeyPackageRepo(db *DB) *KeyPackageRepo { return &KeyPackageRepo{db: db} }

// Replenish appends packages and optionally replaces the last-resort package.
func (r *KeyPackageRepo) Replenish(ctx context.Context, clientID uuid.UUID, packages []model.Ciphertext, lastResort model.Ciphertext) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		const ins = `INSERT INTO key_packages (client_id, payload, is_last_resort) VALUES ($1, $2, false)`
		for _, p := range packages {
			if _, err := tx.Exec(ctx, ins, clientID, []byte(p)); err != nil {
				if isForeignKeyViolation(err) {
					return errs.ErrNotFound
				}
				return err
			}
		}
		if lastResort == nil {
			return nil
		}
		const upsert = `
INSERT INTO key_packages (client_id, payload, is_last_resort) VALUES ($1, $2, true)
ON CONFLICT (client_id) WHERE is_last_resort DO UPDATE SET payload = EXCLUDED.payload`
		if _, err := tx.Exec(ctx, upsert, clientID, []byte(lastResort)); err != nil {
			if isForeignKeyViolation(err) {
				return errs.ErrNotFound
			}
			return err
		}
		return nil
	})
}

// ConsumeOne hands out one package of the client.
func (r *KeyPackageRepo) ConsumeOne(ctx context.Context, clientID uuid.UUID) (res model.KeyPackageResult, err error) {
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		res, err = consumeKeyPackage(ctx, tx, clientID)
		return err
	})
	return res, err
}

// ConsumeForRecipients consumes one package per client inside one transaction.
// A client without an available package yields an Unavailable result; other
// errors abort the whole batch.
func (r *KeyPackageRepo) ConsumeForRecipients(ctx context.Context, clientIDs []uuid.UUID) ([]model.KeyPackageResult, error) {
	out := make([]model.KeyPackageResult, 0, len(clientIDs))
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		for _, id := range clientIDs {
			res, err := consumeKeyPackage(ctx, tx, id)
			switch {
			case errors.Is(err, errs.ErrExhausted), errors.Is(err, errs.ErrContended):
				out = append(out, model.KeyPackageResult{ClientID: id, Outcome: model.Unavailable})
			case err != nil:
				return err
			default:
				out = append(out, res)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of ordinary packages of the client.
func (r *KeyPackageRepo) Count(ctx context.Context, clientID uuid.UUID) (int64, error) {
	const q = `SELECT count(*) FROM key_packages WHERE client_id=$1 AND NOT is_last_resort`
	var n int64
	err := r.db.Pool.QueryRow(ctx, q, clientID).Scan(&n)
	return n, err
}

// consumeKeyPackage runs the ordinary-first selection on tx. Ordinary rows
// are locked with SKIP LOCKED and deleted; the last-resort row is read
// without a lock so concurrent borrowers never exclude each other.
func consumeKeyPackage(ctx context.Context, tx querier, clientID uuid.UUID) (model.KeyPackageResult, error) {
	res := model.KeyPackageResult{ClientID: clientID}

	const pick = `
SELECT id, payload FROM key_packages
WHERE client_id=$1 AND NOT is_last_resort
ORDER BY id
LIMIT 1
FOR UPDATE SKIP LOCKED`
	var (
		id      int64
		payload []byte
	)
	err := tx.QueryRow(ctx, pick, clientID).Scan(&id, &payload)
	switch {
	case err == nil:
		if _, err = tx.Exec(ctx, `DELETE FROM key_packages WHERE id=$1`, id); err != nil {
			return res, err
		}
		res.Package = model.KeyPackage{ID: id, ClientID: clientID, Payload: payload}
		res.Outcome = model.Consumed
		return res, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return res, err
	}

	const fallback = `SELECT id, payload FROM key_packages WHERE client_id=$1 AND is_last_resort`
	err = tx.QueryRow(ctx, fallback, clientID).Scan(&id, &payload)
	switch {
	case err == nil:
		res.Package = model.KeyPackage{ID: id, ClientID: clientID, Payload: payload, IsLastResort: true}
		res.Outcome = model.Borrowed
		return res, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return res, err
	}

	// Ordinary rows that exist but were skipped are held by concurrent consumers.
	const locked = `SELECT EXISTS (SELECT 1 FROM key_packages WHERE client_id=$1 AND NOT is_last_resort)`
	var busy bool
	if err = tx.QueryRow(ctx, locked, clientID).Scan(&busy); err != nil {
		return res, err
	}
	if busy {
		return res, errs.ErrContended
	}
	return res, errs.ErrExhausted
}

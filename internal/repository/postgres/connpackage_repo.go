package postgres

import (
	"context"
	"errors"

	"github.com/and161185/keyqueue/internal/errs"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/jackc/pgx/v5"
)

// ConnectionPackageRepo implements ConnectionPackageRepository using PostgreSQL.
type ConnectionPackageRepo struct{ db *DB }

// NewConnectionPackageRepo constructs a connection package repository.
func NewConnectionPackageRepo(db *DB) *ConnectionPackageRepo {
	return &ConnectionPackageRepo{db: db}
}

// Replenish appends packages to the owner's pool.
func (r *ConnectionPackageRepo) Replenish(ctx context.Context, owner model.OwnerID, packages []model.Ciphertext) error {
	if len(packages) == 0 {
		return nil
	}
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		const q = `INSERT INTO connection_packages (owner_id, payload) VALUES ($1, $2)`
		for _, p := range packages {
			if _, err := tx.Exec(ctx, q, []byte(owner), []byte(p)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ConsumeOne returns one package of the owner. The selected row is deleted
// only when a second row of the same owner could be locked as a witness, so
// the pool never drops below one package even under concurrent consumers.
func (r *ConnectionPackageRepo) ConsumeOne(ctx context.Context, owner model.OwnerID) (res model.ConnectionPackageResult, err error) {
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		const pick = `
SELECT id, payload FROM connection_packages
WHERE owner_id=$1
ORDER BY id
LIMIT 1
FOR UPDATE SKIP LOCKED`
		var (
			id      int64
			payload []byte
		)
		if err := tx.QueryRow(ctx, pick, []byte(owner)).Scan(&id, &payload); err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			return contendedOrExhausted(ctx, tx, owner)
		}
		res.Package = model.ConnectionPackage{ID: id, Owner: owner, Payload: payload}

		const witness = `
SELECT id FROM connection_packages
WHERE owner_id=$1 AND id<>$2
LIMIT 1
FOR UPDATE SKIP LOCKED`
		var other int64
		err := tx.QueryRow(ctx, witness, []byte(owner), id).Scan(&other)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			res.Outcome = model.Borrowed
			return nil
		case err != nil:
			return err
		}

		if _, err = tx.Exec(ctx, `DELETE FROM connection_packages WHERE id=$1`, id); err != nil {
			return err
		}
		res.Outcome = model.Consumed
		return nil
	})
	if err != nil {
		return model.ConnectionPackageResult{}, err
	}
	return res, nil
}

// Count returns the number of packages stored for the owner.
func (r *ConnectionPackageRepo) Count(ctx context.Context, owner model.OwnerID) (int64, error) {
	const q = `SELECT count(*) FROM connection_packages WHERE owner_id=$1`
	var n int64
	err := r.db.Pool.QueryRow(ctx, q, []byte(owner)).Scan(&n)
	return n, err
}

func contendedOrExhausted(ctx context.Context, tx querier, owner model.OwnerID) error {
	const q = `SELECT EXISTS (SELECT 1 FROM connection_packages WHERE owner_id=$1)`
	var busy bool
	if err := tx.QueryRow(ctx, q, []byte(owner)).Scan(&busy); err != nil {
		return err
	}
	if busy {
		return errs.ErrContended
	}
	return errs.ErrExhausted
}

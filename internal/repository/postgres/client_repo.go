package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/keyqueue/internal/errs"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// ClientRepo implements ClientRepository using PostgreSQL.
type ClientRepo struct{ db *DB }

// NewClientRepo constructs a client record repository.
func NewClientRepo(db *DB) *ClientRepo { return &ClientRepo{db: db} }

// Create inserts a client record. An unknown user maps to ErrNotFound.
func (r *ClientRepo) Create(ctx context.Context, c *model.ClientRecord) error {
	const q = `
INSERT INTO client_records (
  client_id, user_id, queue_encryption_key, ratchet,
  credential, credential_signature, credential_not_before, credential_not_after, signer_fingerprint,
  activity_time, remaining_tokens
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := r.db.Pool.Exec(ctx, q,
		c.ClientID, c.UserID, c.QueueEncryptionKey, c.Ratchet,
		c.Credential.Payload, c.Credential.Signature, c.Credential.NotBefore, c.Credential.NotAfter, c.Credential.SignerFingerprint,
		c.ActivityTime, c.RemainingTokens,
	)
	switch {
	case isForeignKeyViolation(err):
		return errs.ErrNotFound
	case isUniqueViolation(err):
		return errs.ErrAlreadyExists
	}
	return err
}

// Get loads a client record by ID.
func (r *ClientRepo) Get(ctx context.Context, id uuid.UUID) (*model.ClientRecord, error) {
	const q = `
SELECT client_id, user_id, queue_encryption_key, ratchet,
       credential, credential_signature, credential_not_before, credential_not_after, signer_fingerprint,
       activity_time, remaining_tokens
FROM client_records WHERE client_id=$1`
	var c model.ClientRecord
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(
		&c.ClientID, &c.UserID, &c.QueueEncryptionKey, &c.Ratchet,
		&c.Credential.Payload, &c.Credential.Signature, &c.Credential.NotBefore, &c.Credential.NotAfter, &c.Credential.SignerFingerprint,
		&c.ActivityTime, &c.RemainingTokens,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// UpdateCredential overwrites the credential, activity time and token budget.
func (r *ClientRepo) UpdateCredential(ctx context.Context, id uuid.UUID, cred model.Credential, activity time.Time, remainingTokens int32) error {
	const q = `
UPDATE client_records
SET credential=$2, credential_signature=$3, credential_not_before=$4, credential_not_after=$5,
    signer_fingerprint=$6, activity_time=$7, remaining_tokens=$8
WHERE client_id=$1`
	ct, err := r.db.Pool.Exec(ctx, q, id,
		cred.Payload, cred.Signature, cred.NotBefore, cred.NotAfter, cred.SignerFingerprint,
		activity, remainingTokens,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// UpdateQueueState stores a new queue encryption key and ratchet.
func (r *ClientRepo) UpdateQueueState(ctx context.Context, id uuid.UUID, encryptionKey, ratchet []byte) error {
	const q = `UPDATE client_records SET queue_encryption_key=$2, ratchet=$3 WHERE client_id=$1`
	ct, err := r.db.Pool.Exec(ctx, q, id, encryptionKey, ratchet)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes the client together with its pools and its queued
// messages. The queue counter is kept so sequence numbers of the queue id
// are never handed out twice.
func (r *ClientRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM connection_packages WHERE owner_id=$1`, id.Bytes()); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM queue_messages WHERE queue_id=$1`, id); err != nil {
			return err
		}
		// key_packages go with the record via ON DELETE CASCADE
		ct, err := tx.Exec(ctx, `DELETE FROM client_records WHERE client_id=$1`, id)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}

package postgres

import (
	"context"
	"sort"
	"time"

	"github.com/and161185/keyqueue/internal/errs"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/gofrs/uuid/v5"
)

// HandleQueueRepo implements HandleQueueRepository using PostgreSQL.
type HandleQueueRepo struct{ db *DB }

// NewHandleQueueRepo constructs a handle mailbox repository.
func NewHandleQueueRepo(db *DB) *HandleQueueRepo { return &HandleQueueRepo{db: db} }

// Enqueue stores a message for the handle.
func (r *HandleQueueRepo) Enqueue(ctx context.Context, hash model.HandleHash, payload model.Ciphertext) (uuid.UUID, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	const q = `INSERT INTO handle_queue_messages (message_id, hash, payload) VALUES ($1, $2, $3)`
	if _, err = r.db.Pool.Exec(ctx, q, id, hash.Bytes(), []byte(payload)); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Fetch claims up to limit messages not already claimed by fetcher. Claimed
// rows keep their payload; deletion is left to Ack and retention.
func (r *HandleQueueRepo) Fetch(ctx context.Context, hash model.HandleHash, fetcher uuid.UUID, limit int) ([]model.HandleMessage, error) {
	const q = `
WITH claimed AS (
  SELECT message_id FROM handle_queue_messages
  WHERE hash=$1 AND (fetched_by IS NULL OR fetched_by <> $2)
  ORDER BY created_at ASC
  LIMIT $3
  FOR UPDATE SKIP LOCKED
)
UPDATE handle_queue_messages q SET fetched_by=$2
FROM claimed c
WHERE q.message_id=c.message_id
RETURNING q.message_id, q.created_at, q.payload`
	rows, err := r.db.Pool.Query(ctx, q, hash.Bytes(), fetcher, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.HandleMessage
	for rows.Next() {
		m := model.HandleMessage{Hash: hash, FetchedBy: uuid.NullUUID{UUID: fetcher, Valid: true}}
		var payload []byte
		if err = rows.Scan(&m.MessageID, &m.CreatedAt, &payload); err != nil {
			return nil, err
		}
		m.Payload = payload
		out = append(out, m)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	// UPDATE .. RETURNING does not preserve the CTE order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Ack deletes a message claimed by claimer.
func (r *HandleQueueRepo) Ack(ctx context.Context, messageID, claimer uuid.UUID) error {
	const q = `DELETE FROM handle_queue_messages WHERE message_id=$1 AND fetched_by=$2`
	ct, err := r.db.Pool.Exec(ctx, q, messageID, claimer)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// PurgeOlderThan deletes messages created before cutoff, claimed or not.
func (r *HandleQueueRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := r.db.Pool.Exec(ctx, `DELETE FROM handle_queue_messages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

package postgres

import (
	"context"

	"github.com/and161185/keyqueue/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// QueueRepo implements QueueRepository using PostgreSQL.
type QueueRepo struct{ db *DB }

// NewQueueRepo constructs a queue repository.
func NewQueueRepo(db *DB) *QueueRepo { return &QueueRepo{db: db} }

// Enqueue allocates the next sequence number from the queue counter and
// inserts the message with it in the same transaction. The counter row lock
// serializes concurrent enqueues to one queue.
func (r *QueueRepo) Enqueue(ctx context.Context, queueID uuid.UUID, payload model.Ciphertext) (seq int64, err error) {
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		const next = `
INSERT INTO queue_counters (queue_id, next_sequence) VALUES ($1, 1)
ON CONFLICT (queue_id) DO UPDATE SET next_sequence = queue_counters.next_sequence + 1
RETURNING next_sequence - 1`
		if err := tx.QueryRow(ctx, next, queueID).Scan(&seq); err != nil {
			return err
		}
		const ins = `INSERT INTO queue_messages (queue_id, sequence_number, payload) VALUES ($1, $2, $3)`
		_, err := tx.Exec(ctx, ins, queueID, seq, []byte(payload))
		return err
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// Fetch trims messages below from, then reads up to limit messages at or
// above it. The pending count excludes the returned batch.
func (r *QueueRepo) Fetch(ctx context.Context, queueID uuid.UUID, from int64, limit int) (model.QueueBatch, error) {
	var batch model.QueueBatch
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		const trim = `
DELETE FROM queue_messages
WHERE (queue_id, sequence_number) IN (
  SELECT queue_id, sequence_number FROM queue_messages
  WHERE queue_id=$1 AND sequence_number < $2
  FOR UPDATE SKIP LOCKED
)`
		if _, err := tx.Exec(ctx, trim, queueID, from); err != nil {
			return err
		}

		const sel = `
SELECT sequence_number, payload FROM queue_messages
WHERE queue_id=$1 AND sequence_number >= $2
ORDER BY sequence_number ASC
LIMIT $3`
		rows, err := tx.Query(ctx, sel, queueID, from, limit)
		if err != nil {
			return err
		}
		for rows.Next() {
			m := model.QueueMessage{QueueID: queueID}
			var payload []byte
			if err = rows.Scan(&m.SequenceNumber, &payload); err != nil {
				rows.Close()
				return err
			}
			m.Payload = payload
			batch.Messages = append(batch.Messages, m)
		}
		rows.Close()
		if err = rows.Err(); err != nil {
			return err
		}

		const count = `SELECT count(*) FROM queue_messages WHERE queue_id=$1 AND sequence_number >= $2`
		var total int64
		if err = tx.QueryRow(ctx, count, queueID, from).Scan(&total); err != nil {
			return err
		}
		batch.Remaining = total - int64(len(batch.Messages))
		if batch.Remaining < 0 {
			batch.Remaining = 0
		}
		return nil
	})
	if err != nil {
		return model.QueueBatch{}, err
	}
	return batch, nil
}

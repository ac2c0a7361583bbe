package repository

import (
	"context"
	"time"

	"github.com/and161185/keyqueue/internal/model"
	"github.com/gofrs/uuid/v5"
)

// QueueRepository is the sequence-numbered per-client message queue.
type QueueRepository interface {
	// Enqueue allocates the next sequence number and stores the message with it.
	Enqueue(ctx context.Context, queueID uuid.UUID, payload model.Ciphertext) (int64, error)
	// Fetch deletes messages below from, then returns up to limit messages at
	// or above it in ascending order together with the pending count.
	Fetch(ctx context.Context, queueID uuid.UUID, from int64, limit int) (model.QueueBatch, error)
}

// HandleQueueRepository is the claim-based mailbox of pseudonymous handles.
type HandleQueueRepository interface {
	// Enqueue stores a message for the handle and returns its id.
	Enqueue(ctx context.Context, hash model.HandleHash, payload model.Ciphertext) (uuid.UUID, error)
	// Fetch claims up to limit messages not already claimed by fetcher, oldest first.
	Fetch(ctx context.Context, hash model.HandleHash, fetcher uuid.UUID, limit int) ([]model.HandleMessage, error)
	// Ack deletes a message currently claimed by claimer. Anything else,
	// including an unknown id, is errs.ErrNotFound.
	Ack(ctx context.Context, messageID, claimer uuid.UUID) error
	// PurgeOlderThan deletes messages created before cutoff.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

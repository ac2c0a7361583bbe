package repository

import (
	"context"
	"time"

	"github.com/and161185/keyqueue/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ClientRepository provides keyed read-modify-write access to client records.
type ClientRepository interface {
	// Create inserts a new client record.
	Create(ctx context.Context, c *model.ClientRecord) error
	// Get loads a client record by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.ClientRecord, error)
	// UpdateCredential overwrites credential, activity time and token budget.
	UpdateCredential(ctx context.Context, id uuid.UUID, cred model.Credential, activity time.Time, remainingTokens int32) error
	// UpdateQueueState stores a new queue encryption key and ratchet.
	UpdateQueueState(ctx context.Context, id uuid.UUID, encryptionKey, ratchet []byte) error
	// Delete removes the client with its key packages, connection packages and queue.
	Delete(ctx context.Context, id uuid.UUID) error
}

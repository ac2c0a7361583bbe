package repository

import (
	"context"

	"github.com/and161185/keyqueue/internal/model"
	"github.com/gofrs/uuid/v5"
)

// KeyPackageRepository is a per-client pool of one-time key packages with an
// optional last-resort fallback.
type KeyPackageRepository interface {
	// Replenish appends packages and, when lastResort is non-nil, replaces the
	// client's last-resort package.
	Replenish(ctx context.Context, clientID uuid.UUID, packages []model.Ciphertext, lastResort model.Ciphertext) error
	// ConsumeOne hands out one package of the client. Ordinary packages are
	// deleted (Consumed); the last-resort package is kept (Borrowed).
	ConsumeOne(ctx context.Context, clientID uuid.UUID) (model.KeyPackageResult, error)
	// ConsumeForRecipients applies ConsumeOne per client in one transaction.
	// Clients without an available package get an Unavailable result.
	ConsumeForRecipients(ctx context.Context, clientIDs []uuid.UUID) ([]model.KeyPackageResult, error)
	// Count returns the number of ordinary packages left for the client.
	Count(ctx context.Context, clientID uuid.UUID) (int64, error)
}

// ConnectionPackageRepository is a per-owner pool of connection packages that
// never hands out its last package for deletion.
type ConnectionPackageRepository interface {
	// Replenish appends packages to the owner's pool.
	Replenish(ctx context.Context, owner model.OwnerID, packages []model.Ciphertext) error
	// ConsumeOne returns one package, deleting it only if another remains.
	ConsumeOne(ctx context.Context, owner model.OwnerID) (model.ConnectionPackageResult, error)
	// Count returns the number of packages stored for the owner.
	Count(ctx context.Context, owner model.OwnerID) (int64, error)
}

// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/keyqueue/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides access to user records and their friendship tokens.
type UserRepository interface {
	// CreateUser inserts a new user record.
	CreateUser(ctx context.Context, u *model.UserRecord) error
	// GetUser loads a user record by ID.
	GetUser(ctx context.Context, id uuid.UUID) (*model.UserRecord, error)
	// UserIDByFriendshipToken resolves a friendship token to its user.
	UserIDByFriendshipToken(ctx context.Context, token model.FriendshipToken) (uuid.UUID, error)
	// ClientIDs lists the clients owned by a user.
	ClientIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

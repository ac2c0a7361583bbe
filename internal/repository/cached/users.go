// Package cached decorates repositories with in-process caches.
package cached

import (
	"context"

	"github.com/and161185/keyqueue/internal/model"
	"github.com/and161185/keyqueue/internal/repository"
	"github.com/gofrs/uuid/v5"
	lru "github.com/hashicorp/golang-lru/v2"
)

// UserRepo caches friendship token lookups of an underlying UserRepository.
// Tokens never change owner, so entries are only evicted by size.
type UserRepo struct {
	repository.UserRepository
	tokens *lru.Cache[string, uuid.UUID]
}

// NewUserRepo wraps next with an LRU of the given size.
func NewUserRepo(next repository.UserRepository, size int) (*UserRepo, error) {
	c, err := lru.New[string, uuid.UUID](size)
	if err != nil {
		return nil, err
	}
	return &UserRepo{UserRepository: next, tokens: c}, nil
}

// UserIDByFriendshipToken serves from cache, falling back to the wrapped repository.
func (r *UserRepo) UserIDByFriendshipToken(ctx context.Context, token model.FriendshipToken) (uuid.UUID, error) {
	if id, ok := r.tokens.Get(string(token)); ok {
		return id, nil
	}
	id, err := r.UserRepository.UserIDByFriendshipToken(ctx, token)
	if err != nil {
		return uuid.Nil, err
	}
	r.tokens.Add(string(token), id)
	return id, nil
}

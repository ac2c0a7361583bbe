package memory

import (
	"bytes"
	"context"
	"slices"

	"github.com/and161185/keyqueue/internal/errs"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepo implements UserRepository in memory.
type UserRepo struct{ s *Store }

// CreateUser inserts a user; friendship tokens are unique.
func (r *UserRepo) CreateUser(_ context.Context, u *model.UserRecord) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.UserID]; ok {
		return errs.ErrAlreadyExists
	}
	tok := string(u.FriendshipToken)
	if _, ok := s.tokens[tok]; ok {
		return errs.ErrAlreadyExists
	}
	rec := model.UserRecord{
		UserID:          u.UserID,
		FriendshipToken: model.FriendshipToken(cloneBytes(u.FriendshipToken)),
		CreatedAt:       u.CreatedAt,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.users[u.UserID] = rec
	s.tokens[tok] = u.UserID
	return nil
}

// GetUser returns a copy of the user record.
func (r *UserRepo) GetUser(_ context.Context, id uuid.UUID) (*model.UserRecord, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}

// UserIDByFriendshipToken resolves a token.
func (r *UserRepo) UserIDByFriendshipToken(_ context.Context, token model.FriendshipToken) (uuid.UUID, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tokens[string(token)]
	if !ok {
		return uuid.Nil, errs.ErrNotFound
	}
	return id, nil
}

// ClientIDs lists the user's clients ordered by id bytes.
func (r *UserRepo) ClientIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	s := r.s
	s.mu.RLock()
	var out []uuid.UUID
	for id, c := range s.clients {
		if c.UserID == userID {
			out = append(out, id)
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return out, nil
}

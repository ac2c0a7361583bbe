package service

import (
	"context"
	"time"

	"github.com/and161185/keyqueue/internal/crypto"
	"github.com/and161185/keyqueue/internal/metrics"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/and161185/keyqueue/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// HandleService is the claim-based mailbox of pseudonymous handles.
type HandleService interface {
	// ResolveHandle validates a plaintext handle and returns its hash.
	ResolveHandle(plaintext string) (model.HandleHash, error)
	// Enqueue stores a contact request for the handle.
	Enqueue(ctx context.Context, hash model.HandleHash, payload model.Ciphertext) (uuid.UUID, error)
	// Fetch claims messages for fetcher without deleting them.
	Fetch(ctx context.Context, hash model.HandleHash, fetcher uuid.UUID, limit int) ([]model.HandleMessage, error)
	// Ack deletes a message claimed by claimer.
	Ack(ctx context.Context, messageID, claimer uuid.UUID) error
	// Purge deletes messages older than retention.
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

type HandleServiceImpl struct {
	repo     repository.HandleQueueRepository
	maxFetch int
	m        *metrics.Metrics
	now      func() time.Time
}

// NewHandleService constructs HandleService.
func NewHandleService(repo repository.HandleQueueRepository, maxFetch int, m *metrics.Metrics) *HandleServiceImpl {
	if maxFetch <= 0 {
		maxFetch = MaxFetchLimit
	}
	return &HandleServiceImpl{repo: repo, maxFetch: maxFetch, m: m, now: time.Now}
}

// ResolveHandle hashes a plaintext handle.
func (s *HandleServiceImpl) ResolveHandle(plaintext string) (model.HandleHash, error) {
	return crypto.HashHandle(plaintext)
}

// Enqueue stores a message for the handle.
func (s *HandleServiceImpl) Enqueue(ctx context.Context, hash model.HandleHash, payload model.Ciphertext) (uuid.UUID, error) {
	if hash == (model.HandleHash{}) {
		return uuid.Nil, invalid("empty handle hash")
	}
	if len(payload) == 0 {
		return uuid.Nil, invalid("empty payload")
	}
	id, err := s.repo.Enqueue(ctx, hash, payload)
	if err != nil {
		return uuid.Nil, err
	}
	s.m.Enqueued("handle")
	return id, nil
}

// Fetch claims up to limit messages for fetcher.
func (s *HandleServiceImpl) Fetch(ctx context.Context, hash model.HandleHash, fetcher uuid.UUID, limit int) ([]model.HandleMessage, error) {
	if hash == (model.HandleHash{}) {
		return nil, invalid("empty handle hash")
	}
	if fetcher == uuid.Nil {
		return nil, invalid("empty fetcher id")
	}
	msgs, err := s.repo.Fetch(ctx, hash, fetcher, clampLimit(limit, s.maxFetch))
	if err != nil {
		return nil, err
	}
	s.m.HandleClaimed(len(msgs))
	return msgs, nil
}

// Ack deletes a processed message. Only the client that holds the claim
// may acknowledge it.
func (s *HandleServiceImpl) Ack(ctx context.Context, messageID, claimer uuid.UUID) error {
	if messageID == uuid.Nil {
		return invalid("empty message id")
	}
	if claimer == uuid.Nil {
		return invalid("empty claimer id")
	}
	return s.repo.Ack(ctx, messageID, claimer)
}

// Purge deletes messages created more than retention ago.
func (s *HandleServiceImpl) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, invalid("non-positive retention")
	}
	n, err := s.repo.PurgeOlderThan(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	s.m.Purged(n)
	return n, nil
}

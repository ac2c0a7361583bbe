package service

import (
	"context"

	"github.com/and161185/keyqueue/internal/metrics"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/and161185/keyqueue/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// Fetch limits applied when the caller passes none or too many.
const (
	DefaultFetchLimit = 100
	MaxFetchLimit     = 1000
)

// QueueService is the client message queue.
type QueueService interface {
	// Enqueue appends a message and returns its sequence number.
	Enqueue(ctx context.Context, queueID uuid.UUID, payload model.Ciphertext) (int64, error)
	// Fetch trims below from and returns the next batch.
	Fetch(ctx context.Context, queueID uuid.UUID, from int64, limit int) (model.QueueBatch, error)
}

type QueueServiceImpl struct {
	repo     repository.QueueRepository
	maxFetch int
	m        *metrics.Metrics
}

// NewQueueService constructs QueueService; maxFetch caps the batch size.
func NewQueueService(repo repository.QueueRepository, maxFetch int, m *metrics.Metrics) *QueueServiceImpl {
	if maxFetch <= 0 {
		maxFetch = MaxFetchLimit
	}
	return &QueueServiceImpl{repo: repo, maxFetch: maxFetch, m: m}
}

// Enqueue validates and appends a message.
func (s *QueueServiceImpl) Enqueue(ctx context.Context, queueID uuid.UUID, payload model.Ciphertext) (int64, error) {
	if queueID == uuid.Nil {
		return 0, invalid("empty queue id")
	}
	if len(payload) == 0 {
		return 0, invalid("empty payload")
	}
	seq, err := s.repo.Enqueue(ctx, queueID, payload)
	if err != nil {
		return 0, err
	}
	s.m.Enqueued("client")
	return seq, nil
}

// Fetch normalizes the limit and delegates to the repository.
func (s *QueueServiceImpl) Fetch(ctx context.Context, queueID uuid.UUID, from int64, limit int) (model.QueueBatch, error) {
	if queueID == uuid.Nil {
		return model.QueueBatch{}, invalid("empty queue id")
	}
	if from < 0 {
		return model.QueueBatch{}, invalid("negative sequence number")
	}
	limit = clampLimit(limit, s.maxFetch)
	b, err := s.repo.Fetch(ctx, queueID, from, limit)
	if err != nil {
		return model.QueueBatch{}, err
	}
	s.m.Fetched(len(b.Messages))
	return b, nil
}

func clampLimit(limit, ceiling int) int {
	switch {
	case limit <= 0:
		return min(DefaultFetchLimit, ceiling)
	case limit > ceiling:
		return ceiling
	default:
		return limit
	}
}

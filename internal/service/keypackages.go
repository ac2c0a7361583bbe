package service

import (
	"context"
	"errors"

	"github.com/and161185/keyqueue/internal/errs"
	"github.com/and161185/keyqueue/internal/metrics"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/and161185/keyqueue/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// KeyPackageService publishes and hands out key packages.
type KeyPackageService interface {
	// Replenish appends packages and optionally replaces the last-resort package.
	Replenish(ctx context.Context, clientID uuid.UUID, packages []model.Ciphertext, lastResort model.Ciphertext) error
	// Consume hands out one package of a client.
	Consume(ctx context.Context, clientID uuid.UUID) (model.KeyPackageResult, error)
	// ConsumeForUser resolves a friendship token and consumes one package
	// for every client of that user.
	ConsumeForUser(ctx context.Context, token model.FriendshipToken) ([]model.KeyPackageResult, error)
	// ConsumeForRecipients consumes one package for each listed client.
	ConsumeForRecipients(ctx context.Context, clientIDs []uuid.UUID) ([]model.KeyPackageResult, error)
}

type KeyPackageServiceImpl struct {
	users    repository.UserRepository
	repo     repository.KeyPackageRepository
	maxBatch int
	m        *metrics.Metrics
}

// NewKeyPackageService constructs KeyPackageService with batch limits.
func NewKeyPackageService(users repository.UserRepository, repo repository.KeyPackageRepository, maxBatch int, m *metrics.Metrics) *KeyPackageServiceImpl {
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &KeyPackageServiceImpl{users: users, repo: repo, maxBatch: maxBatch, m: m}
}

// Replenish validates the batch and delegates to the repository.
func (s *KeyPackageServiceImpl) Replenish(ctx context.Context, clientID uuid.UUID, packages []model.Ciphertext, lastResort model.Ciphertext) error {
	if clientID == uuid.Nil {
		return invalid("empty client id")
	}
	if len(packages) == 0 && lastResort == nil {
		return nil
	}
	if len(packages) > s.maxBatch {
		return invalid("batch too large (%d > %d)", len(packages), s.maxBatch)
	}
	for i := range packages {
		if len(packages[i]) == 0 {
			return invalid("package[%d] empty", i)
		}
	}
	if lastResort != nil && len(lastResort) == 0 {
		return invalid("empty last resort package")
	}
	return s.repo.Replenish(ctx, clientID, packages, lastResort)
}

// Consume hands out one package; Exhausted and Contended surface as errors.
func (s *KeyPackageServiceImpl) Consume(ctx context.Context, clientID uuid.UUID) (model.KeyPackageResult, error) {
	if clientID == uuid.Nil {
		return model.KeyPackageResult{}, invalid("empty client id")
	}
	res, err := s.repo.ConsumeOne(ctx, clientID)
	switch {
	case errors.Is(err, errs.ErrExhausted):
		s.m.Consumed("key", "exhausted")
	case errors.Is(err, errs.ErrContended):
		s.m.Consumed("key", "contended")
	case err == nil:
		s.m.Consumed("key", res.Outcome.String())
	}
	return res, err
}

// ConsumeForUser resolves the user's clients and consumes for all of them in
// one batch. A user without clients yields an empty result.
func (s *KeyPackageServiceImpl) ConsumeForUser(ctx context.Context, token model.FriendshipToken) ([]model.KeyPackageResult, error) {
	if len(token) == 0 {
		return nil, invalid("empty friendship token")
	}
	uid, err := s.users.UserIDByFriendshipToken(ctx, token)
	if err != nil {
		return nil, err
	}
	ids, err := s.users.ClientIDs(ctx, uid)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []model.KeyPackageResult{}, nil
	}
	return s.consumeBatch(ctx, ids)
}

// ConsumeForRecipients validates the list and consumes in one batch.
func (s *KeyPackageServiceImpl) ConsumeForRecipients(ctx context.Context, clientIDs []uuid.UUID) ([]model.KeyPackageResult, error) {
	if len(clientIDs) == 0 {
		return []model.KeyPackageResult{}, nil
	}
	if len(clientIDs) > s.maxBatch {
		return nil, invalid("too many recipients (%d > %d)", len(clientIDs), s.maxBatch)
	}
	for i, id := range clientIDs {
		if id == uuid.Nil {
			return nil, invalid("recipient[%d] empty id", i)
		}
	}
	return s.consumeBatch(ctx, clientIDs)
}

func (s *KeyPackageServiceImpl) consumeBatch(ctx context.Context, ids []uuid.UUID) ([]model.KeyPackageResult, error) {
	res, err := s.repo.ConsumeForRecipients(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, r := range res {
		s.m.Consumed("key", r.Outcome.String())
	}
	return res, nil
}

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

// ConnectionPackageService publishes and hands out connection packages.
type ConnectionPackageService interface {
	// Replenish appends packages to the owner's pool.
	Replenish(ctx context.Context, owner model.OwnerID, packages []model.Ciphertext) error
	// Consume returns one package of the owner; the last one is borrowed.
	Consume(ctx context.Context, owner model.OwnerID) (model.ConnectionPackageResult, error)
}

type ConnectionPackageServiceImpl struct {
	repo     repository.ConnectionPackageRepository
	maxBatch int
	m        *metrics.Metrics
}

// NewConnectionPackageService constructs ConnectionPackageService with batch limits.
func NewConnectionPackageService(repo repository.ConnectionPackageRepository, maxBatch int, m *metrics.Metrics) *ConnectionPackageServiceImpl {
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &ConnectionPackageServiceImpl{repo: repo, maxBatch: maxBatch, m: m}
}

// Replenish validates the owner and batch and delegates to the repository.
func (s *ConnectionPackageServiceImpl) Replenish(ctx context.Context, owner model.OwnerID, packages []model.Ciphertext) error {
	if err := validateOwner(owner); err != nil {
		return err
	}
	if len(packages) == 0 {
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
	return s.repo.Replenish(ctx, owner, packages)
}

// Consume returns one package of the owner.
func (s *ConnectionPackageServiceImpl) Consume(ctx context.Context, owner model.OwnerID) (model.ConnectionPackageResult, error) {
	if err := validateOwner(owner); err != nil {
		return model.ConnectionPackageResult{}, err
	}
	res, err := s.repo.ConsumeOne(ctx, owner)
	switch {
	case errors.Is(err, errs.ErrExhausted):
		s.m.Consumed("connection", "exhausted")
	case errors.Is(err, errs.ErrContended):
		s.m.Consumed("connection", "contended")
	case err == nil:
		s.m.Consumed("connection", res.Outcome.String())
	}
	return res, err
}

// validateOwner accepts client ids and handle hashes.
func validateOwner(o model.OwnerID) error {
	switch len(o) {
	case uuid.Size:
		if uuid.FromBytesOrNil(o) == uuid.Nil {
			return invalid("empty owner id")
		}
		return nil
	case model.HandleHashLen:
		return nil
	default:
		return invalid("owner id must be %d or %d bytes", uuid.Size, model.HandleHashLen)
	}
}

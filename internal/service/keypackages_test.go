package service

import (
	"context"
	"errors"
	"testing"

	"github.com/and161185/keyqueue/internal/errs"
	"github.com/and161185/keyqueue/internal/metrics"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/gofrs/uuid/v5"
)

func TestNewKeyPackageService_DefaultMaxBatch(t *testing.T) {
	t.Parallel()
	s := NewKeyPackageService(&fakeUsers{}, &fakeKeyPackages{}, 0, nil)
	if s.maxBatch != 1000 {
		t.Fatalf("default maxBatch = %d", s.maxBatch)
	}
}

func TestKeyPackages_Replenish_Validation(t *testing.T) {
	t.Parallel()
	repo := &fakeKeyPackages{}
	s := NewKeyPackageService(&fakeUsers{}, repo, 2, nil)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	cases := []struct {
		name string
		id   uuid.UUID
		pkgs []model.Ciphertext
		lr   model.Ciphertext
	}{
		{"nil client", uuid.Nil, []model.Ciphertext{model.Ciphertext("a")}, nil},
		{"too many", id, []model.Ciphertext{model.Ciphertext("a"), model.Ciphertext("b"), model.Ciphertext("c")}, nil},
		{"empty package", id, []model.Ciphertext{model.Ciphertext("")}, nil},
		{"empty last resort", id, nil, model.Ciphertext{}},
	}
	for _, c := range cases {
		if err := s.Replenish(ctx, c.id, c.pkgs, c.lr); !errors.Is(err, errs.ErrInvalidArgument) {
			t.Fatalf("%s: want invalid argument, got %v", c.name, err)
		}
	}
	if repo.replenished != 0 {
		t.Fatalf("repo must not be called on invalid input")
	}

	if err := s.Replenish(ctx, id, nil, nil); err != nil {
		t.Fatalf("empty replenish: %v", err)
	}
	if err := s.Replenish(ctx, id, []model.Ciphertext{model.Ciphertext("a")}, model.Ciphertext("lr")); err != nil {
		t.Fatalf("Replenish: %v", err)
	}
	if repo.replenished != 1 || string(repo.lastResort) != "lr" {
		t.Fatalf("repo not called as expected: %+v", repo)
	}
}

func TestKeyPackages_Consume_RecordsOutcome(t *testing.T) {
	t.Parallel()
	repo := &fakeKeyPackages{consumeRes: model.KeyPackageResult{Outcome: model.Borrowed}}
	s := NewKeyPackageService(&fakeUsers{}, repo, 0, metrics.New())
	id := uuid.Must(uuid.NewV4())

	res, err := s.Consume(context.Background(), id)
	if err != nil || res.Outcome != model.Borrowed || res.ClientID != id {
		t.Fatalf("Consume: %+v %v", res, err)
	}

	repo.consumeErr = errs.ErrExhausted
	if _, err := s.Consume(context.Background(), id); !errors.Is(err, errs.ErrExhausted) {
		t.Fatalf("want exhausted, got %v", err)
	}
	if _, err := s.Consume(context.Background(), uuid.Nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want invalid argument, got %v", err)
	}
}

func TestKeyPackages_ConsumeForUser(t *testing.T) {
	t.Parallel()
	uid := uuid.Must(uuid.NewV4())
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	users := &fakeUsers{
		users:   map[uuid.UUID]model.UserRecord{uid: {UserID: uid, FriendshipToken: model.FriendshipToken("ft")}},
		clients: map[uuid.UUID][]uuid.UUID{uid: {a, b}},
	}
	repo := &fakeKeyPackages{batch: []model.KeyPackageResult{
		{ClientID: a, Outcome: model.Consumed},
		{ClientID: b, Outcome: model.Unavailable},
	}}
	s := NewKeyPackageService(users, repo, 0, nil)
	ctx := context.Background()

	res, err := s.ConsumeForUser(ctx, model.FriendshipToken("ft"))
	if err != nil || len(res) != 2 {
		t.Fatalf("ConsumeForUser: %+v %v", res, err)
	}
	if len(repo.gotBatchIDs) != 2 || repo.gotBatchIDs[0] != a {
		t.Fatalf("batch ids: %v", repo.gotBatchIDs)
	}

	if _, err := s.ConsumeForUser(ctx, model.FriendshipToken("unknown")); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
	if _, err := s.ConsumeForUser(ctx, nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want invalid argument, got %v", err)
	}
}

func TestKeyPackages_ConsumeForRecipients_Validation(t *testing.T) {
	t.Parallel()
	repo := &fakeKeyPackages{batchErr: errors.New("db down")}
	s := NewKeyPackageService(&fakeUsers{}, repo, 1, nil)
	ctx := context.Background()

	if res, err := s.ConsumeForRecipients(ctx, nil); err != nil || len(res) != 0 {
		t.Fatalf("empty recipients: %v %v", res, err)
	}
	two := []uuid.UUID{uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())}
	if _, err := s.ConsumeForRecipients(ctx, two); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want invalid argument on oversize batch, got %v", err)
	}
	if _, err := s.ConsumeForRecipients(ctx, []uuid.UUID{uuid.Nil}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want invalid argument on nil id, got %v", err)
	}
	if _, err := s.ConsumeForRecipients(ctx, two[:1]); err == nil {
		t.Fatalf("want propagated repo error")
	}
}

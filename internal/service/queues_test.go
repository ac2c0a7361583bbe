package service

import (
	"context"
	"errors"
	"testing"

	"github.com/and161185/keyqueue/internal/errs"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/gofrs/uuid/v5"
)

func TestQueues_Enqueue(t *testing.T) {
	t.Parallel()
	repo := &fakeQueues{}
	s := NewQueueService(repo, 0, nil)
	ctx := context.Background()
	q := uuid.Must(uuid.NewV4())

	if _, err := s.Enqueue(ctx, uuid.Nil, model.Ciphertext("x")); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want invalid argument on nil queue, got %v", err)
	}
	if _, err := s.Enqueue(ctx, q, nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want invalid argument on empty payload, got %v", err)
	}
	for want := int64(0); want < 3; want++ {
		seq, err := s.Enqueue(ctx, q, model.Ciphertext("x"))
		if err != nil || seq != want {
			t.Fatalf("Enqueue: seq=%d err=%v", seq, err)
		}
	}
}

func TestQueues_Fetch_LimitClamping(t *testing.T) {
	t.Parallel()
	repo := &fakeQueues{}
	s := NewQueueService(repo, 500, nil)
	ctx := context.Background()
	q := uuid.Must(uuid.NewV4())

	for _, c := range []struct{ in, want int }{
		{0, DefaultFetchLimit},
		{-3, DefaultFetchLimit},
		{10, 10},
		{5000, 500},
	} {
		if _, err := s.Fetch(ctx, q, 7, c.in); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if repo.gotLimit != c.want || repo.gotFrom != 7 {
			t.Fatalf("limit %d: got %d (from %d)", c.in, repo.gotLimit, repo.gotFrom)
		}
	}

	if _, err := s.Fetch(ctx, q, -1, 1); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want invalid argument on negative from, got %v", err)
	}
	repo.fetchErr = errors.New("db down")
	if _, err := s.Fetch(ctx, q, 0, 1); err == nil {
		t.Fatalf("want propagated repo error")
	}
}

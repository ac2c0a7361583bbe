// Package memory is an in-process implementation of every repository
// interface and of the token limiter. It mirrors the postgres semantics:
// per-owner critical sections guarded by striped mutexes stand in for row
// locks, and no critical section performs I/O. Consumers wait for a busy
// stripe at most the contention window and then report errs.ErrContended,
// the way a SKIP LOCKED query gives up on rows held elsewhere.
package memory

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/and161185/keyqueue/internal/errs"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/cespare/xxhash/v2"
	"github.com/gofrs/uuid/v5"
)

const (
	stripeCount = 64

	// DefaultContentionWait bounds how long a consumer waits for a stripe.
	DefaultContentionWait = 250 * time.Millisecond

	retryStep = 200 * time.Microsecond
)

// Store holds all state in maps. mu guards the maps themselves; the
// per-owner data behind them is mutated only while holding that owner's
// stripe. Lock order is always stripes first, then mu.
type Store struct {
	stripes [stripeCount]sync.Mutex
	mu      sync.RWMutex

	users       map[uuid.UUID]model.UserRecord
	tokens      map[string]uuid.UUID
	clients     map[uuid.UUID]*model.ClientRecord
	keyPools    map[uuid.UUID]*keyPool
	connPools   map[string][]model.ConnectionPackage
	queues      map[uuid.UUID]*queue
	mailboxes   map[model.HandleHash][]model.HandleMessage
	handleIndex map[uuid.UUID]model.HandleHash

	seq     atomic.Int64
	now     func() time.Time
	maxWait time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithContentionWait sets how long consumers wait for a busy pool before
// giving up with errs.ErrContended.
func WithContentionWait(d time.Duration) Option {
	return func(s *Store) { s.maxWait = d }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		users:       make(map[uuid.UUID]model.UserRecord),
		tokens:      make(map[string]uuid.UUID),
		clients:     make(map[uuid.UUID]*model.ClientRecord),
		keyPools:    make(map[uuid.UUID]*keyPool),
		connPools:   make(map[string][]model.ConnectionPackage),
		queues:      make(map[uuid.UUID]*queue),
		mailboxes:   make(map[model.HandleHash][]model.HandleMessage),
		handleIndex: make(map[uuid.UUID]model.HandleHash),
		now:         time.Now,
		maxWait:     DefaultContentionWait,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) nextID() int64 { return s.seq.Add(1) }

// Users returns the UserRepository view of the store.
func (s *Store) Users() *UserRepo { return &UserRepo{s: s} }

// Clients returns the ClientRepository view of the store.
func (s *Store) Clients() *ClientRepo { return &ClientRepo{s: s} }

// KeyPackages returns the KeyPackageRepository view of the store.
func (s *Store) KeyPackages() *KeyPackageRepo { return &KeyPackageRepo{s: s} }

// ConnectionPackages returns the ConnectionPackageRepository view of the store.
func (s *Store) ConnectionPackages() *ConnectionPackageRepo { return &ConnectionPackageRepo{s: s} }

// Queues returns the QueueRepository view of the store.
func (s *Store) Queues() *QueueRepo { return &QueueRepo{s: s} }

// Handles returns the HandleQueueRepository view of the store.
func (s *Store) Handles() *HandleQueueRepo { return &HandleQueueRepo{s: s} }

// Limiter returns the token limiter view of the store.
func (s *Store) Limiter() *Limiter { return &Limiter{s: s} }

func stripeOf(key string) int { return int(xxhash.Sum64String(key) % stripeCount) }

func stripesOf(keys []string) []int {
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		idx = append(idx, stripeOf(k))
	}
	slices.Sort(idx)
	return slices.Compact(idx)
}

// lock acquires the stripes of all keys in index order and returns the
// matching unlock.
func (s *Store) lock(keys ...string) func() {
	idx := stripesOf(keys)
	for _, i := range idx {
		s.stripes[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			s.stripes[idx[j]].Unlock()
		}
	}
}

// acquire tries to take the stripes of keys until all are held, the
// contention window passes or ctx is done. It never blocks on a mutex, so
// stripes may be taken in any order. Between attempts everything taken is
// given back; only the final attempt may keep a partial set. The returned
// set reports which stripes are held and release frees exactly those.
func (s *Store) acquire(ctx context.Context, keys ...string) (held map[int]bool, release func()) {
	idx := stripesOf(keys)
	held = make(map[int]bool, len(idx))
	release = func() {
		for i := range held {
			s.stripes[i].Unlock()
		}
		clear(held)
	}

	deadline := time.Now().Add(s.maxWait)
	for {
		for _, i := range idx {
			if s.stripes[i].TryLock() {
				held[i] = true
			}
		}
		if len(held) == len(idx) || !time.Now().Before(deadline) || ctx.Err() != nil {
			return held, release
		}
		release()
		t := time.NewTimer(retryStep)
		select {
		case <-ctx.Done():
		case <-t.C:
		}
		t.Stop()
	}
}

// lockCtx is acquire for callers that need every stripe or nothing.
func (s *Store) lockCtx(ctx context.Context, keys ...string) (func(), error) {
	held, release := s.acquire(ctx, keys...)
	if len(held) == len(stripesOf(keys)) {
		return release, nil
	}
	release()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, errs.ErrContended
}

func clientKey(id uuid.UUID) string { return "c:" + string(id.Bytes()) }

func keyPoolKey(id uuid.UUID) string { return "k:" + string(id.Bytes()) }

func queueKey(id uuid.UUID) string { return "q:" + string(id.Bytes()) }

func ownerKey(o model.OwnerID) string { return "o:" + string(o) }

func handleKey(h model.HandleHash) string { return "h:" + string(h[:]) }

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

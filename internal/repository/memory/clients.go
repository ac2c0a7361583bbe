package memory

import (
	"context"
	"time"

	"github.com/and161185/keyqueue/internal/errs"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ClientRepo implements ClientRepository in memory.
type ClientRepo struct{ s *Store }

// Create inserts a client record owned by an existing user.
func (r *ClientRepo) Create(_ context.Context, c *model.ClientRecord) error {
	s := r.s
	unlock := s.lock(clientKey(c.ClientID))
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[c.UserID]; !ok {
		return errs.ErrNotFound
	}
	if _, ok := s.clients[c.ClientID]; ok {
		return errs.ErrAlreadyExists
	}
	rec := copyClient(c)
	s.clients[c.ClientID] = &rec
	return nil
}

// Get returns a copy of the client record.
func (r *ClientRepo) Get(_ context.Context, id uuid.UUID) (*model.ClientRecord, error) {
	s := r.s
	unlock := s.lock(clientKey(id))
	defer unlock()

	c := s.client(id)
	if c == nil {
		return nil, errs.ErrNotFound
	}
	rec := copyClient(c)
	return &rec, nil
}

// UpdateCredential overwrites credential, activity time and token budget.
func (r *ClientRepo) UpdateCredential(_ context.Context, id uuid.UUID, cred model.Credential, activity time.Time, remainingTokens int32) error {
	s := r.s
	unlock := s.lock(clientKey(id))
	defer unlock()

	c := s.client(id)
	if c == nil {
		return errs.ErrNotFound
	}
	c.Credential = copyCredential(cred)
	c.ActivityTime = activity
	c.RemainingTokens = max(remainingTokens, 0)
	return nil
}

// UpdateQueueState stores a new queue encryption key and ratchet.
func (r *ClientRepo) UpdateQueueState(_ context.Context, id uuid.UUID, encryptionKey, ratchet []byte) error {
	s := r.s
	unlock := s.lock(clientKey(id))
	defer unlock()

	c := s.client(id)
	if c == nil {
		return errs.ErrNotFound
	}
	c.QueueEncryptionKey = cloneBytes(encryptionKey)
	c.Ratchet = cloneBytes(ratchet)
	return nil
}

// Delete removes the client with its key packages, connection packages and
// queued messages. The queue keeps its next sequence number.
func (r *ClientRepo) Delete(_ context.Context, id uuid.UUID) error {
	s := r.s
	owner := model.ClientOwner(id)
	unlock := s.lock(clientKey(id), keyPoolKey(id), ownerKey(owner), queueKey(id))
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.clients, id)
	delete(s.keyPools, id)
	delete(s.connPools, string(owner))
	if q := s.queues[id]; q != nil {
		q.msgs = nil
	}
	return nil
}

// Limiter implements limiter.Limiter in memory.
type Limiter struct{ s *Store }

// Take spends one token of the client.
func (l *Limiter) Take(_ context.Context, clientID uuid.UUID) (int32, error) {
	s := l.s
	unlock := s.lock(clientKey(clientID))
	defer unlock()

	c := s.client(clientID)
	if c == nil {
		return 0, errs.ErrNotFound
	}
	if c.RemainingTokens <= 0 {
		return 0, errs.ErrRateLimited
	}
	c.RemainingTokens--
	return c.RemainingTokens, nil
}

// ResetAll sets every client's allowance.
func (l *Limiter) ResetAll(_ context.Context, allowance int32) (int64, error) {
	s := l.s
	s.mu.RLock()
	ids := make([]uuid.UUID, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var n int64
	for _, id := range ids {
		unlock := s.lock(clientKey(id))
		if c := s.client(id); c != nil && c.RemainingTokens != allowance {
			c.RemainingTokens = allowance
			n++
		}
		unlock()
	}
	return n, nil
}

// client looks up a record; the caller holds the client's stripe.
func (s *Store) client(id uuid.UUID) *model.ClientRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[id]
}

func copyCredential(c model.Credential) model.Credential {
	return model.Credential{
		Payload:           cloneBytes(c.Payload),
		Signature:         cloneBytes(c.Signature),
		NotBefore:         c.NotBefore,
		NotAfter:          c.NotAfter,
		SignerFingerprint: cloneBytes(c.SignerFingerprint),
	}
}

func copyClient(c *model.ClientRecord) model.ClientRecord {
	out := *c
	out.QueueEncryptionKey = cloneBytes(c.QueueEncryptionKey)
	out.Ratchet = cloneBytes(c.Ratchet)
	out.Credential = copyCredential(c.Credential)
	return out
}

package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/and161185/keyqueue/internal/errs"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/gofrs/uuid/v5"
)

// queue keeps messages ordered by sequence number.
type queue struct {
	next int64
	msgs []model.QueueMessage
}

// QueueRepo implements QueueRepository in memory.
type QueueRepo struct{ s *Store }

// Enqueue allocates the next sequence number and appends the message.
func (r *QueueRepo) Enqueue(_ context.Context, queueID uuid.UUID, payload model.Ciphertext) (int64, error) {
	s := r.s
	unlock := s.lock(queueKey(queueID))
	defer unlock()

	q := r.queue(queueID, true)
	seq := q.next
	q.next++
	q.msgs = append(q.msgs, model.QueueMessage{QueueID: queueID, SequenceNumber: seq, Payload: cloneBytes(payload)})
	return seq, nil
}

// Fetch trims messages below from and returns up to limit of the rest.
func (r *QueueRepo) Fetch(_ context.Context, queueID uuid.UUID, from int64, limit int) (model.QueueBatch, error) {
	unlock := r.s.lock(queueKey(queueID))
	defer unlock()

	q := r.queue(queueID, false)
	if q == nil {
		return model.QueueBatch{}, nil
	}
	cut := sort.Search(len(q.msgs), func(i int) bool { return q.msgs[i].SequenceNumber >= from })
	q.msgs = append(q.msgs[:0:0], q.msgs[cut:]...)

	n := min(limit, len(q.msgs))
	if n < 0 {
		n = 0
	}
	batch := model.QueueBatch{
		Messages:  make([]model.QueueMessage, n),
		Remaining: int64(len(q.msgs) - n),
	}
	for i := range n {
		m := q.msgs[i]
		m.Payload = cloneBytes(m.Payload)
		batch.Messages[i] = m
	}
	return batch, nil
}

// queue returns the queue state; the caller holds the queue stripe.
func (r *QueueRepo) queue(id uuid.UUID, create bool) *queue {
	s := r.s
	s.mu.RLock()
	q := s.queues[id]
	s.mu.RUnlock()
	if q != nil || !create {
		return q
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q = &queue{}
	s.queues[id] = q
	return q
}

// HandleQueueRepo implements HandleQueueRepository in memory.
type HandleQueueRepo struct{ s *Store }

// Enqueue stores a message for the handle.
func (r *HandleQueueRepo) Enqueue(_ context.Context, hash model.HandleHash, payload model.Ciphertext) (uuid.UUID, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	s := r.s
	unlock := s.lock(handleKey(hash))
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mailboxes[hash] = append(s.mailboxes[hash], model.HandleMessage{
		MessageID: id,
		Hash:      hash,
		Payload:   cloneBytes(payload),
		CreatedAt: s.now(),
	})
	s.handleIndex[id] = hash
	return id, nil
}

// Fetch claims up to limit messages not already claimed by fetcher.
func (r *HandleQueueRepo) Fetch(_ context.Context, hash model.HandleHash, fetcher uuid.UUID, limit int) ([]model.HandleMessage, error) {
	s := r.s
	unlock := s.lock(handleKey(hash))
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	box := s.mailboxes[hash]
	var out []model.HandleMessage
	for i := range box {
		if len(out) >= limit {
			break
		}
		m := &box[i]
		if m.FetchedBy.Valid && m.FetchedBy.UUID == fetcher {
			continue
		}
		m.FetchedBy = uuid.NullUUID{UUID: fetcher, Valid: true}
		c := *m
		c.Payload = cloneBytes(m.Payload)
		out = append(out, c)
	}
	return out, nil
}

// Ack deletes a message claimed by claimer.
func (r *HandleQueueRepo) Ack(_ context.Context, messageID, claimer uuid.UUID) error {
	s := r.s
	s.mu.RLock()
	hash, ok := s.handleIndex[messageID]
	s.mu.RUnlock()
	if !ok {
		return errs.ErrNotFound
	}
	unlock := s.lock(handleKey(hash))
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	box := s.mailboxes[hash]
	i := slices.IndexFunc(box, func(m model.HandleMessage) bool { return m.MessageID == messageID })
	if i < 0 || !box[i].FetchedBy.Valid || box[i].FetchedBy.UUID != claimer {
		return errs.ErrNotFound
	}
	s.mailboxes[hash] = append(box[:i:i], box[i+1:]...)
	if len(s.mailboxes[hash]) == 0 {
		delete(s.mailboxes, hash)
	}
	delete(s.handleIndex, messageID)
	return nil
}

// PurgeOlderThan deletes messages created before cutoff.
func (r *HandleQueueRepo) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s := r.s
	s.mu.RLock()
	hashes := make([]model.HandleHash, 0, len(s.mailboxes))
	for h := range s.mailboxes {
		hashes = append(hashes, h)
	}
	s.mu.RUnlock()

	var n int64
	for _, h := range hashes {
		unlock := s.lock(handleKey(h))
		s.mu.Lock()
		box := s.mailboxes[h]
		kept := box[:0]
		for _, m := range box {
			if m.CreatedAt.Before(cutoff) {
				delete(s.handleIndex, m.MessageID)
				n++
				continue
			}
			kept = append(kept, m)
		}
		if len(kept) == 0 {
			delete(s.mailboxes, h)
		} else {
			s.mailboxes[h] = kept
		}
		s.mu.Unlock()
		unlock()
	}
	return n, nil
}

package memory

import (
	"context"

	"github.com/and161185/keyqueue/internal/errs"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/gofrs/uuid/v5"
)

type keyPool struct {
	ordinary   []model.KeyPackage
	lastResort *model.KeyPackage
}

// KeyPackageRepo implements KeyPackageRepository in memory.
type KeyPackageRepo struct{ s *Store }

// Replenish appends packages and optionally replaces the last-resort package.
func (r *KeyPackageRepo) Replenish(_ context.Context, clientID uuid.UUID, packages []model.Ciphertext, lastResort model.Ciphertext) error {
	s := r.s
	unlock := s.lock(keyPoolKey(clientID))
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[clientID]; !ok {
		return errs.ErrNotFound
	}
	p := s.keyPools[clientID]
	if p == nil {
		p = &keyPool{}
		s.keyPools[clientID] = p
	}
	for _, c := range packages {
		p.ordinary = append(p.ordinary, model.KeyPackage{ID: s.nextID(), ClientID: clientID, Payload: cloneBytes(c)})
	}
	if lastResort != nil {
		id := s.nextID()
		if p.lastResort != nil {
			id = p.lastResort.ID
		}
		p.lastResort = &model.KeyPackage{ID: id, ClientID: clientID, Payload: cloneBytes(lastResort), IsLastResort: true}
	}
	return nil
}

// ConsumeOne hands out one package of the client.
func (r *KeyPackageRepo) ConsumeOne(ctx context.Context, clientID uuid.UUID) (model.KeyPackageResult, error) {
	unlock, err := r.s.lockCtx(ctx, keyPoolKey(clientID))
	if err != nil {
		return model.KeyPackageResult{ClientID: clientID}, err
	}
	defer unlock()
	return r.consume(clientID)
}

// ConsumeForRecipients consumes one package per client. The stripes taken
// are held for the whole batch so it is atomic like a single transaction;
// a client whose stripe stays busy is reported Unavailable.
func (r *KeyPackageRepo) ConsumeForRecipients(ctx context.Context, clientIDs []uuid.UUID) ([]model.KeyPackageResult, error) {
	keys := make([]string, 0, len(clientIDs))
	for _, id := range clientIDs {
		keys = append(keys, keyPoolKey(id))
	}
	held, release := r.s.acquire(ctx, keys...)
	defer release()

	out := make([]model.KeyPackageResult, 0, len(clientIDs))
	for _, id := range clientIDs {
		res, err := model.KeyPackageResult{}, errs.ErrContended
		if held[stripeOf(keyPoolKey(id))] {
			res, err = r.consume(id)
		}
		if err != nil {
			res = model.KeyPackageResult{ClientID: id, Outcome: model.Unavailable}
		}
		out = append(out, res)
	}
	return out, nil
}

// Count returns the number of ordinary packages of the client.
func (r *KeyPackageRepo) Count(_ context.Context, clientID uuid.UUID) (int64, error) {
	unlock := r.s.lock(keyPoolKey(clientID))
	defer unlock()

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if p := r.s.keyPools[clientID]; p != nil {
		return int64(len(p.ordinary)), nil
	}
	return 0, nil
}

// consume runs with the client's pool stripe held.
func (r *KeyPackageRepo) consume(clientID uuid.UUID) (model.KeyPackageResult, error) {
	res := model.KeyPackageResult{ClientID: clientID}

	r.s.mu.RLock()
	p := r.s.keyPools[clientID]
	r.s.mu.RUnlock()
	if p == nil {
		return res, errs.ErrExhausted
	}
	if len(p.ordinary) > 0 {
		res.Package = p.ordinary[0]
		p.ordinary[0] = model.KeyPackage{}
		p.ordinary = p.ordinary[1:]
		res.Outcome = model.Consumed
		return res, nil
	}
	if p.lastResort != nil {
		res.Package = *p.lastResort
		res.Package.Payload = cloneBytes(p.lastResort.Payload)
		res.Outcome = model.Borrowed
		return res, nil
	}
	return res, errs.ErrExhausted
}

// ConnectionPackageRepo implements ConnectionPackageRepository in memory.
type ConnectionPackageRepo struct{ s *Store }

// Replenish appends packages to the owner's pool.
func (r *ConnectionPackageRepo) Replenish(_ context.Context, owner model.OwnerID, packages []model.Ciphertext) error {
	s := r.s
	unlock := s.lock(ownerKey(owner))
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	pool := s.connPools[string(owner)]
	for _, c := range packages {
		pool = append(pool, model.ConnectionPackage{ID: s.nextID(), Owner: model.OwnerID(cloneBytes(owner)), Payload: cloneBytes(c)})
	}
	if len(pool) > 0 {
		s.connPools[string(owner)] = pool
	}
	return nil
}

// ConsumeOne returns the oldest package of the owner and deletes it only if
// another one remains.
func (r *ConnectionPackageRepo) ConsumeOne(ctx context.Context, owner model.OwnerID) (model.ConnectionPackageResult, error) {
	s := r.s
	unlock, err := s.lockCtx(ctx, ownerKey(owner))
	if err != nil {
		return model.ConnectionPackageResult{}, err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	pool := s.connPools[string(owner)]
	if len(pool) == 0 {
		return model.ConnectionPackageResult{}, errs.ErrExhausted
	}
	res := model.ConnectionPackageResult{Package: pool[0]}
	if len(pool) == 1 {
		res.Package.Payload = cloneBytes(pool[0].Payload)
		res.Outcome = model.Borrowed
		return res, nil
	}
	s.connPools[string(owner)] = pool[1:]
	res.Outcome = model.Consumed
	return res, nil
}

// Count returns the number of packages stored for the owner.
func (r *ConnectionPackageRepo) Count(_ context.Context, owner model.OwnerID) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.connPools[string(owner)])), nil
}

package service

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/keyqueue/internal/errs"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/and161185/keyqueue/internal/repository"
	"github.com/gofrs/uuid/v5"
)

type fakeUsers struct {
	users   map[uuid.UUID]model.UserRecord
	clients map[uuid.UUID][]uuid.UUID

	createErr error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) CreateUser(_ context.Context, u *model.UserRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.users == nil {
		f.users = map[uuid.UUID]model.UserRecord{}
	}
	f.users[u.UserID] = *u
	return nil
}
func (f *fakeUsers) GetUser(_ context.Context, id uuid.UUID) (*model.UserRecord, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}
func (f *fakeUsers) UserIDByFriendshipToken(_ context.Context, t model.FriendshipToken) (uuid.UUID, error) {
	for id, u := range f.users {
		if string(u.FriendshipToken) == string(t) {
			return id, nil
		}
	}
	return uuid.Nil, errs.ErrNotFound
}
func (f *fakeUsers) ClientIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return f.clients[userID], nil
}

type fakeClients struct {
	recs map[uuid.UUID]model.ClientRecord

	lastActivity time.Time
	lastTokens   int32
	deleted      []uuid.UUID
}

var _ repository.ClientRepository = (*fakeClients)(nil)

func (f *fakeClients) Create(_ context.Context, c *model.ClientRecord) error {
	if f.recs == nil {
		f.recs = map[uuid.UUID]model.ClientRecord{}
	}
	f.recs[c.ClientID] = *c
	return nil
}
func (f *fakeClients) Get(_ context.Context, id uuid.UUID) (*model.ClientRecord, error) {
	c, ok := f.recs[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &c, nil
}
func (f *fakeClients) UpdateCredential(_ context.Context, id uuid.UUID, cred model.Credential, at time.Time, tokens int32) error {
	c, ok := f.recs[id]
	if !ok {
		return errs.ErrNotFound
	}
	c.Credential, c.ActivityTime, c.RemainingTokens = cred, at, tokens
	f.recs[id] = c
	f.lastActivity, f.lastTokens = at, tokens
	return nil
}
func (f *fakeClients) UpdateQueueState(_ context.Context, id uuid.UUID, key, ratchet []byte) error {
	c, ok := f.recs[id]
	if !ok {
		return errs.ErrNotFound
	}
	c.QueueEncryptionKey, c.Ratchet = key, ratchet
	f.recs[id] = c
	return nil
}
func (f *fakeClients) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.recs[id]; !ok {
		return errs.ErrNotFound
	}
	delete(f.recs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeKeyPackages struct {
	consumeRes   model.KeyPackageResult
	consumeErr   error
	batch        []model.KeyPackageResult
	batchErr     error
	gotBatchIDs  []uuid.UUID
	replenished  int
	lastResort   model.Ciphertext
	replenishErr error
}

var _ repository.KeyPackageRepository = (*fakeKeyPackages)(nil)

func (f *fakeKeyPackages) Replenish(_ context.Context, _ uuid.UUID, pkgs []model.Ciphertext, lr model.Ciphertext) error {
	f.replenished += len(pkgs)
	f.lastResort = lr
	return f.replenishErr
}
func (f *fakeKeyPackages) ConsumeOne(_ context.Context, id uuid.UUID) (model.KeyPackageResult, error) {
	r := f.consumeRes
	r.ClientID = id
	return r, f.consumeErr
}
func (f *fakeKeyPackages) ConsumeForRecipients(_ context.Context, ids []uuid.UUID) ([]model.KeyPackageResult, error) {
	f.gotBatchIDs = ids
	return f.batch, f.batchErr
}
func (f *fakeKeyPackages) Count(context.Context, uuid.UUID) (int64, error) { return 0, nil }

type fakeConnPackages struct {
	res         model.ConnectionPackageResult
	err         error
	replenished int
}

var _ repository.ConnectionPackageRepository = (*fakeConnPackages)(nil)

func (f *fakeConnPackages) Replenish(_ context.Context, _ model.OwnerID, pkgs []model.Ciphertext) error {
	f.replenished += len(pkgs)
	return nil
}
func (f *fakeConnPackages) ConsumeOne(context.Context, model.OwnerID) (model.ConnectionPackageResult, error) {
	return f.res, f.err
}
func (f *fakeConnPackages) Count(context.Context, model.OwnerID) (int64, error) { return 1, nil }

type fakeQueues struct {
	mu       sync.Mutex
	next     int64
	gotLimit int
	gotFrom  int64
	batch    model.QueueBatch
	fetchErr error
	enqueued int
}

var _ repository.QueueRepository = (*fakeQueues)(nil)

func (f *fakeQueues) Enqueue(context.Context, uuid.UUID, model.Ciphertext) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seq := f.next
	f.next++
	f.enqueued++
	return seq, nil
}
func (f *fakeQueues) Fetch(_ context.Context, _ uuid.UUID, from int64, limit int) (model.QueueBatch, error) {
	f.gotFrom, f.gotLimit = from, limit
	return f.batch, f.fetchErr
}

type fakeHandles struct {
	msgs      []model.HandleMessage
	gotLimit  int
	gotCutoff time.Time
	purged    int64
	acked     []uuid.UUID
	ackedBy   []uuid.UUID
}

var _ repository.HandleQueueRepository = (*fakeHandles)(nil)

func (f *fakeHandles) Enqueue(context.Context, model.HandleHash, model.Ciphertext) (uuid.UUID, error) {
	return uuid.NewV4()
}
func (f *fakeHandles) Fetch(_ context.Context, _ model.HandleHash, _ uuid.UUID, limit int) ([]model.HandleMessage, error) {
	f.gotLimit = limit
	return f.msgs, nil
}
func (f *fakeHandles) Ack(_ context.Context, id, claimer uuid.UUID) error {
	f.acked = append(f.acked, id)
	f.ackedBy = append(f.ackedBy, claimer)
	return nil
}
func (f *fakeHandles) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.gotCutoff = cutoff
	return f.purged, nil
}

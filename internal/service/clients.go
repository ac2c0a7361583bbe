package service

import (
	"context"
	"time"

	"github.com/and161185/keyqueue/internal/crypto"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/and161185/keyqueue/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// DefaultTokenAllowance is the request budget a new client starts with.
const DefaultTokenAllowance int32 = 1000

// ClientService manages users and their client records.
type ClientService interface {
	// RegisterUser creates a user with a fresh friendship token.
	RegisterUser(ctx context.Context) (model.UserRecord, error)
	// RegisterClient creates a client record for an existing user.
	RegisterClient(ctx context.Context, userID uuid.UUID, cred model.Credential, queueEncryptionKey, ratchet []byte) (uuid.UUID, error)
	// RotateCredential overwrites the credential, activity time and token budget.
	RotateCredential(ctx context.Context, clientID uuid.UUID, cred model.Credential, activity time.Time, remainingTokens int32) error
	// UpdateQueueState stores a new queue key and ratchet.
	UpdateQueueState(ctx context.Context, clientID uuid.UUID, encryptionKey, ratchet []byte) error
	// Get returns a client record.
	Get(ctx context.Context, clientID uuid.UUID) (*model.ClientRecord, error)
	// Delete removes a client with its pools and queue.
	Delete(ctx context.Context, clientID uuid.UUID) error
}

type ClientServiceImpl struct {
	users     repository.UserRepository
	clients   repository.ClientRepository
	allowance int32
	now       func() time.Time
}

// NewClientService constructs ClientService; a non-positive allowance means the default.
func NewClientService(users repository.UserRepository, clients repository.ClientRepository, allowance int32) *ClientServiceImpl {
	if allowance <= 0 {
		allowance = DefaultTokenAllowance
	}
	return &ClientServiceImpl{users: users, clients: clients, allowance: allowance, now: time.Now}
}

// RegisterUser creates a user record with a random friendship token.
func (s *ClientServiceImpl) RegisterUser(ctx context.Context) (model.UserRecord, error) {
	uid, err := uuid.NewV4()
	if err != nil {
		return model.UserRecord{}, err
	}
	tok, err := crypto.NewFriendshipToken()
	if err != nil {
		return model.UserRecord{}, err
	}
	u := model.UserRecord{UserID: uid, FriendshipToken: tok, CreatedAt: s.now()}
	if err := s.users.CreateUser(ctx, &u); err != nil {
		return model.UserRecord{}, err
	}
	return u, nil
}

// RegisterClient validates the credential and stores a new client record
// with the full token allowance.
func (s *ClientServiceImpl) RegisterClient(ctx context.Context, userID uuid.UUID, cred model.Credential, queueEncryptionKey, ratchet []byte) (uuid.UUID, error) {
	if userID == uuid.Nil {
		return uuid.Nil, invalid("empty user id")
	}
	if err := validateCredential(cred); err != nil {
		return uuid.Nil, err
	}
	if len(queueEncryptionKey) == 0 {
		return uuid.Nil, invalid("empty queue encryption key")
	}
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	rec := &model.ClientRecord{
		ClientID:           id,
		UserID:             userID,
		QueueEncryptionKey: queueEncryptionKey,
		Ratchet:            ratchet,
		Credential:         cred,
		ActivityTime:       s.now(),
		RemainingTokens:    s.allowance,
	}
	if err := s.clients.Create(ctx, rec); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// RotateCredential replaces the credential in place.
func (s *ClientServiceImpl) RotateCredential(ctx context.Context, clientID uuid.UUID, cred model.Credential, activity time.Time, remainingTokens int32) error {
	if clientID == uuid.Nil {
		return invalid("empty client id")
	}
	if err := validateCredential(cred); err != nil {
		return err
	}
	if remainingTokens < 0 {
		return invalid("negative token budget")
	}
	if activity.IsZero() {
		activity = s.now()
	}
	return s.clients.UpdateCredential(ctx, clientID, cred, activity, remainingTokens)
}

// UpdateQueueState stores the advanced ratchet.
func (s *ClientServiceImpl) UpdateQueueState(ctx context.Context, clientID uuid.UUID, encryptionKey, ratchet []byte) error {
	if clientID == uuid.Nil {
		return invalid("empty client id")
	}
	if len(encryptionKey) == 0 {
		return invalid("empty queue encryption key")
	}
	return s.clients.UpdateQueueState(ctx, clientID, encryptionKey, ratchet)
}

// Get loads one client record.
func (s *ClientServiceImpl) Get(ctx context.Context, clientID uuid.UUID) (*model.ClientRecord, error) {
	if clientID == uuid.Nil {
		return nil, invalid("empty client id")
	}
	return s.clients.Get(ctx, clientID)
}

// Delete removes a client.
func (s *ClientServiceImpl) Delete(ctx context.Context, clientID uuid.UUID) error {
	if clientID == uuid.Nil {
		return invalid("empty client id")
	}
	return s.clients.Delete(ctx, clientID)
}

// validateCredential checks shape only; signatures are verified upstream.
func validateCredential(c model.Credential) error {
	if len(c.Payload) == 0 {
		return invalid("empty credential")
	}
	if len(c.Signature) == 0 {
		return invalid("empty credential signature")
	}
	if c.NotAfter.Before(c.NotBefore) {
		return invalid("credential not_after before not_before")
	}
	return nil
}

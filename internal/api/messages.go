package api

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Outcome values carried in consume responses.
const (
	OutcomeConsumed    = "consumed"
	OutcomeBorrowed    = "borrowed"
	OutcomeUnavailable = "unavailable"
)

// Empty is used by RPCs without a payload.
type Empty struct{}

// Credential is a signed client credential.
type Credential struct {
	Payload           []byte    `json:"payload"`
	Signature         []byte    `json:"signature"`
	NotBefore         time.Time `json:"not_before"`
	NotAfter          time.Time `json:"not_after"`
	SignerFingerprint []byte    `json:"signer_fingerprint,omitempty"`
}

// HandleRef addresses a handle mailbox by plaintext handle or by its hash.
// The plaintext form wins when both are set.
type HandleRef struct {
	Handle string `json:"handle,omitempty"`
	Hash   []byte `json:"hash,omitempty"`
}

// --- clients ---

type RegisterUserResponse struct {
	UserID          uuid.UUID `json:"user_id"`
	FriendshipToken []byte    `json:"friendship_token"`
}

type RegisterClientRequest struct {
	UserID             uuid.UUID  `json:"user_id"`
	Credential         Credential `json:"credential"`
	QueueEncryptionKey []byte     `json:"queue_encryption_key"`
	Ratchet            []byte     `json:"ratchet,omitempty"`
}

type RegisterClientResponse struct {
	ClientID    uuid.UUID `json:"client_id"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type RotateCredentialRequest struct {
	ClientID        uuid.UUID  `json:"client_id"`
	Credential      Credential `json:"credential"`
	ActivityTime    time.Time  `json:"activity_time"`
	RemainingTokens int32      `json:"remaining_tokens"`
}

type UpdateQueueStateRequest struct {
	ClientID           uuid.UUID `json:"client_id"`
	QueueEncryptionKey []byte    `json:"queue_encryption_key"`
	Ratchet            []byte    `json:"ratchet,omitempty"`
}

type ClientRequest struct {
	ClientID uuid.UUID `json:"client_id"`
}

type GetClientResponse struct {
	ClientID           uuid.UUID  `json:"client_id"`
	UserID             uuid.UUID  `json:"user_id"`
	QueueEncryptionKey []byte     `json:"queue_encryption_key"`
	Ratchet            []byte     `json:"ratchet,omitempty"`
	Credential         Credential `json:"credential"`
	ActivityTime       time.Time  `json:"activity_time"`
	RemainingTokens    int32      `json:"remaining_tokens"`
}

// --- key packages ---

type ReplenishKeyPackagesRequest struct {
	ClientID    uuid.UUID `json:"client_id"`
	KeyPackages [][]byte  `json:"key_packages,omitempty"`
	LastResort  []byte    `json:"last_resort,omitempty"`
}

// ConsumeKeyPackageRequest selects the recipients either by friendship
// token (all clients of that user) or by an explicit client id list.
type ConsumeKeyPackageRequest struct {
	FriendshipToken []byte      `json:"friendship_token,omitempty"`
	ClientIDs       []uuid.UUID `json:"client_ids,omitempty"`
}

type KeyPackageResult struct {
	ClientID   uuid.UUID `json:"client_id"`
	Outcome    string    `json:"outcome"`
	KeyPackage []byte    `json:"key_package,omitempty"`
}

type ConsumeKeyPackageResponse struct {
	Results []KeyPackageResult `json:"results"`
}

// --- connection packages ---

// OwnerRef addresses a connection package pool: a client id or a handle.
type OwnerRef struct {
	ClientID uuid.UUID `json:"client_id"`
	Handle   HandleRef `json:"handle"`
}

type ReplenishConnectionPackagesRequest struct {
	Owner              OwnerRef `json:"owner"`
	ConnectionPackages [][]byte `json:"connection_packages"`
}

type ConsumeConnectionPackageRequest struct {
	Owner OwnerRef `json:"owner"`
}

type ConsumeConnectionPackageResponse struct {
	Outcome           string `json:"outcome"`
	ConnectionPackage []byte `json:"connection_package"`
}

// --- queues ---

type EnqueueMessageRequest struct {
	QueueID uuid.UUID `json:"queue_id"`
	Payload []byte    `json:"payload"`
}

type EnqueueMessageResponse struct {
	SequenceNumber int64 `json:"sequence_number"`
}

type FetchMessagesRequest struct {
	QueueID        uuid.UUID `json:"queue_id"`
	SequenceNumber int64     `json:"sequence_number"`
	Limit          int       `json:"limit,omitempty"`
}

type QueueMessage struct {
	SequenceNumber int64  `json:"sequence_number"`
	Payload        []byte `json:"payload"`
}

type FetchMessagesResponse struct {
	Messages  []QueueMessage `json:"messages"`
	Remaining int64          `json:"remaining"`
}

// --- handle mailbox ---

type EnqueueHandleMessageRequest struct {
	Handle  HandleRef `json:"handle"`
	Payload []byte    `json:"payload"`
}

type EnqueueHandleMessageResponse struct {
	MessageID uuid.UUID `json:"message_id"`
}

type FetchHandleMessagesRequest struct {
	Handle HandleRef `json:"handle"`
	Limit  int       `json:"limit,omitempty"`
}

type HandleMessage struct {
	MessageID uuid.UUID `json:"message_id"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

type FetchHandleMessagesResponse struct {
	Messages []HandleMessage `json:"messages"`
}

type AckHandleMessageRequest struct {
	MessageID uuid.UUID `json:"message_id"`
}

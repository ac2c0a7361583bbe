// Package model defines domain entities used by services and repositories.
package model

import (
	"encoding/hex"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Ciphertext is an opaque blob produced on the client side. The core never
// looks inside it.
type Ciphertext []byte

// FriendshipToken resolves a user's clients without revealing the user id.
type FriendshipToken []byte

// HandleHashLen is the size of a hashed user handle.
const HandleHashLen = 32

// HandleHash identifies a pseudonymous handle mailbox.
type HandleHash [HandleHashLen]byte

// Bytes returns the hash as a byte slice.
func (h HandleHash) Bytes() []byte { return h[:] }

// String returns the lowercase hex form of the hash.
func (h HandleHash) String() string { return hex.EncodeToString(h[:]) }

// HandleHashFromBytes converts a 32 byte slice into a HandleHash.
func HandleHashFromBytes(b []byte) (HandleHash, bool) {
	var h HandleHash
	if len(b) != HandleHashLen {
		return h, false
	}
	copy(h[:], b)
	return h, true
}

// OwnerID identifies the owner of a connection package pool: either a client
// (16 byte uuid) or a handle (32 byte hash).
type OwnerID []byte

// ClientOwner returns the pool owner id of a client.
func ClientOwner(id uuid.UUID) OwnerID { return OwnerID(id.Bytes()) }

// HandleOwner returns the pool owner id of a handle.
func HandleOwner(h HandleHash) OwnerID { return OwnerID(h.Bytes()) }

// Credential is a signed client credential. The signature is checked by the
// caller before the core is invoked; the core stores it verbatim.
type Credential struct {
	Payload           []byte
	Signature         []byte
	NotBefore         time.Time
	NotAfter          time.Time
	SignerFingerprint []byte
}

// ValidAt reports whether t falls within the credential validity window.
func (c Credential) ValidAt(t time.Time) bool {
	return !t.Before(c.NotBefore) && !t.After(c.NotAfter)
}

// UserRecord owns one or more clients.
type UserRecord struct {
	UserID          uuid.UUID
	FriendshipToken FriendshipToken
	CreatedAt       time.Time
}

// ClientRecord holds identity, queue state and rate-limit data of a client.
type ClientRecord struct {
	ClientID           uuid.UUID // PK, doubles as the client's queue id
	UserID             uuid.UUID // FK -> users.user_id
	QueueEncryptionKey []byte
	Ratchet            []byte // opaque, advanced per delivered batch
	Credential         Credential
	ActivityTime       time.Time
	RemainingTokens    int32 // >= 0
}

// KeyPackage is a one-time key bundle; at most one per client is last resort.
type KeyPackage struct {
	ID           int64
	ClientID     uuid.UUID
	Payload      Ciphertext
	IsLastResort bool
}

// ConnectionPackage is a pre-key bundle used to bootstrap a 1:1 connection.
type ConnectionPackage struct {
	ID      int64
	Owner   OwnerID
	Payload Ciphertext
}

// ConsumeOutcome tags what a consume operation did with the selected item.
type ConsumeOutcome int

const (
	// Consumed means the item was handed out and deleted.
	Consumed ConsumeOutcome = iota + 1
	// Borrowed means the item was handed out and kept for the next caller.
	Borrowed
	// Unavailable means nothing could be handed out this round.
	Unavailable
)

// String implements fmt.Stringer.
func (o ConsumeOutcome) String() string {
	switch o {
	case Consumed:
		return "consumed"
	case Borrowed:
		return "borrowed"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// KeyPackageResult is the per-client result of a key package consumption.
type KeyPackageResult struct {
	ClientID uuid.UUID
	Package  KeyPackage // zero when Outcome == Unavailable
	Outcome  ConsumeOutcome
}

// ConnectionPackageResult is the result of a connection package consumption.
type ConnectionPackageResult struct {
	Package ConnectionPackage
	Outcome ConsumeOutcome
}

// QueueMessage is a sequence-numbered entry of a client queue.
type QueueMessage struct {
	QueueID        uuid.UUID
	SequenceNumber int64
	Payload        Ciphertext
}

// QueueBatch is the result of a queue fetch.
type QueueBatch struct {
	Messages  []QueueMessage
	Remaining int64 // messages still pending after this batch
}

// HandleMessage is an entry of a handle mailbox. FetchedBy marks the last
// fetcher that claimed it.
type HandleMessage struct {
	MessageID uuid.UUID
	Hash      HandleHash
	Payload   Ciphertext
	CreatedAt time.Time
	FetchedBy uuid.NullUUID
}

// Tokens is an issued bearer token with its expiry.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time
}

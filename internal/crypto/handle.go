// Package crypto implements server-side handle hashing and token generation.
package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/and161185/keyqueue/internal/errs"
	"github.com/and161185/keyqueue/internal/model"
)

// Argon2id parameters for handle hashing (RFC 9106 second recommendation
// with reduced memory, matching what clients compute).
const (
	argonTime    uint32 = 2
	argonMemory  uint32 = 19 * 1024 // 19 MiB
	argonThreads uint8  = 1
)

// handleSalt is constant: the hash must be computable by anyone who knows the
// plaintext handle.
var handleSalt = []byte("user handle salt")

const (
	minHandleLen = 3
	maxHandleLen = 46
)

// FriendshipTokenLen is the size of generated friendship tokens.
const FriendshipTokenLen = 32

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewFriendshipToken returns a fresh random friendship token.
func NewFriendshipToken() (model.FriendshipToken, error) {
	b, err := RandBytes(FriendshipTokenLen)
	if err != nil {
		return nil, err
	}
	return model.FriendshipToken(b), nil
}

// ValidateHandle checks length and charset ([_0-9a-z]) of a plaintext handle.
func ValidateHandle(plaintext string) error {
	if len(plaintext) < minHandleLen {
		return fmt.Errorf("%w: handle too short", errs.ErrInvalidArgument)
	}
	if len(plaintext) > maxHandleLen {
		return fmt.Errorf("%w: handle too long", errs.ErrInvalidArgument)
	}
	for i := 0; i < len(plaintext); i++ {
		c := plaintext[i]
		if c != '_' && (c < '0' || c > '9') && (c < 'a' || c > 'z') {
			return fmt.Errorf("%w: handle contains invalid character", errs.ErrInvalidArgument)
		}
	}
	return nil
}

// HashHandle validates a plaintext handle and returns its Argon2id hash.
func HashHandle(plaintext string) (model.HandleHash, error) {
	var h model.HandleHash
	if err := ValidateHandle(plaintext); err != nil {
		return h, err
	}
	sum := argon2.IDKey([]byte(plaintext), handleSalt, argonTime, argonMemory, argonThreads, model.HandleHashLen)
	copy(h[:], sum)
	return h, nil
}

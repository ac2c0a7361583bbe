// Package limiter defines the per-client request allowance backed by the
// remaining_tokens field of client records.
package limiter

import (
	"context"

	"github.com/gofrs/uuid/v5"
)

// Limiter stores and decrements request tokens. The policy of when tokens
// are handed out again belongs to the caller.
type Limiter interface {
	// Take spends one token of the client and returns what is left.
	// It fails with errs.ErrRateLimited when the allowance is used up and
	// with errs.ErrNotFound for an unknown client.
	Take(ctx context.Context, clientID uuid.UUID) (int32, error)
	// ResetAll sets every client's allowance and returns the number of
	// records touched.
	ResetAll(ctx context.Context, allowance int32) (int64, error)
}

// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the referenced client record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExhausted indicates a pool has no usable entry and no fallback.
	ErrExhausted = errors.New("no package available")

	// ErrContended indicates every candidate row is held by a concurrent
	// transaction. The item is unavailable this round; callers retry.
	ErrContended = errors.New("unavailable, retry later")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the caller's token allowance is used up.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates request validation failure.
	ErrInvalidArgument = errors.New("invalid argument")
)

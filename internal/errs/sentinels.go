// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInsufficientCredits indicates the balance does not cover the requested cost.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrNoProfile indicates the caller has no loaded profile to charge.
	ErrNoProfile = errors.New("no profile loaded")

	// ErrInvalidArgument indicates a request failed validation before any write.
	ErrInvalidArgument = errors.New("invalid argument")
)

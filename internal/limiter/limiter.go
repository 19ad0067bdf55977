// Package limiter defines interfaces and implementations for login rate limiting.
package limiter

import (
	"context"
	"crypto/sha256"
	"net"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, email string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
}

// HashIP returns a stable hash of the client host to avoid storing raw addresses.
// A port is dropped so reconnects from one host share a key.
func HashIP(ip string) []byte {
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Nop never throttles. cmd/server falls back to it when Redis is not configured.
type Nop struct{}

func (Nop) Allow(context.Context, string, []byte) (bool, time.Duration, error) { return true, 0, nil }
func (Nop) Success(context.Context, string, []byte) error                    { return nil }
func (Nop) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	return false, 0, nil
}

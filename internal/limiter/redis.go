package limiter

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Redis-backed limiter: a fixed-window failure counter plus a block key.
type Redis struct {
	rdb      redis.Cmdable
	prefix   string
	window   time.Duration
	maxFails int
	blockFor time.Duration
}

// NewRedis constructs a Redis-backed limiter.
func NewRedis(rdb redis.Cmdable, window time.Duration, maxFails int, blockFor time.Duration) *Redis {
	if maxFails <= 0 {
		maxFails = 5
	}
	return &Redis{rdb: rdb, prefix: "codepilot:login", window: window, maxFails: maxFails, blockFor: blockFor}
}

func (l *Redis) keys(email string, ipHash []byte) (fails, block string) {
	base := l.prefix + ":" + email + ":" + hex.EncodeToString(ipHash)
	return base + ":fails", base + ":block"
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *Redis) Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	_, block := l.keys(email, ipHash)
	ttl, err := l.rdb.PTTL(ctx, block).Result()
	if err != nil {
		return false, 0, err
	}
	// -2: no key, -1: no expiry (never set by us)
	if ttl <= 0 {
		return true, 0, nil
	}
	return false, ttl, nil
}

// Success resets counters for (email, ip).
func (l *Redis) Success(ctx context.Context, email string, ipHash []byte) error {
	fails, block := l.keys(email, ipHash)
	return l.rdb.Del(ctx, fails, block).Err()
}

// Failure records a failed attempt; reaching maxFails within the window sets a block.
func (l *Redis) Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	fails, block := l.keys(email, ipHash)

	n, err := l.rdb.Incr(ctx, fails).Result()
	if err != nil {
		return false, 0, err
	}
	if n == 1 {
		if err := l.rdb.PExpire(ctx, fails, l.window).Err(); err != nil {
			return false, 0, err
		}
	}
	if n < int64(l.maxFails) {
		return false, 0, nil
	}

	pipe := l.rdb.TxPipeline()
	pipe.Set(ctx, block, 1, l.blockFor)
	pipe.Del(ctx, fails)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return false, 0, err
	}
	return true, l.blockFor, nil
}

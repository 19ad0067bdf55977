package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/and161185/codepilot/internal/metrics"
	"github.com/and161185/codepilot/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChannelPrefix prefixes the per-identity pub/sub channel name.
const ChannelPrefix = "codepilot:changes:"

// Redis is a Feed over Redis pub/sub, shared by every server instance.
type Redis struct {
	rdb    redis.UniversalClient
	log    *zap.Logger
	buffer int
}

// NewRedis returns a Redis-backed feed.
func NewRedis(rdb redis.UniversalClient, buffer int, log *zap.Logger) *Redis {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{rdb: rdb, log: log, buffer: buffer}
}

// Channel returns the pub/sub channel for userID.
func Channel(userID uuid.UUID) string { return ChannelPrefix + userID.String() }

// Publish implements Feed.
func (r *Redis) Publish(ctx context.Context, c model.Change) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := r.rdb.Publish(ctx, Channel(c.UserID), b).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Subscribe implements Feed.
func (r *Redis) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan model.Change, func(), error) {
	ps := r.rdb.Subscribe(ctx, Channel(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan model.Change, r.buffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = ps.Close()
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var c model.Change
				if err := json.Unmarshal([]byte(m.Payload), &c); err != nil {
					r.log.Warn("changefeed: bad payload", zap.String("channel", m.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- c:
				default:
					metrics.ChangefeedDroppedTotal.Inc()
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}

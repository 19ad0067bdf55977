package changefeed

import (
	"context"
	"sync"

	"github.com/and161185/codepilot/internal/metrics"
	"github.com/and161185/codepilot/internal/model"
	"github.com/gofrs/uuid/v5"
)

type subscriber struct {
	ch   chan model.Change
	done chan struct{}
	once sync.Once
}

// Local is an in-process Feed.
type Local struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*subscriber]struct{}
	buffer int
}

// NewLocal returns an in-process feed; buffer <= 0 selects DefaultBuffer.
func NewLocal(buffer int) *Local {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Local{subs: make(map[uuid.UUID]map[*subscriber]struct{}), buffer: buffer}
}

// Publish implements Feed.
func (l *Local) Publish(_ context.Context, c model.Change) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for s := range l.subs[c.UserID] {
		select {
		case s.ch <- c:
		default:
			metrics.ChangefeedDroppedTotal.Inc()
		}
	}
	return nil
}

// Subscribe implements Feed.
func (l *Local) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan model.Change, func(), error) {
	s := &subscriber{ch: make(chan model.Change, l.buffer), done: make(chan struct{})}

	l.mu.Lock()
	set, ok := l.subs[userID]
	if !ok {
		set = make(map[*subscriber]struct{})
		l.subs[userID] = set
	}
	set[s] = struct{}{}
	l.mu.Unlock()

	cancel := func() {
		s.once.Do(func() {
			l.mu.Lock()
			delete(l.subs[userID], s)
			if len(l.subs[userID]) == 0 {
				delete(l.subs, userID)
			}
			close(s.ch)
			close(s.done)
			l.mu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-s.done:
		}
	}()
	return s.ch, cancel, nil
}

// Subscribers reports the number of live subscriptions for userID.
func (l *Local) Subscribers(userID uuid.UUID) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs[userID])
}

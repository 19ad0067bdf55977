package account

import (
	"context"
	"errors"
	"sync"

	"github.com/and161185/codepilot/internal/changefeed"
	"github.com/and161185/codepilot/internal/metrics"
	"github.com/and161185/codepilot/internal/model"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// ErrRegistryClosed is returned by Acquire after Close.
var ErrRegistryClosed = errors.New("account: registry closed")

type entry struct {
	s     *Session
	refs  int
	ready chan struct{}
	stop  context.CancelFunc
}

// Registry owns the live sessions of the process, one per identity, shared by every
// caller that acquires it.
type Registry struct {
	loader *Loader
	feed   changefeed.Feed
	log    *zap.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[uuid.UUID]*entry
	closed   bool
}

// NewRegistry constructs an empty registry.
func NewRegistry(loader *Loader, feed changefeed.Feed, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Registry{
		loader:   loader,
		feed:     feed,
		log:      log,
		base:     base,
		cancel:   cancel,
		sessions: make(map[uuid.UUID]*entry),
	}
}

// Acquire returns the live session for id, loading it and subscribing it to the feed
// on first use. The returned release func must be called exactly once.
func (r *Registry) Acquire(ctx context.Context, id model.Identity) (*Session, func(), error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, nil, ErrRegistryClosed
	}
	e, ok := r.sessions[id.ID]
	if ok {
		e.refs++
		r.mu.Unlock()
		return r.wait(ctx, id.ID, e, true)
	}

	runCtx, stop := context.WithCancel(r.base)
	e = &entry{
		s:     NewSession(id, r.loader, r.feed, r.log),
		refs:  1,
		ready: make(chan struct{}),
		stop:  stop,
	}
	r.sessions[id.ID] = e
	r.wg.Add(1)
	r.mu.Unlock()
	metrics.ActiveSessions.Inc()

	go func() {
		defer r.wg.Done()
		_ = e.s.run(runCtx, func() { close(e.ready) })
	}()
	return r.wait(ctx, id.ID, e, false)
}

// wait blocks until the session's first load is done. A shared session whose profile
// could not be loaded is reloaded for the new holder.
func (r *Registry) wait(ctx context.Context, userID uuid.UUID, e *entry, shared bool) (*Session, func(), error) {
	select {
	case <-e.ready:
	case <-ctx.Done():
		r.release(userID, e)
		return nil, nil, ctx.Err()
	}
	if shared && e.s.Profile() == nil {
		e.s.Refetch(ctx)
	}
	return e.s, r.releaseFunc(userID, e), nil
}

func (r *Registry) releaseFunc(userID uuid.UUID, e *entry) func() {
	var once sync.Once
	return func() { once.Do(func() { r.release(userID, e) }) }
}

func (r *Registry) release(userID uuid.UUID, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.refs--
	if e.refs > 0 {
		return
	}
	e.stop()
	if cur, ok := r.sessions[userID]; ok && cur == e {
		delete(r.sessions, userID)
		metrics.ActiveSessions.Dec()
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops every session and waits for their feed loops to exit.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	n := len(r.sessions)
	r.sessions = make(map[uuid.UUID]*entry)
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	metrics.ActiveSessions.Sub(float64(n))
}

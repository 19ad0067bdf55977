package account

import (
	"context"
	"sync"

	"github.com/and161185/codepilot/internal/changefeed"
	"github.com/and161185/codepilot/internal/model"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Session is the cached, live view of one identity's profile and recent activity.
// Remote changes reach it only through the change feed.
type Session struct {
	id     model.Identity
	loader *Loader
	feed   changefeed.Feed
	log    *zap.Logger

	mu         sync.RWMutex
	profile    *model.Profile
	activities []model.Activity
	loading    bool
}

// NewSession returns an unloaded session; call Refetch to populate it.
func NewSession(id model.Identity, loader *Loader, feed changefeed.Feed, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		id:         id,
		loader:     loader,
		feed:       feed,
		log:        log.With(zap.String("user_id", id.ID.String())),
		activities: []model.Activity{},
		loading:    true,
	}
}

// Identity returns the identity the session belongs to.
func (s *Session) Identity() model.Identity { return s.id }

// UserID is shorthand for Identity().ID.
func (s *Session) UserID() uuid.UUID { return s.id.ID }

// Profile returns a copy of the cached profile, or nil.
func (s *Session) Profile() *model.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProfile(s.profile)
}

// Activities returns a copy of the cached activity list, newest first.
func (s *Session) Activities() []model.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Activity{}, s.activities...)
}

// Loading reports whether a load is in progress or has not happened yet.
func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Snapshot returns a consistent copy of the cached state.
func (s *Session) Snapshot() model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.Snapshot{
		Profile:    cloneProfile(s.profile),
		Activities: append([]model.Activity{}, s.activities...),
		Loading:    s.loading,
	}
}

// Refetch reloads state from the backend and replaces the cache.
func (s *Session) Refetch(ctx context.Context) {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	snap := s.loader.Load(ctx, s.id)

	s.mu.Lock()
	s.profile = snap.Profile
	s.activities = snap.Activities
	s.loading = false
	s.mu.Unlock()
}

// Apply folds a change into the cache. Changes for other identities are ignored and
// applying the same change twice leaves the same state.
func (s *Session) Apply(c model.Change) {
	if c.UserID != s.id.ID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch c.Kind {
	case model.ChangeProfileUpdated:
		if c.Profile == nil {
			return
		}
		if s.profile != nil && c.Profile.UpdatedAt.Before(s.profile.UpdatedAt) {
			return // stale
		}
		s.profile = cloneProfile(c.Profile)
	case model.ChangeActivityInserted:
		if c.Activity == nil {
			return
		}
		for _, a := range s.activities {
			if a.ID == c.Activity.ID {
				return
			}
		}
		list := make([]model.Activity, 0, model.RecentActivityLimit)
		list = append(list, *c.Activity)
		list = append(list, s.activities...)
		if len(list) > model.RecentActivityLimit {
			list = list[:model.RecentActivityLimit]
		}
		s.activities = list
	case model.ChangeCreditsDeducted:
		if c.Receipt == nil || s.profile == nil {
			return
		}
		if c.Receipt.UpdatedAt.Before(s.profile.UpdatedAt) {
			return // stale
		}
		s.profile.CreditsRemaining = c.Receipt.NewBalance
		s.profile.TasksThisMonth = c.Receipt.TasksThisMonth
		s.profile.UpdatedAt = c.Receipt.UpdatedAt
	}
}

// Run subscribes to the identity's changes, loads the session, then applies changes
// until ctx ends. A session that cannot subscribe is still loaded once.
func (s *Session) Run(ctx context.Context) error { return s.run(ctx, nil) }

// run subscribes before loading so no change between the two is lost. loaded is
// called once the first load is done.
func (s *Session) run(ctx context.Context, loaded func()) error {
	ch, cancel, err := s.feed.Subscribe(ctx, s.id.ID)
	if err != nil {
		s.log.Warn("session without live updates", zap.Error(err))
	}
	s.Refetch(ctx)
	if loaded != nil {
		loaded()
	}
	if err != nil {
		return err
	}
	defer cancel()
	return s.consume(ctx, ch)
}

func (s *Session) consume(ctx context.Context, ch <-chan model.Change) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-ch:
			if !ok {
				return nil
			}
			s.Apply(c)
		}
	}
}

func cloneProfile(p *model.Profile) *model.Profile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.DisplayName != nil {
		v := *p.DisplayName
		cp.DisplayName = &v
	}
	if p.Email != nil {
		v := *p.Email
		cp.Email = &v
	}
	return &cp
}

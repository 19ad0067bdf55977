// Package account keeps live per-identity views of profiles and activity and applies
// credit deductions against them.
package account

import (
	"context"
	"errors"

	"github.com/and161185/codepilot/internal/errs"
	"github.com/and161185/codepilot/internal/model"
	"github.com/and161185/codepilot/internal/repository"
	"go.uber.org/zap"
)

// Loader resolves the dashboard state for an identity.
type Loader struct {
	profiles   repository.ProfileRepository
	activities repository.ActivityRepository
	log        *zap.Logger
}

// NewLoader constructs a Loader.
func NewLoader(profiles repository.ProfileRepository, activities repository.ActivityRepository, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{profiles: profiles, activities: activities, log: log}
}

// Load fetches the profile, creating the default one on first use, and the most recent
// activities. Backend failures degrade to a nil profile or an empty list and are only
// logged; Load never fails.
func (l *Loader) Load(ctx context.Context, id model.Identity) model.Snapshot {
	return model.Snapshot{
		Profile:    l.loadProfile(ctx, id),
		Activities: l.loadActivities(ctx, id),
	}
}

func (l *Loader) loadProfile(ctx context.Context, id model.Identity) *model.Profile {
	log := l.log.With(zap.String("user_id", id.ID.String()))

	p, err := l.profiles.Get(ctx, id.ID)
	if err == nil {
		return p
	}
	if !errors.Is(err, errs.ErrNotFound) {
		log.Warn("load profile", zap.Error(err))
		return nil
	}

	p, err = l.profiles.Create(ctx, model.NewProfile(id.ID, id.Email))
	switch {
	case err == nil:
		log.Info("profile created")
		return p
	case errors.Is(err, errs.ErrAlreadyExists):
		// another session created it first
		p, err = l.profiles.Get(ctx, id.ID)
		if err != nil {
			log.Warn("reload profile", zap.Error(err))
			return nil
		}
		return p
	default:
		log.Warn("create profile", zap.Error(err))
		return nil
	}
}

func (l *Loader) loadActivities(ctx context.Context, id model.Identity) []model.Activity {
	list, err := l.activities.ListRecent(ctx, id.ID, model.RecentActivityLimit)
	if err != nil {
		l.log.Warn("load activities", zap.String("user_id", id.ID.String()), zap.Error(err))
		return []model.Activity{}
	}
	if list == nil {
		list = []model.Activity{}
	}
	if len(list) > model.RecentActivityLimit {
		list = list[:model.RecentActivityLimit]
	}
	return list
}

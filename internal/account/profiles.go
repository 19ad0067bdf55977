package account

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/codepilot/internal/changefeed"
	"github.com/and161185/codepilot/internal/errs"
	"github.com/and161185/codepilot/internal/model"
	"github.com/and161185/codepilot/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// MaxDisplayName bounds display name length in runes.
const MaxDisplayName = 80

// Profiles applies explicit user edits to profiles.
type Profiles struct {
	repo repository.ProfileRepository
	feed changefeed.Feed
	log  *zap.Logger
}

// NewProfiles constructs a Profiles service.
func NewProfiles(repo repository.ProfileRepository, feed changefeed.Feed, log *zap.Logger) *Profiles {
	if log == nil {
		log = zap.NewNop()
	}
	return &Profiles{repo: repo, feed: feed, log: log}
}

// Edit validates and stores edit, then publishes the updated profile.
func (s *Profiles) Edit(ctx context.Context, userID uuid.UUID, edit model.ProfileEdit) (*model.Profile, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("empty user id: %w", errs.ErrInvalidArgument)
	}
	if edit.DisplayName == nil && edit.Plan == nil {
		return nil, fmt.Errorf("nothing to update: %w", errs.ErrInvalidArgument)
	}
	if edit.DisplayName != nil {
		name := strings.TrimSpace(*edit.DisplayName)
		if name == "" || len([]rune(name)) > MaxDisplayName {
			return nil, fmt.Errorf("display name must be 1..%d characters: %w", MaxDisplayName, errs.ErrInvalidArgument)
		}
		edit.DisplayName = &name
	}
	if edit.Plan != nil && !edit.Plan.Valid() {
		return nil, fmt.Errorf("unknown plan %q: %w", *edit.Plan, errs.ErrInvalidArgument)
	}

	p, err := s.repo.Update(ctx, userID, edit)
	if err != nil {
		return nil, err
	}

	c := model.Change{Kind: model.ChangeProfileUpdated, UserID: userID, At: time.Now().UTC(), Profile: p}
	if s.feed != nil {
		if err := s.feed.Publish(ctx, c); err != nil {
			s.log.Warn("publish profile", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
	return p, nil
}

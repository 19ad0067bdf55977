package repository

import (
	"context"
	"time"

	"github.com/and161185/codepilot/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ProfileRepository provides access to profiles, the source of truth for balances.
type ProfileRepository interface {
	// Get loads the profile for an identity.
	Get(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	// Create inserts a profile and returns the stored row.
	Create(ctx context.Context, p *model.Profile) (*model.Profile, error)
	// Debit subtracts cost and bumps the monthly task counter only if the balance covers it.
	Debit(ctx context.Context, userID uuid.UUID, cost int) (*model.Profile, error)
	// Update applies an explicit user edit.
	Update(ctx context.Context, userID uuid.UUID, edit model.ProfileEdit) (*model.Profile, error)
	// ResetMonthlyTasks zeroes task counters last reset before the given instant and
	// returns the updated profiles.
	ResetMonthlyTasks(ctx context.Context, before time.Time) ([]model.Profile, error)
}

// ActivityRepository provides append-only access to tool usage records.
type ActivityRepository interface {
	// Insert appends an activity and returns the stored row.
	Insert(ctx context.Context, a *model.Activity) (*model.Activity, error)
	// ListRecent returns up to limit activities, newest first.
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]model.Activity, error)
}

// CreditMirrorRepository maintains the secondary, non-authoritative balance record.
type CreditMirrorRepository interface {
	// Upsert writes the mirror row for an identity.
	Upsert(ctx context.Context, m model.CreditMirror) error
}

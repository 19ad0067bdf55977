package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/codepilot/internal/errs"
	"github.com/and161185/codepilot/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

const profileCols = `user_id, display_name, email, plan_type, credits_remaining, tasks_this_month, created_at, updated_at`

const monthStart = `date_trunc('month', now(), 'UTC')`

// ProfileRepo implements ProfileRepository using PostgreSQL.
type ProfileRepo struct{ db *DB }

// NewProfileRepo constructs a profile repository.
func NewProfileRepo(db *DB) *ProfileRepo { return &ProfileRepo{db: db} }

// Get loads the profile for userID.
func (r *ProfileRepo) Get(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	const q = `SELECT ` + profileCols + ` FROM profiles WHERE user_id=$1`
	return scanProfile(r.db.Pool.QueryRow(ctx, q, userID))
}

// Create inserts p and returns the stored row with server-side timestamps.
func (r *ProfileRepo) Create(ctx context.Context, p *model.Profile) (*model.Profile, error) {
	const q = `
INSERT INTO profiles (user_id, display_name, email, plan_type, credits_remaining, tasks_this_month)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + profileCols
	row := r.db.Pool.QueryRow(ctx, q,
		p.UserID, p.DisplayName, p.Email, string(p.Plan), p.CreditsRemaining, p.TasksThisMonth)
	out, err := scanProfile(row)
	if isUniqueViolation(err) {
		return nil, errs.ErrAlreadyExists
	}
	return out, err
}

// Debit charges cost in a single conditional update, so concurrent callers can never
// drive the balance below zero. A miss is resolved to ErrInsufficientCredits or ErrNotFound.
// The first debit of a new UTC month restarts the task counter itself.
func (r *ProfileRepo) Debit(ctx context.Context, userID uuid.UUID, cost int) (*model.Profile, error) {
	const q = `
UPDATE profiles
SET credits_remaining = credits_remaining - $2,
    tasks_this_month = CASE WHEN tasks_reset_at < ` + monthStart + ` THEN 1 ELSE tasks_this_month + 1 END,
    tasks_reset_at = CASE WHEN tasks_reset_at < ` + monthStart + ` THEN now() ELSE tasks_reset_at END,
    updated_at = now()
WHERE user_id = $1 AND credits_remaining >= $2
RETURNING ` + profileCols
	p, err := scanProfile(r.db.Pool.QueryRow(ctx, q, userID, cost))
	if !errors.Is(err, errs.ErrNotFound) {
		return p, err
	}

	const probe = `SELECT EXISTS(SELECT 1 FROM profiles WHERE user_id=$1)`
	var exists bool
	if err := r.db.Pool.QueryRow(ctx, probe, userID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("debit probe: %w", err)
	}
	if !exists {
		return nil, errs.ErrNotFound
	}
	return nil, errs.ErrInsufficientCredits
}

// Update applies non-nil fields of edit.
func (r *ProfileRepo) Update(ctx context.Context, userID uuid.UUID, edit model.ProfileEdit) (*model.Profile, error) {
	const q = `
UPDATE profiles
SET display_name = COALESCE($2, display_name), plan_type = COALESCE($3, plan_type), updated_at = now()
WHERE user_id = $1
RETURNING ` + profileCols
	var plan *string
	if edit.Plan != nil {
		s := string(*edit.Plan)
		plan = &s
	}
	return scanProfile(r.db.Pool.QueryRow(ctx, q, userID, edit.DisplayName, plan))
}

// ResetMonthlyTasks zeroes counters that were last reset before the given instant and
// returns the rows it changed.
func (r *ProfileRepo) ResetMonthlyTasks(ctx context.Context, before time.Time) ([]model.Profile, error) {
	const q = `
UPDATE profiles
SET tasks_this_month = 0, tasks_reset_at = now(), updated_at = now()
WHERE tasks_reset_at < $1
RETURNING ` + profileCols
	rows, err := r.db.Pool.Query(ctx, q, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var (
		p    model.Profile
		plan string
	)
	err := row.Scan(&p.UserID, &p.DisplayName, &p.Email, &plan,
		&p.CreditsRemaining, &p.TasksThisMonth, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	p.Plan = model.Plan(plan)
	return &p, nil
}

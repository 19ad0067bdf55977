package postgres

import (
	"context"

	"github.com/and161185/codepilot/internal/model"
)

// CreditMirrorRepo implements CreditMirrorRepository using PostgreSQL.
type CreditMirrorRepo struct{ db *DB }

// NewCreditMirrorRepo constructs a credit mirror repository.
func NewCreditMirrorRepo(db *DB) *CreditMirrorRepo { return &CreditMirrorRepo{db: db} }

// Upsert writes the mirror row, replacing any previous values.
func (r *CreditMirrorRepo) Upsert(ctx context.Context, m model.CreditMirror) error {
	const q = `
INSERT INTO credit_mirrors (user_id, credits_remaining, plan_type, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE
SET credits_remaining = EXCLUDED.credits_remaining, plan_type = EXCLUDED.plan_type, updated_at = EXCLUDED.updated_at`
	_, err := r.db.Pool.Exec(ctx, q, m.UserID, m.CreditsRemaining, string(m.Plan), m.UpdatedAt)
	return err
}

package postgres

import (
	"context"

	"github.com/and161185/codepilot/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ActivityRepo implements ActivityRepository using PostgreSQL.
type ActivityRepo struct{ db *DB }

// NewActivityRepo constructs an activity repository.
func NewActivityRepo(db *DB) *ActivityRepo { return &ActivityRepo{db: db} }

// Insert appends a; a nil ID is generated.
func (r *ActivityRepo) Insert(ctx context.Context, a *model.Activity) (*model.Activity, error) {
	out := *a
	if out.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return nil, err
		}
		out.ID = id
	}
	const q = `
INSERT INTO activities (id, user_id, tool_name, input_snippet, output_snippet, credits_used)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q,
		out.ID, out.UserID, out.ToolName, out.InputSnippet, out.OutputSnippet, out.CreditsUsed,
	).Scan(&out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRecent returns up to limit activities for userID, newest first.
func (r *ActivityRepo) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]model.Activity, error) {
	const q = `
SELECT id, user_id, tool_name, input_snippet, output_snippet, credits_used, created_at
FROM activities
WHERE user_id=$1
ORDER BY created_at DESC
LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Activity, 0, limit)
	for rows.Next() {
		var a model.Activity
		if err = rows.Scan(&a.ID, &a.UserID, &a.ToolName, &a.InputSnippet, &a.OutputSnippet,
			&a.CreditsUsed, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

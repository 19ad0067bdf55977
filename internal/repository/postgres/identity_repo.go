package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/and161185/codepilot/internal/errs"
	"github.com/and161185/codepilot/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// IdentityRepo implements IdentityRepository using PostgreSQL.
type IdentityRepo struct{ db *DB }

// NewIdentityRepo constructs an identity repository.
func NewIdentityRepo(db *DB) *IdentityRepo { return &IdentityRepo{db: db} }

// Create inserts a new identity row.
func (r *IdentityRepo) Create(ctx context.Context, id *model.Identity) error {
	const q = `
INSERT INTO identities (id, email, pwd_hash)
VALUES ($1, $2, $3)`
	_, err := r.db.Pool.Exec(ctx, q, id.ID, normEmail(id.Email), id.PwdHash)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects an identity by ID.
func (r *IdentityRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Identity, error) {
	const q = `
SELECT id, email, pwd_hash, created_at
FROM identities WHERE id=$1`
	return scanIdentity(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByEmail selects an identity by email (case-insensitive).
func (r *IdentityRepo) GetByEmail(ctx context.Context, email string) (*model.Identity, error) {
	const q = `
SELECT id, email, pwd_hash, created_at
FROM identities WHERE email=$1`
	return scanIdentity(r.db.Pool.QueryRow(ctx, q, normEmail(email)))
}

func scanIdentity(row pgx.Row) (*model.Identity, error) {
	var it model.Identity
	if err := row.Scan(&it.ID, &it.Email, &it.PwdHash, &it.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &it, nil
}

func normEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

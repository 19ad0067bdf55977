// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/codepilot/internal/model"
	"github.com/gofrs/uuid/v5"
)

// IdentityRepository provides access to authenticated accounts.
type IdentityRepository interface {
	// Create inserts a new identity.
	Create(ctx context.Context, id *model.Identity) error
	// GetByID loads an identity by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Identity, error)
	// GetByEmail loads an identity by email.
	GetByEmail(ctx context.Context, email string) (*model.Identity, error)
}

// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects an issued access token.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// Identity is an authenticated account. Passwords are never stored in plaintext.
type Identity struct {
	ID        uuid.UUID // PK, also the profile key
	Email     string    // unique, lowercased
	PwdHash   string    // PHC-encoded Argon2id
	CreatedAt time.Time
}

// Plan is a subscription tier label.
type Plan string

// Known plan tiers.
const (
	PlanFree Plan = "Free"
	PlanPro  Plan = "Pro"
	PlanTeam Plan = "Team"
)

// Valid reports whether p is one of the known tiers.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanTeam:
		return true
	}
	return false
}

// DefaultCredits is the balance granted to a freshly created profile.
const DefaultCredits = 5

// RecentActivityLimit caps the activity list shown on the dashboard.
const RecentActivityLimit = 10

// Profile is the per-identity account record and the source of truth for the balance.
type Profile struct {
	UserID           uuid.UUID
	DisplayName      *string
	Email            *string
	Plan             Plan
	CreditsRemaining int
	TasksThisMonth   int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewProfile returns the defaults used when a profile is created on first load.
func NewProfile(userID uuid.UUID, email string) *Profile {
	p := &Profile{
		UserID:           userID,
		Plan:             PlanFree,
		CreditsRemaining: DefaultCredits,
	}
	if email != "" {
		p.Email = &email
	}
	return p
}

// ProfileEdit is an explicit user edit; nil fields are left unchanged.
type ProfileEdit struct {
	DisplayName *string
	Plan        *Plan
}

// Activity is an append-only record of one tool invocation.
type Activity struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	ToolName      string
	InputSnippet  *string
	OutputSnippet *string
	CreditsUsed   int
	CreatedAt     time.Time
}

// CreditMirror duplicates balance and plan; it is never read back as authoritative.
type CreditMirror struct {
	UserID           uuid.UUID
	CreditsRemaining int
	Plan             Plan
	UpdatedAt        time.Time
}

// Deduction is a request to charge credits for a tool use.
type Deduction struct {
	ToolName string
	Cost     int
	Input    string
	Output   string
}

// Receipt describes an applied deduction.
type Receipt struct {
	UserID         uuid.UUID
	ToolName       string
	Cost           int
	NewBalance     int
	TasksThisMonth int
	UpdatedAt      time.Time // profile updated_at after the debit
	MirrorErr      bool      // mirror write failed (non-fatal)
	ActivityErr    bool      // activity insert failed (non-fatal)
}

// Snapshot is a point-in-time dashboard view.
type Snapshot struct {
	Profile    *Profile // nil when the profile could not be loaded
	Activities []Activity
	Loading    bool
}

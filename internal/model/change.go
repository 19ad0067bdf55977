package model

import (
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
)

// ChangeKind names the kind of a change feed event.
type ChangeKind string

// Change kinds.
const (
	ChangeProfileUpdated   ChangeKind = "profile_updated"
	ChangeActivityInserted ChangeKind = "activity_inserted"
	ChangeCreditsDeducted  ChangeKind = "credits_deducted"
	ChangeNotice           ChangeKind = "notice"
)

// NoticeLevel grades a user-facing notice.
type NoticeLevel string

// Notice levels.
const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient user-facing message.
type Notice struct {
	Level   NoticeLevel
	Message string
}

// Change is a single event on an identity's change feed. Exactly one payload is set,
// matching Kind.
type Change struct {
	Kind     ChangeKind
	UserID   uuid.UUID
	At       time.Time
	Profile  *Profile
	Activity *Activity
	Receipt  *Receipt
	Notice   *Notice
}

// SnippetLimit is the maximum number of runes kept from tool input/output.
const SnippetLimit = 200

// Snippet truncates s to SnippetLimit runes. Empty input yields nil.
func Snippet(s string) *string {
	if s == "" {
		return nil
	}
	if utf8.RuneCountInString(s) > SnippetLimit {
		r := []rune(s)
		s = string(r[:SnippetLimit-3]) + "..."
	}
	return &s
}

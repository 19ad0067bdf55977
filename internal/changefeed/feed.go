// Package changefeed delivers per-identity change events to live sessions.
package changefeed

import (
	"context"

	"github.com/and161185/codepilot/internal/model"
	"github.com/gofrs/uuid/v5"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 32

// Feed publishes changes and fans them out to subscribers of the same identity.
type Feed interface {
	// Publish delivers c to every current subscriber of c.UserID. It never blocks on
	// slow subscribers; their copy is dropped instead.
	Publish(ctx context.Context, c model.Change) error
	// Subscribe returns a channel of changes for userID. The channel is closed after
	// cancel is called or ctx ends.
	Subscribe(ctx context.Context, userID uuid.UUID) (<-chan model.Change, func(), error)
}

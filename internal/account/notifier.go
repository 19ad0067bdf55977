package account

import (
	"context"
	"time"

	"github.com/and161185/codepilot/internal/changefeed"
	"github.com/and161185/codepilot/internal/model"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Notifier delivers transient user-facing messages.
type Notifier interface {
	Success(ctx context.Context, userID uuid.UUID, msg string)
	Error(ctx context.Context, userID uuid.UUID, msg string)
}

// NopNotifier drops every message.
type NopNotifier struct{}

func (NopNotifier) Success(context.Context, uuid.UUID, string) {}
func (NopNotifier) Error(context.Context, uuid.UUID, string)   {}

// FeedNotifier pushes notices onto the change feed so watching clients can show them.
type FeedNotifier struct {
	feed changefeed.Feed
	log  *zap.Logger
}

// NewFeedNotifier constructs a FeedNotifier.
func NewFeedNotifier(feed changefeed.Feed, log *zap.Logger) *FeedNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &FeedNotifier{feed: feed, log: log}
}

// Success implements Notifier.
func (n *FeedNotifier) Success(ctx context.Context, userID uuid.UUID, msg string) {
	n.send(ctx, userID, model.NoticeSuccess, msg)
}

// Error implements Notifier.
func (n *FeedNotifier) Error(ctx context.Context, userID uuid.UUID, msg string) {
	n.send(ctx, userID, model.NoticeError, msg)
}

func (n *FeedNotifier) send(ctx context.Context, userID uuid.UUID, level model.NoticeLevel, msg string) {
	n.log.Debug("notice", zap.String("user_id", userID.String()), zap.String("level", string(level)), zap.String("msg", msg))
	if userID == uuid.Nil {
		return
	}
	c := model.Change{
		Kind:   model.ChangeNotice,
		UserID: userID,
		At:     time.Now().UTC(),
		Notice: &model.Notice{Level: level, Message: msg},
	}
	if err := n.feed.Publish(ctx, c); err != nil {
		n.log.Warn("publish notice", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

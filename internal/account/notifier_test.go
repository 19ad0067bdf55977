package account

import (
	"context"
	"testing"

	"github.com/and161185/codepilot/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFeedNotifier(t *testing.T) {
	feed := &recFeed{}
	n := NewFeedNotifier(feed, zaptest.NewLogger(t))
	id := uuid.Must(uuid.NewV4())

	n.Success(context.Background(), id, "done")
	n.Error(context.Background(), id, "nope")
	n.Error(context.Background(), uuid.Nil, "anonymous")

	require.Len(t, feed.published, 2)
	require.Equal(t, model.ChangeNotice, feed.published[0].Kind)
	require.Equal(t, model.Notice{Level: model.NoticeSuccess, Message: "done"}, *feed.published[0].Notice)
	require.Equal(t, model.NoticeError, feed.published[1].Notice.Level)
	require.Equal(t, id, feed.published[1].UserID)
}

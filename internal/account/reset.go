package account

import (
	"context"
	"time"

	"github.com/and161185/codepilot/internal/changefeed"
	"github.com/and161185/codepilot/internal/metrics"
	"github.com/and161185/codepilot/internal/model"
	"github.com/and161185/codepilot/internal/repository"
	"go.uber.org/zap"
)

// StartOfMonth returns midnight UTC on the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Resetter zeroes tasks_this_month for profiles last reset before the current month
// and publishes each reset profile so live sessions follow.
type Resetter struct {
	repo     repository.ProfileRepository
	feed     changefeed.Feed
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// NewResetter builds a Resetter that runs every interval.
func NewResetter(repo repository.ProfileRepository, feed changefeed.Feed, interval time.Duration, log *zap.Logger) *Resetter {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Resetter{repo: repo, feed: feed, interval: interval, log: log, now: time.Now}
}

// Once runs a single reset pass and returns the number of profiles touched.
func (r *Resetter) Once(ctx context.Context) (int64, error) {
	reset, err := r.repo.ResetMonthlyTasks(ctx, StartOfMonth(r.now()))
	if err != nil {
		r.log.Warn("reset monthly tasks", zap.Error(err))
		return 0, err
	}
	if len(reset) == 0 {
		return 0, nil
	}
	r.log.Info("monthly tasks reset", zap.Int("profiles", len(reset)))

	if r.feed != nil {
		at := r.now()
		for i := range reset {
			p := reset[i]
			c := model.Change{Kind: model.ChangeProfileUpdated, UserID: p.UserID, At: at, Profile: &p}
			if err := r.feed.Publish(ctx, c); err != nil {
				metrics.RecordBestEffortFailure(metrics.TargetFeed)
				r.log.Warn("publish reset", zap.String("user_id", p.UserID.String()), zap.Error(err))
			}
		}
	}
	return int64(len(reset)), nil
}

// Run resets immediately and then on every tick until ctx is done.
func (r *Resetter) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		_, _ = r.Once(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/codepilot/internal/catalog"
	"github.com/and161185/codepilot/internal/changefeed"
	"github.com/and161185/codepilot/internal/errs"
	"github.com/and161185/codepilot/internal/metrics"
	"github.com/and161185/codepilot/internal/model"
	"github.com/and161185/codepilot/internal/repository"
	"github.com/and161185/codepilot/internal/usage"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// User-facing messages.
const (
	MsgNoProfile    = "Please sign in to use this tool"
	MsgInsufficient = "Insufficient credits"
	MsgInvalid      = "Invalid tool request"
	MsgFailed       = "Could not deduct credits, please try again"
)

// CheckCredits reports whether the cached balance covers cost. A missing profile
// counts as a zero balance.
func CheckCredits(p *model.Profile, cost int) bool {
	balance := 0
	if p != nil {
		balance = p.CreditsRemaining
	}
	return cost <= balance
}

// Ledger applies credit deductions. The profile debit is authoritative; the mirror,
// activity and export writes are best-effort.
type Ledger struct {
	profiles   repository.ProfileRepository
	mirrors    repository.CreditMirrorRepository
	activities repository.ActivityRepository
	feed       changefeed.Feed
	notify     Notifier
	export     usage.Exporter
	log        *zap.Logger
	now        func() time.Time
}

// NewLedger constructs a Ledger. A nil notifier or exporter disables that output.
func NewLedger(
	profiles repository.ProfileRepository,
	mirrors repository.CreditMirrorRepository,
	activities repository.ActivityRepository,
	feed changefeed.Feed,
	notify Notifier,
	export usage.Exporter,
	log *zap.Logger,
) *Ledger {
	if notify == nil {
		notify = NopNotifier{}
	}
	if export == nil {
		export = usage.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		profiles:   profiles,
		mirrors:    mirrors,
		activities: activities,
		feed:       feed,
		notify:     notify,
		export:     export,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Deduct charges d.Cost against the session's identity. A nil error means the balance
// was debited; failures of the later best-effort writes are reported in the receipt.
func (l *Ledger) Deduct(ctx context.Context, s *Session, d model.Deduction) (model.Receipt, error) {
	var userID uuid.UUID
	if s != nil {
		userID = s.UserID()
	}

	d.ToolName = strings.TrimSpace(d.ToolName)
	if d.ToolName == "" {
		return l.reject(ctx, userID, d, metrics.OutcomeInvalid, MsgInvalid,
			fmt.Errorf("empty tool name: %w", errs.ErrInvalidArgument))
	}
	if err := catalog.CheckPrice(d.ToolName, d.Cost); err != nil {
		return l.reject(ctx, userID, d, metrics.OutcomeInvalid, MsgInvalid, err)
	}

	var cached *model.Profile
	if s != nil {
		cached = s.Profile()
	}
	if cached == nil {
		return l.reject(ctx, userID, d, metrics.OutcomeNoProfile, MsgNoProfile, errs.ErrNoProfile)
	}
	if !CheckCredits(cached, d.Cost) {
		return l.reject(ctx, userID, d, metrics.OutcomeInsufficient, MsgInsufficient, errs.ErrInsufficientCredits)
	}

	log := l.log.With(zap.String("user_id", userID.String()), zap.String("tool", d.ToolName), zap.Int("cost", d.Cost))

	p, err := l.profiles.Debit(ctx, userID, d.Cost)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrInsufficientCredits):
			return l.reject(ctx, userID, d, metrics.OutcomeInsufficient, MsgInsufficient, err)
		case errors.Is(err, errs.ErrNotFound):
			return l.reject(ctx, userID, d, metrics.OutcomeNoProfile, MsgNoProfile, errs.ErrNoProfile)
		}
		log.Error("debit profile", zap.Error(err))
		return l.reject(ctx, userID, d, metrics.OutcomeFailed, MsgFailed, fmt.Errorf("debit: %w", err))
	}

	// The debit is committed; the rest runs to completion regardless of the caller.
	ctx = context.WithoutCancel(ctx)

	rc := model.Receipt{
		UserID:         userID,
		ToolName:       d.ToolName,
		Cost:           d.Cost,
		NewBalance:     p.CreditsRemaining,
		TasksThisMonth: p.TasksThisMonth,
		UpdatedAt:      p.UpdatedAt,
	}

	mirror := model.CreditMirror{
		UserID:           userID,
		CreditsRemaining: p.CreditsRemaining,
		Plan:             p.Plan,
		UpdatedAt:        l.now(),
	}
	if err := l.mirrors.Upsert(ctx, mirror); err != nil {
		rc.MirrorErr = true
		metrics.RecordBestEffortFailure(metrics.TargetMirror)
		log.Warn("mirror credits", zap.Error(err))
	}

	act, err := l.activities.Insert(ctx, &model.Activity{
		UserID:        userID,
		ToolName:      d.ToolName,
		InputSnippet:  model.Snippet(d.Input),
		OutputSnippet: model.Snippet(d.Output),
		CreditsUsed:   d.Cost,
	})
	if err != nil {
		rc.ActivityErr = true
		act = nil
		metrics.RecordBestEffortFailure(metrics.TargetActivity)
		log.Warn("insert activity", zap.Error(err))
	}

	l.notify.Success(ctx, userID, fmt.Sprintf("Used %d credit(s) for %s, %d left", d.Cost, d.ToolName, p.CreditsRemaining))
	metrics.RecordDeduction(metrics.OutcomeOK, d.ToolName, d.Cost)

	at := l.now()
	l.publish(ctx, log, model.Change{Kind: model.ChangeProfileUpdated, UserID: userID, At: at, Profile: p})
	if act != nil {
		l.publish(ctx, log, model.Change{Kind: model.ChangeActivityInserted, UserID: userID, At: at, Activity: act})
		if err := l.export.Export(ctx, *act); err != nil {
			metrics.RecordBestEffortFailure(metrics.TargetUsage)
			log.Warn("export usage", zap.Error(err))
		}
	}
	receipt := rc
	l.publish(ctx, log, model.Change{Kind: model.ChangeCreditsDeducted, UserID: userID, At: at, Receipt: &receipt})

	return rc, nil
}

func (l *Ledger) reject(ctx context.Context, userID uuid.UUID, d model.Deduction, outcome, msg string, err error) (model.Receipt, error) {
	metrics.RecordDeduction(outcome, d.ToolName, d.Cost)
	l.notify.Error(ctx, userID, msg)
	return model.Receipt{}, err
}

func (l *Ledger) publish(ctx context.Context, log *zap.Logger, c model.Change) {
	if l.feed == nil {
		return
	}
	if err := l.feed.Publish(ctx, c); err != nil {
		metrics.RecordBestEffortFailure(metrics.TargetFeed)
		log.Warn("publish change", zap.String("kind", string(c.Kind)), zap.Error(err))
	}
}

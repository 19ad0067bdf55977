// Package convert maps domain models to and from api messages.
package convert

import (
	"fmt"
	"strings"
	"time"

	"github.com/and161185/codepilot/internal/api"
	"github.com/and161185/codepilot/internal/catalog"
	"github.com/and161185/codepilot/internal/errs"
	"github.com/and161185/codepilot/internal/model"
)

// --- helpers ---

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime parses an api timestamp; empty yields the zero time.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// --- model -> api ---

// ToAPIProfile converts a profile; nil stays nil.
func ToAPIProfile(p *model.Profile) *api.Profile {
	if p == nil {
		return nil
	}
	return &api.Profile{
		UserID:           p.UserID.String(),
		DisplayName:      cloneStr(p.DisplayName),
		Email:            cloneStr(p.Email),
		Plan:             string(p.Plan),
		CreditsRemaining: p.CreditsRemaining,
		TasksThisMonth:   p.TasksThisMonth,
		CreatedAt:        ts(p.CreatedAt),
		UpdatedAt:        ts(p.UpdatedAt),
	}
}

// ToAPIActivity converts one activity.
func ToAPIActivity(a model.Activity) api.Activity {
	return api.Activity{
		ID:            a.ID.String(),
		ToolName:      a.ToolName,
		InputSnippet:  cloneStr(a.InputSnippet),
		OutputSnippet: cloneStr(a.OutputSnippet),
		CreditsUsed:   a.CreditsUsed,
		CreatedAt:     ts(a.CreatedAt),
	}
}

// ToAPIActivities converts a list, never returning nil.
func ToAPIActivities(in []model.Activity) []api.Activity {
	out := make([]api.Activity, 0, len(in))
	for _, a := range in {
		out = append(out, ToAPIActivity(a))
	}
	return out
}

// ToAPIDashboard converts a snapshot.
func ToAPIDashboard(s model.Snapshot) *api.Dashboard {
	return &api.Dashboard{
		Profile:    ToAPIProfile(s.Profile),
		Activities: ToAPIActivities(s.Activities),
		Loading:    s.Loading,
	}
}

// ToAPIReceipt converts a receipt.
func ToAPIReceipt(r model.Receipt) api.Receipt {
	return api.Receipt{
		ToolName:       r.ToolName,
		Cost:           r.Cost,
		NewBalance:     r.NewBalance,
		TasksThisMonth: r.TasksThisMonth,
		MirrorFailed:   r.MirrorErr,
		ActivityFailed: r.ActivityErr,
	}
}

// ToAPITools converts the catalog.
func ToAPITools(in []catalog.Tool) []api.Tool {
	out := make([]api.Tool, 0, len(in))
	for _, t := range in {
		out = append(out, api.Tool{Name: t.Name, Title: t.Title, Cost: t.Cost})
	}
	return out
}

// ToAPIChange converts a change feed event.
func ToAPIChange(c model.Change) *api.Change {
	out := &api.Change{Kind: string(c.Kind), At: ts(c.At), Profile: ToAPIProfile(c.Profile)}
	if c.Activity != nil {
		a := ToAPIActivity(*c.Activity)
		out.Activity = &a
	}
	if c.Receipt != nil {
		r := ToAPIReceipt(*c.Receipt)
		out.Receipt = &r
	}
	if c.Notice != nil {
		out.Notice = &api.Notice{Level: string(c.Notice.Level), Message: c.Notice.Message}
	}
	return out
}

// --- api -> model (client -> server) ---

// FromAPIDeduction validates and converts a deduction request.
func FromAPIDeduction(in *api.DeductCreditsRequest) (model.Deduction, error) {
	if in == nil {
		return model.Deduction{}, fmt.Errorf("nil request: %w", errs.ErrInvalidArgument)
	}
	name := strings.TrimSpace(in.ToolName)
	if name == "" {
		return model.Deduction{}, fmt.Errorf("empty tool name: %w", errs.ErrInvalidArgument)
	}
	if in.Cost <= 0 {
		return model.Deduction{}, fmt.Errorf("cost must be positive: %w", errs.ErrInvalidArgument)
	}
	return model.Deduction{ToolName: name, Cost: in.Cost, Input: in.Input, Output: in.Output}, nil
}

// FromAPIProfileEdit converts an edit request; plan labels are matched case-insensitively.
func FromAPIProfileEdit(in *api.UpdateProfileRequest) (model.ProfileEdit, error) {
	if in == nil {
		return model.ProfileEdit{}, fmt.Errorf("nil request: %w", errs.ErrInvalidArgument)
	}
	edit := model.ProfileEdit{DisplayName: cloneStr(in.DisplayName)}
	if in.Plan != nil {
		plan, ok := parsePlan(*in.Plan)
		if !ok {
			return model.ProfileEdit{}, fmt.Errorf("unknown plan %q: %w", *in.Plan, errs.ErrInvalidArgument)
		}
		edit.Plan = &plan
	}
	return edit, nil
}

func parsePlan(s string) (model.Plan, bool) {
	for _, p := range []model.Plan{model.PlanFree, model.PlanPro, model.PlanTeam} {
		if strings.EqualFold(strings.TrimSpace(s), string(p)) {
			return p, true
		}
	}
	return "", false
}

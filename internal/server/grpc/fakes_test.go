package grpcserver

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/codepilot/internal/errs"
	"github.com/and161185/codepilot/internal/model"
	"github.com/and161185/codepilot/internal/service"
	"github.com/gofrs/uuid/v5"
)

// fakeAuth issues real HS256 tokens so the auth interceptor runs end to end.
type fakeAuth struct {
	key []byte
	id  model.Identity
}

var _ service.AuthService = (*fakeAuth)(nil)

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		key: []byte("test-secret"),
		id:  model.Identity{ID: uuid.Must(uuid.NewV4()), Email: "dev@example.com"},
	}
}

func (f *fakeAuth) Register(context.Context, string, string) (string, error) {
	return f.id.ID.String(), nil
}

func (f *fakeAuth) LoginWithIP(_ context.Context, _, password, _ string) (model.Tokens, model.Identity, error) {
	if password == "wrong" {
		return model.Tokens{}, model.Identity{}, errs.ErrUnauthorized
	}
	return model.Tokens{AccessToken: "unused", ExpiresAt: time.Now().Add(time.Minute)}, f.id, nil
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (model.Identity, error) {
	id, err := service.ParseAccessToken(token, f.key)
	if err != nil || id != f.id.ID {
		return model.Identity{}, errs.ErrUnauthorized
	}
	return f.id, nil
}

type memProfiles struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.Profile
}

func newMemProfiles() *memProfiles { return &memProfiles{rows: make(map[uuid.UUID]model.Profile)} }

func (m *memProfiles) Get(_ context.Context, id uuid.UUID) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &p, nil
}

func (m *memProfiles) Create(_ context.Context, p *model.Profile) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[p.UserID]; ok {
		return nil, errs.ErrAlreadyExists
	}
	out := *p
	out.CreatedAt, out.UpdatedAt = time.Now(), time.Now()
	m.rows[p.UserID] = out
	return &out, nil
}

func (m *memProfiles) Debit(_ context.Context, id uuid.UUID, cost int) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if p.CreditsRemaining < cost {
		return nil, errs.ErrInsufficientCredits
	}
	p.CreditsRemaining -= cost
	p.TasksThisMonth++
	p.UpdatedAt = time.Now()
	m.rows[id] = p
	return &p, nil
}

func (m *memProfiles) Update(_ context.Context, id uuid.UUID, edit model.ProfileEdit) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if edit.DisplayName != nil {
		p.DisplayName = edit.DisplayName
	}
	if edit.Plan != nil {
		p.Plan = *edit.Plan
	}
	p.UpdatedAt = time.Now()
	m.rows[id] = p
	return &p, nil
}

func (m *memProfiles) ResetMonthlyTasks(context.Context, time.Time) ([]model.Profile, error) {
	return nil, nil
}

type memActivities struct {
	mu   sync.Mutex
	rows []model.Activity
}

func (m *memActivities) Insert(_ context.Context, a *model.Activity) (*model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *a
	out.ID = uuid.Must(uuid.NewV4())
	out.CreatedAt = time.Now()
	m.rows = append(m.rows, out)
	return &out, nil
}

func (m *memActivities) ListRecent(_ context.Context, id uuid.UUID, limit int) ([]model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Activity
	for i := len(m.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if m.rows[i].UserID == id {
			out = append(out, m.rows[i])
		}
	}
	return out, nil
}

type memMirrors struct{}

func (memMirrors) Upsert(context.Context, model.CreditMirror) error { return nil }

package account

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/and161185/codepilot/internal/errs"
	"github.com/and161185/codepilot/internal/model"
	"github.com/and161185/codepilot/internal/repository"
	"github.com/gofrs/uuid/v5"
)

type fakeProfiles struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]model.Profile
	getErr    error
	createErr error
	debitErr  error
	updateErr error
	gets      int
	creates   int
	debits    int
}

var _ repository.ProfileRepository = (*fakeProfiles)(nil)

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{rows: make(map[uuid.UUID]model.Profile)}
}

func (f *fakeProfiles) put(p model.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[p.UserID] = p
}

func (f *fakeProfiles) row(id uuid.UUID) (model.Profile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	return p, ok
}

func (f *fakeProfiles) Get(_ context.Context, id uuid.UUID) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.rows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &p, nil
}

func (f *fakeProfiles) Create(_ context.Context, p *model.Profile) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.rows[p.UserID]; ok {
		return nil, errs.ErrAlreadyExists
	}
	out := *p
	out.CreatedAt, out.UpdatedAt = time.Now(), time.Now()
	f.rows[p.UserID] = out
	return &out, nil
}

func (f *fakeProfiles) Debit(_ context.Context, id uuid.UUID, cost int) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.debits++
	if f.debitErr != nil {
		return nil, f.debitErr
	}
	p, ok := f.rows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if p.CreditsRemaining < cost {
		return nil, errs.ErrInsufficientCredits
	}
	p.CreditsRemaining -= cost
	p.TasksThisMonth++
	p.UpdatedAt = time.Now()
	f.rows[id] = p
	return &p, nil
}

func (f *fakeProfiles) Update(_ context.Context, id uuid.UUID, edit model.ProfileEdit) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	p, ok := f.rows[id]
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
	f.rows[id] = p
	return &p, nil
}

func (f *fakeProfiles) ResetMonthlyTasks(context.Context, time.Time) ([]model.Profile, error) {
	return nil, nil
}

type fakeActivities struct {
	mu        sync.Mutex
	rows      []model.Activity
	insertErr error
	listErr   error
}

var _ repository.ActivityRepository = (*fakeActivities)(nil)

func (f *fakeActivities) Insert(_ context.Context, a *model.Activity) (*model.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	out := *a
	out.ID = uuid.Must(uuid.NewV4())
	out.CreatedAt = time.Now()
	f.rows = append(f.rows, out)
	return &out, nil
}

func (f *fakeActivities) ListRecent(_ context.Context, id uuid.UUID, limit int) ([]model.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Activity
	for i := len(f.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if f.rows[i].UserID == id {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

func (f *fakeActivities) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeMirrors struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.CreditMirror
	err  error
}

var _ repository.CreditMirrorRepository = (*fakeMirrors)(nil)

func (f *fakeMirrors) Upsert(_ context.Context, m model.CreditMirror) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.rows == nil {
		f.rows = make(map[uuid.UUID]model.CreditMirror)
	}
	f.rows[m.UserID] = m
	return nil
}

type notice struct {
	userID uuid.UUID
	ok     bool
	msg    string
}

type recNotifier struct {
	mu  sync.Mutex
	got []notice
}

func (n *recNotifier) Success(_ context.Context, id uuid.UUID, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, notice{id, true, msg})
}

func (n *recNotifier) Error(_ context.Context, id uuid.UUID, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, notice{id, false, msg})
}

func (n *recNotifier) last() notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.got) == 0 {
		return notice{}
	}
	return n.got[len(n.got)-1]
}

// recFeed records published changes and can fail subscriptions.
type recFeed struct {
	mu        sync.Mutex
	published []model.Change
	pubErr    error
	subErr    error
}

func (f *recFeed) Publish(_ context.Context, c model.Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, c)
	return f.pubErr
}

func (f *recFeed) Subscribe(context.Context, uuid.UUID) (<-chan model.Change, func(), error) {
	if f.subErr != nil {
		return nil, nil, f.subErr
	}
	ch := make(chan model.Change)
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }, nil
}

func (f *recFeed) kinds() []model.ChangeKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.ChangeKind, 0, len(f.published))
	for _, c := range f.published {
		out = append(out, c.Kind)
	}
	return out
}

type fakeExporter struct {
	mu  sync.Mutex
	got []model.Activity
	err error
}

func (e *fakeExporter) Export(_ context.Context, a model.Activity) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, a)
	return e.err
}

var errBackend = errors.New("backend unavailable")

func newIdentity() model.Identity {
	return model.Identity{ID: uuid.Must(uuid.NewV4()), Email: "dev@example.com"}
}

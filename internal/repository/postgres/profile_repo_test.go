package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/codepilot/internal/errs"
	"github.com/and161185/codepilot/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

var profileColNames = []string{
	"user_id", "display_name", "email", "plan_type", "credits_remaining", "tasks_this_month", "created_at", "updated_at",
}

func profileRows(id uuid.UUID, plan string, credits, tasks int) *pgxmock.Rows {
	now := time.Now()
	email := "dev@example.com"
	return pgxmock.NewRows(profileColNames).
		AddRow(id, (*string)(nil), &email, plan, credits, tasks, now, now)
}

func TestProfileRepo_Get(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT user_id, display_name, email, plan_type, credits_remaining, tasks_this_month, created_at, updated_at FROM profiles WHERE user_id=\$1`).
		WithArgs(id).
		WillReturnRows(profileRows(id, "Pro", 7, 2))
	p, err := r.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, p.UserID)
	require.Equal(t, model.PlanPro, p.Plan)
	require.Equal(t, 7, p.CreditsRemaining)
	require.Nil(t, p.DisplayName)
	require.Equal(t, "dev@example.com", *p.Email)

	mock.ExpectQuery(`FROM profiles WHERE user_id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, id)
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectQuery(`FROM profiles WHERE user_id=\$1`).
		WithArgs(id).
		WillReturnError(errors.New("conn reset"))
	_, err = r.Get(ctx, id)
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	p := model.NewProfile(id, "dev@example.com")

	mock.ExpectQuery(`INSERT INTO profiles \(user_id, display_name, email, plan_type, credits_remaining, tasks_this_month\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6\) RETURNING`).
		WithArgs(id, p.DisplayName, p.Email, "Free", 5, 0).
		WillReturnRows(profileRows(id, "Free", 5, 0))
	out, err := r.Create(ctx, p)
	require.NoError(t, err)
	require.Equal(t, 5, out.CreditsRemaining)
	require.Equal(t, model.PlanFree, out.Plan)
	require.False(t, out.CreatedAt.IsZero())

	mock.ExpectQuery(`INSERT INTO profiles`).
		WithArgs(id, p.DisplayName, p.Email, "Free", 5, 0).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	_, err = r.Create(ctx, p)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestProfileRepo_Debit_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`UPDATE profiles SET credits_remaining = credits_remaining - \$2, tasks_this_month = CASE WHEN tasks_reset_at < date_trunc\('month', now\(\), 'UTC'\) THEN 1 ELSE tasks_this_month \+ 1 END, tasks_reset_at = CASE .* END, updated_at = now\(\) WHERE user_id = \$1 AND credits_remaining >= \$2 RETURNING`).
		WithArgs(id, 5).
		WillReturnRows(profileRows(id, "Free", 0, 1))
	p, err := r.Debit(ctx, id, 5)
	require.NoError(t, err)
	require.Equal(t, 0, p.CreditsRemaining)
	require.Equal(t, 1, p.TasksThisMonth)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepo_Debit_Insufficient(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`UPDATE profiles SET credits_remaining`).
		WithArgs(id, 5).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM profiles WHERE user_id=\$1\)`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	_, err := r.Debit(ctx, id, 5)
	require.ErrorIs(t, err, errs.ErrInsufficientCredits)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepo_Debit_NoProfile(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`UPDATE profiles SET credits_remaining`).
		WithArgs(id, 1).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	_, err := r.Debit(ctx, id, 1)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestProfileRepo_Debit_BackendError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`UPDATE profiles SET credits_remaining`).
		WithArgs(id, 1).
		WillReturnError(errors.New("db down"))
	_, err := r.Debit(context.Background(), id, 1)
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrInsufficientCredits)
	require.NotErrorIs(t, err, errs.ErrNotFound)
}

func TestProfileRepo_Update(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	name := "Ada"
	plan := model.PlanTeam

	mock.ExpectQuery(`UPDATE profiles SET display_name = COALESCE\(\$2, display_name\), plan_type = COALESCE\(\$3, plan_type\)`).
		WithArgs(id, &name, pgxmock.AnyArg()).
		WillReturnRows(profileRows(id, "Team", 5, 0))
	p, err := r.Update(ctx, id, model.ProfileEdit{DisplayName: &name, Plan: &plan})
	require.NoError(t, err)
	require.Equal(t, model.PlanTeam, p.Plan)

	mock.ExpectQuery(`UPDATE profiles SET display_name`).
		WithArgs(id, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Update(ctx, id, model.ProfileEdit{})
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestProfileRepo_ResetMonthlyTasks(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	before := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())

	rows := profileRows(a, "Free", 3, 0)
	rows.AddRow(b, (*string)(nil), (*string)(nil), "Pro", 40, 0, time.Now(), time.Now())
	mock.ExpectQuery(`UPDATE profiles SET tasks_this_month = 0, tasks_reset_at = now\(\), updated_at = now\(\) WHERE tasks_reset_at < \$1 RETURNING`).
		WithArgs(before).
		WillReturnRows(rows)
	got, err := r.ResetMonthlyTasks(context.Background(), before)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, a, got[0].UserID)
	require.Equal(t, model.PlanPro, got[1].Plan)

	mock.ExpectQuery(`UPDATE profiles SET tasks_this_month = 0`).
		WithArgs(before).
		WillReturnError(errors.New("boom"))
	_, err = r.ResetMonthlyTasks(context.Background(), before)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

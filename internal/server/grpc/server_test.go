package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/and161185/codepilot/internal/account"
	"github.com/and161185/codepilot/internal/api"
	"github.com/and161185/codepilot/internal/changefeed"
	"github.com/and161185/codepilot/internal/errs"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1 << 20

type harness struct {
	auth     *fakeAuth
	profiles *memProfiles
	registry *account.Registry
	cl       *api.Client
}

func startBufGRPC(t *testing.T) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	a := newFakeAuth()
	profiles := newMemProfiles()
	acts := &memActivities{}
	feed := changefeed.NewLocal(changefeed.DefaultBuffer)

	registry := account.NewRegistry(account.NewLoader(profiles, acts, log), feed, log)
	ledger := account.NewLedger(profiles, memMirrors{}, acts, feed, account.NewFeedNotifier(feed, log), nil, log)
	srv := New(a, registry, ledger, account.NewProfiles(profiles, feed, log), feed, log)

	lis := bufconn.Listen(bufSize)
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(RecoverUnary(log), MetricsUnary(), AuthUnary(a)),
		grpc.ChainStreamInterceptor(RecoverStream(log), MetricsStream(), AuthStream(a)),
	)
	api.RegisterCodePilotServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	//nolint:staticcheck // DialContext is supported through 1.x; migrate when grpc.NewClient is stable
	cc, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(); gs.Stop(); registry.Close(); _ = lis.Close() })
	return &harness{auth: a, profiles: profiles, registry: registry, cl: api.NewClient(cc)}
}

/************ helpers ************/
func jwtFor(t *testing.T, sub string, key []byte, ttl time.Duration) string {
	t.Helper()
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl + 5*time.Second)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return s
}

func (h *harness) authed(t *testing.T) context.Context {
	t.Helper()
	tok := jwtFor(t, h.auth.id.ID.String(), h.auth.key, time.Minute)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+tok)
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if st, ok := status.FromError(err); !ok || st.Code() != code {
		t.Fatalf("want %v, got %v", code, err)
	}
}

func TestServer_E2E_BasicFlow(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)
	bg := context.Background()

	r1, err := h.cl.Register(bg, &api.RegisterRequest{Email: "dev@example.com", Password: "password1"})
	if err != nil || r1.UserID != h.auth.id.ID.String() {
		t.Fatalf("register: %v, resp=%+v", err, r1)
	}
	r2, err := h.cl.Login(bg, &api.LoginRequest{Email: "dev@example.com", Password: "password1"})
	if err != nil || r2.UserID != h.auth.id.ID.String() || r2.ExpiresAt == "" {
		t.Fatalf("login: %v, resp=%+v", err, r2)
	}

	tools, err := h.cl.ListTools(bg, &api.ListToolsRequest{})
	if err != nil || len(tools.Tools) == 0 {
		t.Fatalf("list tools: %v", err)
	}

	ctx := h.authed(t)
	dash, err := h.cl.GetDashboard(ctx, &api.GetDashboardRequest{})
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dash.Profile == nil || dash.Profile.CreditsRemaining != 5 || dash.Profile.Plan != "Free" {
		t.Fatalf("first load must create a default profile: %+v", dash.Profile)
	}

	cr, err := h.cl.CheckCredits(ctx, &api.CheckCreditsRequest{Cost: 3})
	if err != nil || !cr.Allowed || cr.Balance != 5 {
		t.Fatalf("check: %v, resp=%+v", err, cr)
	}

	dr, err := h.cl.DeductCredits(ctx, &api.DeductCreditsRequest{ToolName: "code-review", Cost: 3, Input: "func main() {}"})
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if dr.Receipt.NewBalance != 2 || dr.Receipt.TasksThisMonth != 1 || dr.Receipt.ActivityFailed {
		t.Fatalf("bad receipt: %+v", dr.Receipt)
	}

	if _, err := h.cl.DeductCredits(ctx, &api.DeductCreditsRequest{ToolName: "bug-fixer", Cost: 2}); err != nil {
		t.Fatalf("second deduct: %v", err)
	}
	_, err = h.cl.DeductCredits(ctx, &api.DeductCreditsRequest{ToolName: "code-generator", Cost: 1})
	wantCode(t, err, codes.FailedPrecondition)

	p, _ := h.profiles.Get(bg, h.auth.id.ID)
	if p.CreditsRemaining != 0 || p.TasksThisMonth != 2 {
		t.Fatalf("stored profile: %+v", p)
	}

	dash, err = h.cl.GetDashboard(ctx, &api.GetDashboardRequest{})
	if err != nil || len(dash.Activities) != 2 || dash.Activities[0].ToolName != "bug-fixer" {
		t.Fatalf("dashboard after deducts: %v, %+v", err, dash)
	}
}

func TestServer_Unauthenticated(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)
	bg := context.Background()

	_, err := h.cl.GetDashboard(bg, &api.GetDashboardRequest{})
	wantCode(t, err, codes.Unauthenticated)

	_, err = h.cl.DeductCredits(bg, &api.DeductCreditsRequest{ToolName: "bug-fixer", Cost: 2})
	wantCode(t, err, codes.Unauthenticated)

	bad := jwtFor(t, h.auth.id.ID.String(), []byte("other-key"), time.Minute)
	ctx := metadata.AppendToOutgoingContext(bg, "authorization", "Bearer "+bad)
	_, err = h.cl.CheckCredits(ctx, &api.CheckCreditsRequest{Cost: 1})
	wantCode(t, err, codes.Unauthenticated)

	w, err := h.cl.Watch(bg, &api.WatchRequest{})
	if err == nil {
		_, err = w.Recv()
	}
	wantCode(t, err, codes.Unauthenticated)

	_, err = h.cl.Login(bg, &api.LoginRequest{Email: "dev@example.com", Password: "wrong"})
	wantCode(t, err, codes.Unauthenticated)
}

func TestServer_Deduct_Validation(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)
	ctx := h.authed(t)

	_, err := h.cl.DeductCredits(ctx, &api.DeductCreditsRequest{ToolName: " ", Cost: 1})
	wantCode(t, err, codes.InvalidArgument)
	_, err = h.cl.DeductCredits(ctx, &api.DeductCreditsRequest{ToolName: "bug-fixer", Cost: 0})
	wantCode(t, err, codes.InvalidArgument)
	_, err = h.cl.DeductCredits(ctx, &api.DeductCreditsRequest{ToolName: "bug-fixer", Cost: 1})
	wantCode(t, err, codes.InvalidArgument)

	p, err := h.profiles.Get(context.Background(), h.auth.id.ID)
	if err != nil || p.CreditsRemaining != 5 {
		t.Fatalf("rejected deductions must not debit: %v %+v", err, p)
	}
}

func TestServer_UpdateProfile(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)
	ctx := h.authed(t)

	if _, err := h.cl.GetDashboard(ctx, &api.GetDashboardRequest{}); err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	name, plan := "Ada", "pro"
	resp, err := h.cl.UpdateProfile(ctx, &api.UpdateProfileRequest{DisplayName: &name, Plan: &plan})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if resp.Profile.DisplayName == nil || *resp.Profile.DisplayName != "Ada" || resp.Profile.Plan != "Pro" {
		t.Fatalf("bad profile: %+v", resp.Profile)
	}

	bogus := "Enterprise"
	_, err = h.cl.UpdateProfile(ctx, &api.UpdateProfileRequest{Plan: &bogus})
	wantCode(t, err, codes.InvalidArgument)

	_, err = h.cl.UpdateProfile(ctx, &api.UpdateProfileRequest{})
	wantCode(t, err, codes.InvalidArgument)
}

func TestServer_Watch_StreamsChanges(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)
	ctx, cancel := context.WithTimeout(h.authed(t), 5*time.Second)
	defer cancel()

	w, err := h.cl.Watch(ctx, &api.WatchRequest{})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	first, err := w.Recv()
	if err != nil || first.Kind != "profile_updated" || first.Profile == nil || first.Profile.CreditsRemaining != 5 {
		t.Fatalf("first change: %v, %+v", err, first)
	}

	if _, err := h.cl.DeductCredits(ctx, &api.DeductCreditsRequest{ToolName: "refactor", Cost: 2}); err != nil {
		t.Fatalf("deduct: %v", err)
	}

	seen := map[string]bool{}
	for !(seen["credits_deducted"] && seen["activity_inserted"] && seen["notice"]) {
		c, err := w.Recv()
		if err != nil {
			t.Fatalf("recv: %v (seen %v)", err, seen)
		}
		seen[c.Kind] = true
		if c.Kind == "credits_deducted" && (c.Receipt == nil || c.Receipt.NewBalance != 3) {
			t.Fatalf("bad receipt change: %+v", c.Receipt)
		}
	}
}

func TestServer_RejectsMissingIdentity(t *testing.T) {
	t.Parallel()

	s := New(newFakeAuth(), nil, nil, nil, nil, nil)
	_, err := s.Register(context.Background(), &api.RegisterRequest{})
	wantCode(t, err, codes.InvalidArgument)

	_, err = s.GetDashboard(context.Background(), &api.GetDashboardRequest{})
	wantCode(t, err, codes.Unauthenticated)
	_, err = s.UpdateProfile(context.Background(), &api.UpdateProfileRequest{})
	wantCode(t, err, codes.Unauthenticated)
}

func Test_toStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want codes.Code
	}{
		{errs.ErrInsufficientCredits, codes.FailedPrecondition},
		{errs.ErrNoProfile, codes.FailedPrecondition},
		{fmt.Errorf("bad cost: %w", errs.ErrInvalidArgument), codes.InvalidArgument},
		{errs.ErrNotFound, codes.NotFound},
		{errs.ErrUnauthorized, codes.Unauthenticated},
		{errs.ErrRateLimited, codes.ResourceExhausted},
		{errs.ErrAlreadyExists, codes.AlreadyExists},
		{context.Canceled, codes.Canceled},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("db down"), codes.Internal},
	}
	for _, tc := range cases {
		if got := status.Code(toStatus("op", tc.err)); got != tc.want {
			t.Fatalf("%v: got %v want %v", tc.err, got, tc.want)
		}
	}
	if toStatus("op", nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func Test_remoteIP(t *testing.T) {
	if got := remoteIP(context.Background()); got != "" {
		t.Fatalf("want empty, got %q", got)
	}
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: fakeAddr{}})
	if got := remoteIP(ctx); got != "127.0.0.1" {
		t.Fatalf("got %q", got)
	}
}

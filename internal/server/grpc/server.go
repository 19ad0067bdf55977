// Package grpcserver exposes the CodePilot gRPC API handlers.
package grpcserver

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/and161185/codepilot/internal/account"
	"github.com/and161185/codepilot/internal/api"
	"github.com/and161185/codepilot/internal/catalog"
	"github.com/and161185/codepilot/internal/changefeed"
	"github.com/and161185/codepilot/internal/convert"
	"github.com/and161185/codepilot/internal/errs"
	"github.com/and161185/codepilot/internal/model"
	"github.com/and161185/codepilot/internal/service"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// Server wires services into gRPC handlers.
type Server struct {
	api.UnimplementedCodePilotServer
	auth     service.AuthService
	registry *account.Registry
	ledger   *account.Ledger
	profiles *account.Profiles
	feed     changefeed.Feed
	log      *zap.Logger
}

// New constructs a gRPC server with injected services.
func New(
	auth service.AuthService,
	registry *account.Registry,
	ledger *account.Ledger,
	profiles *account.Profiles,
	feed changefeed.Feed,
	log *zap.Logger,
) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{auth: auth, registry: registry, ledger: ledger, profiles: profiles, feed: feed, log: log}
}

// toStatus maps domain errors to gRPC status codes.
func toStatus(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrInsufficientCredits):
		return status.Error(codes.FailedPrecondition, "insufficient credits")
	case errors.Is(err, errs.ErrNoProfile):
		return status.Error(codes.FailedPrecondition, "no profile loaded")
	case errors.Is(err, errs.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "bad credentials")
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, op+": canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, op+": deadline exceeded")
	default:
		return status.Errorf(codes.Internal, "%s: %v", op, err)
	}
}

// remoteIP returns the caller's host without the port.
func remoteIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// --- Auth ---

// Register creates a new identity.
func (s *Server) Register(ctx context.Context, req *api.RegisterRequest) (*api.RegisterResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, status.Error(codes.InvalidArgument, "empty email/password")
	}
	userID, err := s.auth.Register(ctx, req.Email, req.Password)
	if err != nil {
		return nil, toStatus("register", err)
	}
	return &api.RegisterResponse{UserID: userID}, nil
}

// Login authenticates an identity and returns an access token.
func (s *Server) Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResponse, error) {
	tok, id, err := s.auth.LoginWithIP(ctx, req.Email, req.Password, remoteIP(ctx))
	if err != nil {
		return nil, toStatus("login", err)
	}
	return &api.LoginResponse{
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.ExpiresAt.UTC().Format(time.RFC3339),
		UserID:      id.ID.String(),
	}, nil
}

// --- Account ---

// session resolves the caller and acquires its live session.
func (s *Server) session(ctx context.Context) (*account.Session, func(), error) {
	id, ok := IdentityFromCtx(ctx)
	if !ok {
		return nil, nil, status.Error(codes.Unauthenticated, "no auth")
	}
	sess, release, err := s.registry.Acquire(ctx, id)
	if err != nil {
		return nil, nil, toStatus("session", err)
	}
	return sess, release, nil
}

// GetDashboard returns the cached profile and recent activity.
func (s *Server) GetDashboard(ctx context.Context, _ *api.GetDashboardRequest) (*api.Dashboard, error) {
	sess, release, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return convert.ToAPIDashboard(sess.Snapshot()), nil
}

// CheckCredits reports whether the cached balance covers cost.
func (s *Server) CheckCredits(ctx context.Context, req *api.CheckCreditsRequest) (*api.CheckCreditsResponse, error) {
	sess, release, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	p := sess.Profile()
	balance := 0
	if p != nil {
		balance = p.CreditsRemaining
	}
	return &api.CheckCreditsResponse{Allowed: account.CheckCredits(p, req.Cost), Balance: balance}, nil
}

// DeductCredits charges a tool use.
func (s *Server) DeductCredits(ctx context.Context, req *api.DeductCreditsRequest) (*api.DeductCreditsResponse, error) {
	d, err := convert.FromAPIDeduction(req)
	if err != nil {
		return nil, toStatus("deduct", err)
	}
	sess, release, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rc, err := s.ledger.Deduct(ctx, sess, d)
	if err != nil {
		return nil, toStatus("deduct", err)
	}
	return &api.DeductCreditsResponse{Receipt: convert.ToAPIReceipt(rc)}, nil
}

// UpdateProfile applies an explicit profile edit.
func (s *Server) UpdateProfile(ctx context.Context, req *api.UpdateProfileRequest) (*api.UpdateProfileResponse, error) {
	id, ok := IdentityFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	edit, err := convert.FromAPIProfileEdit(req)
	if err != nil {
		return nil, toStatus("update profile", err)
	}
	p, err := s.profiles.Edit(ctx, id.ID, edit)
	if err != nil {
		return nil, toStatus("update profile", err)
	}
	return &api.UpdateProfileResponse{Profile: *convert.ToAPIProfile(p)}, nil
}

// ListTools returns the priced tool catalog.
func (s *Server) ListTools(context.Context, *api.ListToolsRequest) (*api.ListToolsResponse, error) {
	return &api.ListToolsResponse{Tools: convert.ToAPITools(catalog.All())}, nil
}

// Watch streams the caller's changes, starting with the current profile.
func (s *Server) Watch(_ *api.WatchRequest, stream api.WatchServer) error {
	ctx := stream.Context()
	sess, release, err := s.session(ctx)
	if err != nil {
		return err
	}
	defer release()

	ch, cancel, err := s.feed.Subscribe(ctx, sess.UserID())
	if err != nil {
		return toStatus("watch", err)
	}
	defer cancel()

	if p := sess.Profile(); p != nil {
		first := model.Change{Kind: model.ChangeProfileUpdated, UserID: p.UserID, At: time.Now().UTC(), Profile: p}
		if err := stream.Send(convert.ToAPIChange(first)); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.Send(convert.ToAPIChange(c)); err != nil {
				s.log.Debug("watch send", zap.String("user_id", sess.UserID().String()), zap.Error(err))
				return err
			}
		}
	}
}

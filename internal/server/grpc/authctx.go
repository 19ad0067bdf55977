package grpcserver

import (
	"context"
	"errors"
	"strings"

	"github.com/and161185/codepilot/internal/api"
	"github.com/and161185/codepilot/internal/errs"
	"github.com/and161185/codepilot/internal/model"
	"github.com/and161185/codepilot/internal/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const identityKey ctxKey = "cp.identity"

// WithIdentity stores the authenticated identity in context.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromCtx fetches the identity from context.
func IdentityFromCtx(ctx context.Context) (model.Identity, bool) {
	v := ctx.Value(identityKey)
	if v == nil {
		return model.Identity{}, false
	}
	id, ok := v.(model.Identity)
	return id, ok
}

// publicMethods are served without a bearer token.
var publicMethods = map[string]bool{
	api.FullMethod("Register"):  true,
	api.FullMethod("Login"):     true,
	api.FullMethod("ListTools"): true,
}

func needsAuth(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, "/"+api.ServiceName+"/") && !publicMethods[fullMethod]
}

// authenticate extracts "authorization: Bearer <JWT>" and resolves it to an identity.
func authenticate(ctx context.Context, auth service.AuthService) (context.Context, error) {
	tok, err := bearerTokenFromMD(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	id, err := auth.Authenticate(ctx, tok)
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return nil, status.Errorf(codes.Internal, "authenticate: %v", err)
	}
	return WithIdentity(ctx, id), nil
}

// AuthUnary authenticates every non-public CodePilot unary call.
func AuthUnary(auth service.AuthService) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !needsAuth(info.FullMethod) {
			return next(ctx, req)
		}
		ctx, err := authenticate(ctx, auth)
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

// AuthStream authenticates every CodePilot stream.
func AuthStream(auth service.AuthService) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		if !needsAuth(info.FullMethod) {
			return next(srv, ss)
		}
		ctx, err := authenticate(ss.Context(), auth)
		if err != nil {
			return err
		}
		return next(srv, &ctxStream{ServerStream: ss, ctx: ctx})
	}
}

type ctxStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *ctxStream) Context() context.Context { return s.ctx }

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}

// Package service contains application services for authentication.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/codepilot/internal/crypto"
	"github.com/and161185/codepilot/internal/errs"
	"github.com/and161185/codepilot/internal/limiter"
	"github.com/and161185/codepilot/internal/model"
	"github.com/and161185/codepilot/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// MinPasswordLen is the shortest accepted password.
const MinPasswordLen = 8

// AuthService defines registration, login and token verification.
type AuthService interface {
	// Register creates a new identity with a hashed password.
	Register(ctx context.Context, email, password string) (userID string, err error)
	// LoginWithIP applies rate-limiting and authenticates the identity.
	LoginWithIP(ctx context.Context, email, password string, ip string) (tokens model.Tokens, identity model.Identity, err error)
	// Authenticate resolves a bearer token to the identity it was issued for.
	Authenticate(ctx context.Context, token string) (model.Identity, error)
}

type AuthServiceImpl struct {
	identities repository.IdentityRepository
	signKey    []byte
	accessTTL  time.Duration
	lim        limiter.Limiter
	params     pkgcrypto.Params
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(identities repository.IdentityRepository, signKey []byte, accessTTL time.Duration, lim limiter.Limiter) *AuthServiceImpl {
	return &AuthServiceImpl{
		identities: identities,
		signKey:    signKey,
		accessTTL:  accessTTL,
		lim:        lim,
		params:     pkgcrypto.DefaultParams,
	}
}

// WithHashParams overrides the password hashing cost.
func (s *AuthServiceImpl) WithHashParams(p pkgcrypto.Params) *AuthServiceImpl {
	s.params = p
	return s
}

func normEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Register validates credentials and stores a new identity.
func (s *AuthServiceImpl) Register(ctx context.Context, email, password string) (string, error) {
	email = normEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return "", fmt.Errorf("bad email: %w", errs.ErrInvalidArgument)
	}
	if len(password) < MinPasswordLen {
		return "", fmt.Errorf("password shorter than %d: %w", MinPasswordLen, errs.ErrInvalidArgument)
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	hash, err := pkgcrypto.HashPassword([]byte(password), s.params)
	if err != nil {
		return "", err
	}
	if err := s.identities.Create(ctx, &model.Identity{ID: uid, Email: email, PwdHash: hash}); err != nil {
		return "", err
	}
	return uid.String(), nil
}

// LoginWithIP authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, email, password, ip string) (model.Tokens, model.Identity, error) {
	email = normEmail(email)
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, model.Identity{}, err
	}
	if !allowed {
		return model.Tokens{}, model.Identity{}, errs.ErrRateLimited
	}

	id, err := s.identities.GetByEmail(ctx, email)
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), id.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.Identity{}, errs.ErrRateLimited
		}
		// missing identity and wrong password look the same
		return model.Tokens{}, model.Identity{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, email, ipHash)

	access, exp, err := s.issueAccessToken(id.ID)
	if err != nil {
		return model.Tokens{}, model.Identity{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, *id, nil
}

// Authenticate verifies an HS256 token and loads the identity named by its subject.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, token string) (model.Identity, error) {
	uid, err := ParseAccessToken(token, s.signKey)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%v: %w", err, errs.ErrUnauthorized)
	}
	id, err := s.identities.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Identity{}, errs.ErrUnauthorized
		}
		return model.Identity{}, err
	}
	return *id, nil
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueAccessToken(userID uuid.UUID) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

// ParseAccessToken verifies an HS256 token and returns its subject as a UUID.
func ParseAccessToken(tok string, key []byte) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	}, jwt.WithLeeway(30*time.Second))
	if err != nil || !parsed.Valid {
		return uuid.Nil, errors.New("invalid token")
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, errors.New("bad subject")
	}
	return id, nil
}

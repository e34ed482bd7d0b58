// Package auth handles account registration, email confirmation and
// token-based sessions. Tokens are HS256 JWTs; sign-out works by
// revoking the token id, so Verify has to consult the session store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"bilancio/internal/core"
	"bilancio/internal/store"
)

const (
	scopeSession = "session"
	scopeConfirm = "confirm"

	confirmTTL = 24 * time.Hour
)

type claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Service issues and verifies tokens against a user and session store.
type Service struct {
	store  store.Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func New(st store.Store, secret []byte, sessionTTL time.Duration) *Service {
	return &Service{
		store:  st,
		secret: secret,
		ttl:    sessionTTL,
		now:    time.Now,
	}
}

// SignUp registers an unconfirmed user and returns a confirmation
// token to be delivered out of band.
func (s *Service) SignUp(ctx context.Context, email, password string) (core.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return core.User{}, "", fmt.Errorf("%w: email", core.ErrValidation)
	}
	if len(password) < 8 {
		return core.User{}, "", fmt.Errorf("%w: password must be at least 8 characters", core.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return core.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	u, err := s.store.CreateUser(ctx, core.User{
		Email:        email,
		PasswordHash: string(hash),
	})
	if err != nil {
		return core.User{}, "", fmt.Errorf("create user: %w", err)
	}

	confirm, err := s.issue(u.ID, scopeConfirm, confirmTTL)
	if err != nil {
		return core.User{}, "", err
	}

	slog.Info("user registered", "component", "auth", "user_id", u.ID)
	return u, confirm, nil
}

// Confirm marks the user behind a confirmation token as confirmed.
func (s *Service) Confirm(ctx context.Context, token string) (string, error) {
	c, err := s.parse(token, scopeConfirm)
	if err != nil {
		return "", err
	}
	if err := s.store.ConfirmUser(ctx, c.Subject); err != nil {
		return "", fmt.Errorf("confirm user: %w", err)
	}
	slog.Info("user confirmed", "component", "auth", "user_id", c.Subject)
	return c.Subject, nil
}

// SignIn checks credentials and returns the user id with a session
// token. Unconfirmed users are rejected.
func (s *Service) SignIn(ctx context.Context, email, password string) (string, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", "", core.ErrBadCredentials
		}
		return "", "", fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", "", core.ErrBadCredentials
	}
	if !u.Confirmed {
		return "", "", core.ErrNotConfirmed
	}

	token, err := s.issue(u.ID, scopeSession, s.ttl)
	if err != nil {
		return "", "", err
	}
	slog.Info("user signed in", "component", "auth", "user_id", u.ID)
	return u.ID, token, nil
}

// SignOut revokes the session token. The revocation entry carries the
// token expiry so stores can prune it later.
func (s *Service) SignOut(ctx context.Context, token string) error {
	c, err := s.parse(token, scopeSession)
	if err != nil {
		return err
	}
	if err := s.store.RevokeToken(ctx, c.ID, c.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	slog.Info("user signed out", "component", "auth", "user_id", c.Subject)
	return nil
}

// Verify resolves a session token to its user id, rejecting expired,
// malformed and revoked tokens.
func (s *Service) Verify(ctx context.Context, token string) (string, error) {
	c, err := s.parse(token, scopeSession)
	if err != nil {
		return "", err
	}
	revoked, err := s.store.IsTokenRevoked(ctx, c.ID)
	if err != nil {
		return "", fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return "", core.ErrInvalidToken
	}
	return c.Subject, nil
}

func (s *Service) issue(userID, scope string, ttl time.Duration) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) parse(token, wantScope string) (*claims, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, core.ErrInvalidToken
	}
	if c.Scope != wantScope || c.Subject == "" || c.ID == "" {
		return nil, core.ErrInvalidToken
	}
	return &c, nil
}

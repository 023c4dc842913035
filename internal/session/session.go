// Package session owns the gateway's application session: created on
// login, refreshed through the marketplace whoami call, and destroyed
// on logout or on any 401 from the marketplace.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carmarket/storefront/internal/model"
	"carmarket/storefront/internal/service/marketplace"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNoSession          = errors.New("no session")
	ErrMissingCredentials = errors.New("email and password are required")
	ErrPasswordMismatch   = errors.New("passwords do not match")
)

type Session struct {
	ID        string     `json:"id"`
	Token     string     `json:"token"`
	User      model.User `json:"user"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Context returns ctx carrying the session's marketplace token.
func (s *Session) Context(ctx context.Context) context.Context {
	return marketplace.WithToken(ctx, s.Token)
}

type Store interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// Authenticator is the part of the marketplace API sessions need.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, email, password string) error
	Me(ctx context.Context) (model.User, error)
}

type Manager struct {
	auth       Authenticator
	store      Store
	defaultTTL time.Duration
	now        func() time.Time
}

func NewManager(auth Authenticator, store Store, defaultTTL time.Duration) *Manager {
	return &Manager{
		auth:       auth,
		store:      store,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	token, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	user, err := m.auth.Me(marketplace.WithToken(ctx, token))
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		Token:     token,
		User:      user,
		CreatedAt: now,
		ExpiresAt: m.expiry(token, now),
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	zap.L().Info("session_created", zap.String("session_id", s.ID), zap.Int64("user_id", user.ID))
	return s, nil
}

// Register creates the marketplace account and logs straight in.
func (m *Manager) Register(ctx context.Context, email, password, confirm string) (*Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	if password != confirm {
		return nil, ErrPasswordMismatch
	}
	if err := m.auth.Register(ctx, strings.TrimSpace(email), password); err != nil {
		return nil, err
	}
	return m.Login(ctx, email, password)
}

func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNoSession
	}
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.ExpiresAt.IsZero() && m.now().After(s.ExpiresAt) {
		_ = m.store.Delete(ctx, id)
		return nil, ErrNoSession
	}
	return s, nil
}

// Restore loads the session and refreshes its user through whoami. A
// 401 destroys the session.
func (m *Manager) Restore(ctx context.Context, id string) (*Session, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	user, err := m.auth.Me(s.Context(ctx))
	if err != nil {
		if errors.Is(err, marketplace.ErrUnauthorized) {
			m.Invalidate(ctx, id)
		}
		return nil, err
	}

	if user != s.User {
		s.User = user
		if err := m.store.Save(ctx, s); err != nil {
			return nil, fmt.Errorf("failed to save session: %w", err)
		}
	}
	return s, nil
}

func (m *Manager) Logout(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return m.store.Delete(ctx, id)
}

// Invalidate drops a session whose token the marketplace rejected.
func (m *Manager) Invalidate(ctx context.Context, id string) {
	if err := m.store.Delete(ctx, id); err != nil {
		zap.L().Warn("session_invalidate_failed", zap.String("session_id", id), zap.Error(err))
		return
	}
	zap.L().Info("session_invalidated", zap.String("session_id", id))
}

// expiry reads the token's exp claim. The marketplace verifies the
// signature, so the gateway only parses.
func (m *Manager) expiry(token string, now time.Time) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return now.Add(m.defaultTTL)
}

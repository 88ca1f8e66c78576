// Package auth manages accounts and opaque session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/RaiderRus/moodTrack/internal/model"
	"github.com/RaiderRus/moodTrack/internal/store"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// Service signs users up and in and resolves session tokens.
type Service struct {
	users    store.Users
	sessions store.Sessions
	ttl      time.Duration
	cost     int
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithBcryptCost sets the password hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option { return func(s *Service) { s.cost = cost } }

func NewService(users store.Users, sessions store.Sessions, ttl time.Duration, opts ...Option) *Service {
	s := &Service{users: users, sessions: sessions, ttl: ttl, cost: bcrypt.DefaultCost, now: store.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp registers an account and opens its first session.
func (s *Service) SignUp(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || len(password) < MinPasswordLength {
		return nil, nil, ErrInvalidSignup
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.users.Create(ctx, &model.User{Email: email, PasswordHash: hash})
	if errors.Is(err, store.ErrConflict) {
		return nil, nil, ErrEmailTaken
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create user: %w", err)
	}
	sess, err := s.open(ctx, u.UserID)
	if err != nil {
		return nil, nil, err
	}
	return u, sess, nil
}

// SignIn checks credentials and opens a new session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	sess, err := s.open(ctx, u.UserID)
	if err != nil {
		return nil, nil, err
	}
	return u, sess, nil
}

func (s *Service) open(ctx context.Context, userID string) (*model.Session, error) {
	now := s.now()
	sess := &model.Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// SignOut drops the session; unknown tokens are ignored.
func (s *Service) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.Delete(ctx, token)
}

// Authenticate resolves a token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	sess, err := s.sessions.Get(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if sess.Expired(s.now()) {
		_ = s.sessions.Delete(ctx, token)
		return nil, ErrSessionExpired
	}
	u, err := s.users.Get(ctx, sess.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}

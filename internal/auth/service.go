// Package auth registers learners and issues bearer tokens.
package auth

import (
	"cmp"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/felixgeelhaar/socratic/internal/domain"
)

// DefaultSessionMaxAge is the token lifetime when none is configured.
const DefaultSessionMaxAge = 7 * 24 * time.Hour

// tokenBytes of entropy per bearer token.
const tokenBytes = 32

// Repository is what the service needs from storage. Both the SQLite and
// the Postgres auth stores satisfy it.
type Repository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)

	CreateSession(ctx context.Context, session *domain.Session) error
	GetSessionByToken(ctx context.Context, token string) (*domain.Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteUserSessions(ctx context.Context, userID int64) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Service owns accounts and their login tokens.
type Service struct {
	repo       Repository
	ttl        time.Duration
	bcryptCost int
	now        func() time.Time
}

func NewService(repo Repository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionMaxAge
	}
	return &Service{repo: repo, ttl: ttl, bcryptCost: bcrypt.DefaultCost, now: time.Now}
}

type RegisterRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token handed to the client.
type LoginResponse struct {
	User      *domain.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func cleanUsername(s string) string { return strings.TrimSpace(s) }

// Register stores a new learner. The display name falls back to the
// username.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	name := cleanUsername(req.Username)
	switch {
	case name == "":
		return nil, domain.ErrInvalidUsername
	case req.Password == "":
		return nil, domain.ErrInvalidPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &domain.User{
		Username:     name,
		DisplayName:  cmp.Or(strings.TrimSpace(req.DisplayName), name),
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks the password and issues a token. Unknown users and wrong
// passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	u, err := s.repo.GetUserByUsername(ctx, cleanUsername(req.Username))
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return s.issue(ctx, u)
}

func (s *Service) issue(ctx context.Context, u *domain.User) (*LoginResponse, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	now := s.now().UTC()
	sess := &domain.Session{
		Token:     base64.RawURLEncoding.EncodeToString(buf),
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return &LoginResponse{User: u, Token: sess.Token, ExpiresAt: sess.ExpiresAt}, nil
}

// session returns the live session for token. An expired one is deleted
// on sight.
func (s *Service) session(ctx context.Context, token string) (*domain.Session, error) {
	sess, err := s.repo.GetSessionByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !s.now().Before(sess.ExpiresAt) {
		_ = s.repo.DeleteSession(ctx, token)
		return nil, domain.ErrAuthSessionExpired
	}
	return sess, nil
}

// ValidateSession resolves a bearer token to its user.
func (s *Service) ValidateSession(ctx context.Context, token string) (*domain.User, error) {
	sess, err := s.session(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.repo.GetUserByID(ctx, sess.UserID)
}

// Logout revokes one token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if _, err := s.repo.GetSessionByToken(ctx, token); err != nil {
		return err
	}
	return s.repo.DeleteSession(ctx, token)
}

// LogoutAll revokes every token of the user owning token.
func (s *Service) LogoutAll(ctx context.Context, token string) error {
	sess, err := s.session(ctx, token)
	if err != nil {
		return err
	}
	return s.repo.DeleteUserSessions(ctx, sess.UserID)
}

func (s *Service) UserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.repo.GetUserByUsername(ctx, cleanUsername(username))
}

// CleanupExpiredSessions deletes every expired token and reports how many.
func (s *Service) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx, s.now())
}

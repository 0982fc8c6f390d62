package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/socratic/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuthStore implements auth.Repository using PostgreSQL
type AuthStore struct {
	pool *pgxpool.Pool
}

// NewAuthStore creates a new PostgreSQL auth store
func NewAuthStore(pool *pgxpool.Pool) *AuthStore {
	return &AuthStore{pool: pool}
}

// CreateUser inserts a new user and its zero skills row
func (r *AuthStore) CreateUser(ctx context.Context, user *domain.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO users (username, password_hash, display_name, created_at)
			VALUES ($1, $2, $3, $4) RETURNING id`,
			user.Username, user.PasswordHash, user.DisplayName, user.CreatedAt,
		).Scan(&user.ID)
		if isUniqueViolation(err) {
			return domain.ErrUsernameTaken
		}
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO user_skills (user_id, updated_at) VALUES ($1, $2)`, user.ID, user.CreatedAt)
		return err
	})
}

// GetUserByUsername retrieves a user by login name
func (r *AuthStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getUser(ctx, `
		SELECT id, username, password_hash, display_name, created_at
		FROM users WHERE username = $1`, username)
}

// GetUserByID retrieves a user by ID
func (r *AuthStore) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getUser(ctx, `
		SELECT id, username, password_hash, display_name, created_at
		FROM users WHERE id = $1`, id)
}

func (r *AuthStore) getUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	user := &domain.User{}
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.DisplayName, &user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateSession inserts a new session
func (r *AuthStore) CreateSession(ctx context.Context, session *domain.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO auth_sessions (token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)`,
		session.Token, session.UserID, session.ExpiresAt, session.CreatedAt,
	)
	return err
}

// GetSessionByToken retrieves a session by token
func (r *AuthStore) GetSessionByToken(ctx context.Context, token string) (*domain.Session, error) {
	session := &domain.Session{}
	err := r.pool.QueryRow(ctx, `
		SELECT token, user_id, expires_at, created_at
		FROM auth_sessions WHERE token = $1`, token,
	).Scan(&session.Token, &session.UserID, &session.ExpiresAt, &session.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAuthSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// DeleteSession removes a session
func (r *AuthStore) DeleteSession(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE token = $1`, token)
	return err
}

// DeleteUserSessions removes all sessions for a user
func (r *AuthStore) DeleteUserSessions(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE user_id = $1`, userID)
	return err
}

// DeleteExpiredSessions removes all sessions expired before now
func (r *AuthStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

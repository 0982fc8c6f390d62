package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/socratic/internal/domain"
)

// skillColumns maps tracked skills to user_skills columns.
var skillColumns = map[domain.Skill]string{
	domain.SkillLoops:          "loops",
	domain.SkillRecursion:      "recursion",
	domain.SkillSyntax:         "syntax",
	domain.SkillLogic:          "logic",
	domain.SkillDataStructures: "data_structures",
}

// ProgressStore persists skill vectors and attempts.
type ProgressStore struct {
	db *DB
}

// NewProgressStore creates a new SQLite-backed progress store.
func NewProgressStore(db *DB) *ProgressStore {
	return &ProgressStore{db: db}
}

// GetSkills returns the learner's skill vector.
func (s *ProgressStore) GetSkills(ctx context.Context, userID int64) (domain.SkillVector, error) {
	var loops, recursion, syntax, logic, ds float64
	err := s.db.QueryRowContext(ctx, `
		SELECT loops, recursion, syntax, logic, data_structures
		FROM user_skills WHERE user_id = ?`, userID).
		Scan(&loops, &recursion, &syntax, &logic, &ds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSkillsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get skills: %w", err)
	}
	return domain.SkillVector{
		domain.SkillLoops:          loops,
		domain.SkillRecursion:      recursion,
		domain.SkillSyntax:         syntax,
		domain.SkillLogic:          logic,
		domain.SkillDataStructures: ds,
	}, nil
}

// UpdateSkills writes the tracked skills present in skills, leaving the
// others untouched. The row is created when missing.
func (s *ProgressStore) UpdateSkills(ctx context.Context, userID int64, skills domain.SkillVector) error {
	known := skills.Known()
	if len(known) == 0 {
		return nil
	}

	cols := []string{"user_id", "updated_at"}
	args := []any{userID, time.Now().UTC()}
	var sets []string
	for _, sk := range domain.AllSkills {
		val, ok := known[sk]
		if !ok {
			continue
		}
		col := skillColumns[sk]
		cols = append(cols, col)
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s=excluded.%s", col, col))
	}
	sets = append(sets, "updated_at=excluded.updated_at")

	query := fmt.Sprintf(`INSERT INTO user_skills (%s) VALUES (%s)
		ON CONFLICT(user_id) DO UPDATE SET %s`,
		strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
		strings.Join(sets, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update skills: %w", err)
	}
	return nil
}

// LogAttempt appends an attempt and sets its ID.
func (s *ProgressStore) LogAttempt(ctx context.Context, a *domain.Attempt) error {
	if a.SessionID == "" {
		a.SessionID = domain.UnknownSessionID
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	rewards, err := encodeRewards(a.Rewards)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (user_id, session_id, snippet_id, user_code, is_success, rewards_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.SessionID, a.SnippetID, a.Code, a.Success, rewards, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

// Stats counts all and successful attempts.
func (s *ProgressStore) Stats(ctx context.Context, userID int64) (domain.AttemptStats, error) {
	var st domain.AttemptStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(is_success), 0)
		FROM attempts WHERE user_id = ?`, userID).Scan(&st.Total, &st.Success)
	if err != nil {
		return st, fmt.Errorf("attempt stats: %w", err)
	}
	return st, nil
}

// History returns up to limit attempts, newest first.
func (s *ProgressStore) History(ctx context.Context, userID int64, limit int) ([]domain.Attempt, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryAttempts(ctx, `
		SELECT id, user_id, session_id, snippet_id, user_code, is_success, rewards_json, created_at
		FROM attempts WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
}

// LastUnfinished returns the newest attempt if it failed, nil otherwise.
func (s *ProgressStore) LastUnfinished(ctx context.Context, userID int64) (*domain.Attempt, error) {
	latest, err := s.History(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(latest) == 0 || latest[0].Success {
		return nil, nil
	}
	return &latest[0], nil
}

// Sessions summarizes the learner's tutoring sessions, newest first.
func (s *ProgressStore) Sessions(ctx context.Context, userID int64) ([]domain.SessionSummary, error) {
	attempts, err := s.queryAttempts(ctx, `
		SELECT id, user_id, session_id, snippet_id, user_code, is_success, rewards_json, created_at
		FROM attempts WHERE user_id = ? AND session_id != ?
		ORDER BY created_at ASC, id ASC`, userID, domain.UnknownSessionID)
	if err != nil {
		return nil, err
	}
	return domain.SummarizeSessions(attempts), nil
}

// SessionHistory returns one session's attempts, oldest first.
func (s *ProgressStore) SessionHistory(ctx context.Context, userID int64, sessionID string) ([]domain.Attempt, error) {
	return s.queryAttempts(ctx, `
		SELECT id, user_id, session_id, snippet_id, user_code, is_success, rewards_json, created_at
		FROM attempts WHERE user_id = ? AND session_id = ?
		ORDER BY created_at ASC, id ASC`, userID, sessionID)
}

// ProgressData returns the successful attempts, oldest first.
func (s *ProgressStore) ProgressData(ctx context.Context, userID int64) ([]domain.Attempt, error) {
	return s.queryAttempts(ctx, `
		SELECT id, user_id, session_id, snippet_id, user_code, is_success, rewards_json, created_at
		FROM attempts WHERE user_id = ? AND is_success = 1
		ORDER BY created_at ASC, id ASC`, userID)
}

func (s *ProgressStore) queryAttempts(ctx context.Context, query string, args ...any) ([]domain.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.Attempt
	for rows.Next() {
		var a domain.Attempt
		var rewards string
		if err := rows.Scan(&a.ID, &a.UserID, &a.SessionID, &a.SnippetID,
			&a.Code, &a.Success, &rewards, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if a.Rewards, err = decodeRewards(rewards); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func encodeRewards(v domain.SkillVector) (string, error) {
	if len(v) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal rewards: %w", err)
	}
	return string(data), nil
}

func decodeRewards(s string) (domain.SkillVector, error) {
	v := domain.SkillVector{}
	if s == "" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("unmarshal rewards: %w", err)
	}
	return v, nil
}

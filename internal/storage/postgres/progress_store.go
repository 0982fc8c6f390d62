package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/socratic/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var skillColumns = map[domain.Skill]string{
	domain.SkillLoops:          "loops",
	domain.SkillRecursion:      "recursion",
	domain.SkillSyntax:         "syntax",
	domain.SkillLogic:          "logic",
	domain.SkillDataStructures: "data_structures",
}

const attemptColumns = `id, user_id, session_id, snippet_id, user_code, is_success, rewards_json, created_at`

// ProgressStore implements tutor.ProgressStore using PostgreSQL
type ProgressStore struct {
	pool *pgxpool.Pool
}

// NewProgressStore creates a new PostgreSQL progress store
func NewProgressStore(pool *pgxpool.Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

// GetSkills retrieves the learner's skill vector
func (r *ProgressStore) GetSkills(ctx context.Context, userID int64) (domain.SkillVector, error) {
	var loops, recursion, syntax, logic, ds float64
	err := r.pool.QueryRow(ctx, `
		SELECT loops, recursion, syntax, logic, data_structures
		FROM user_skills WHERE user_id = $1`, userID,
	).Scan(&loops, &recursion, &syntax, &logic, &ds)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSkillsNotFound
	}
	if err != nil {
		return nil, err
	}
	return domain.SkillVector{
		domain.SkillLoops:          loops,
		domain.SkillRecursion:      recursion,
		domain.SkillSyntax:         syntax,
		domain.SkillLogic:          logic,
		domain.SkillDataStructures: ds,
	}, nil
}

// UpdateSkills upserts only the tracked skills present in skills
func (r *ProgressStore) UpdateSkills(ctx context.Context, userID int64, skills domain.SkillVector) error {
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
		sets = append(sets, col+" = EXCLUDED."+col)
	}
	sets = append(sets, "updated_at = EXCLUDED.updated_at")

	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`INSERT INTO user_skills (%s) VALUES (%s)
		ON CONFLICT (user_id) DO UPDATE SET %s`,
		strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(sets, ", "))
	_, err := r.pool.Exec(ctx, query, args...)
	return err
}

// LogAttempt inserts an attempt and sets its ID
func (r *ProgressStore) LogAttempt(ctx context.Context, a *domain.Attempt) error {
	if a.SessionID == "" {
		a.SessionID = domain.UnknownSessionID
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	rewards := []byte("{}")
	if len(a.Rewards) > 0 {
		var err error
		if rewards, err = json.Marshal(a.Rewards); err != nil {
			return fmt.Errorf("marshal rewards: %w", err)
		}
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO attempts (user_id, session_id, snippet_id, user_code, is_success, rewards_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		a.UserID, a.SessionID, a.SnippetID, a.Code, a.Success, string(rewards), a.CreatedAt,
	).Scan(&a.ID)
}

// Stats counts all and successful attempts
func (r *ProgressStore) Stats(ctx context.Context, userID int64) (domain.AttemptStats, error) {
	var st domain.AttemptStats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_success)
		FROM attempts WHERE user_id = $1`, userID,
	).Scan(&st.Total, &st.Success)
	return st, err
}

// History returns up to limit attempts, newest first
func (r *ProgressStore) History(ctx context.Context, userID int64, limit int) ([]domain.Attempt, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.query(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE user_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
}

// LastUnfinished returns the newest attempt if it failed
func (r *ProgressStore) LastUnfinished(ctx context.Context, userID int64) (*domain.Attempt, error) {
	latest, err := r.History(ctx, userID, 1)
	if err != nil || len(latest) == 0 || latest[0].Success {
		return nil, err
	}
	return &latest[0], nil
}

// Sessions summarizes tutoring sessions, newest first
func (r *ProgressStore) Sessions(ctx context.Context, userID int64) ([]domain.SessionSummary, error) {
	attempts, err := r.query(ctx, `SELECT `+attemptColumns+` FROM attempts
		WHERE user_id = $1 AND session_id <> $2
		ORDER BY created_at ASC, id ASC`, userID, domain.UnknownSessionID)
	if err != nil {
		return nil, err
	}
	return domain.SummarizeSessions(attempts), nil
}

// SessionHistory returns one session's attempts, oldest first
func (r *ProgressStore) SessionHistory(ctx context.Context, userID int64, sessionID string) ([]domain.Attempt, error) {
	return r.query(ctx, `SELECT `+attemptColumns+` FROM attempts
		WHERE user_id = $1 AND session_id = $2
		ORDER BY created_at ASC, id ASC`, userID, sessionID)
}

// ProgressData returns successful attempts, oldest first
func (r *ProgressStore) ProgressData(ctx context.Context, userID int64) ([]domain.Attempt, error) {
	return r.query(ctx, `SELECT `+attemptColumns+` FROM attempts
		WHERE user_id = $1 AND is_success
		ORDER BY created_at ASC, id ASC`, userID)
}

func (r *ProgressStore) query(ctx context.Context, sql string, args ...any) ([]domain.Attempt, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Attempt
	for rows.Next() {
		var a domain.Attempt
		var rewards []byte
		if err := rows.Scan(&a.ID, &a.UserID, &a.SessionID, &a.SnippetID,
			&a.Code, &a.Success, &rewards, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Rewards = domain.SkillVector{}
		if len(rewards) > 0 {
			if err := json.Unmarshal(rewards, &a.Rewards); err != nil {
				return nil, fmt.Errorf("unmarshal rewards: %w", err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/socratic/internal/domain"
	"github.com/felixgeelhaar/socratic/internal/tutor"
)

// Store is the slice of the progress store the dashboard reads.
type Store interface {
	GetSkills(ctx context.Context, userID int64) (domain.SkillVector, error)
	Stats(ctx context.Context, userID int64) (domain.AttemptStats, error)
	Sessions(ctx context.Context, userID int64) ([]domain.SessionSummary, error)
	SessionHistory(ctx context.Context, userID int64, sessionID string) ([]domain.Attempt, error)
	ProgressData(ctx context.Context, userID int64) ([]domain.Attempt, error)
}

// SessionView is one row of the sessions list.
type SessionView struct {
	domain.SessionSummary
	Status  string             `json:"status"`
	Gains   domain.SkillVector `json:"gains,omitempty"`
	History []domain.Attempt   `json:"history"`
}

// Dashboard is everything the learner home page shows.
type Dashboard struct {
	Profile      tutor.PlayerProfile `json:"profile"`
	Experience   string              `json:"experience"`
	Stats        domain.AttemptStats `json:"stats"`
	SuccessRate  int                 `json:"success_rate"`
	WeakestTopic string              `json:"weakest_topic,omitempty"`
	Skills       domain.SkillVector  `json:"skills"`
	RankTip      *tutor.RankTip      `json:"rank_tip,omitempty"`
	Progress     []ProgressPoint     `json:"progress"`
	Sessions     []SessionView       `json:"sessions"`
}

// Service assembles dashboards.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates an analytics service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Dashboard builds a learner's dashboard.
func (s *Service) Dashboard(ctx context.Context, userID int64) (*Dashboard, error) {
	skills, err := s.store.GetSkills(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrSkillsNotFound) {
		return nil, fmt.Errorf("get skills: %w", err)
	}

	stats, err := s.store.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}

	profile := tutor.Profile(skills)
	d := &Dashboard{
		Profile:     profile,
		Experience:  profile.Experience(),
		Stats:       stats,
		SuccessRate: stats.SuccessRate(),
		Skills:      skills,
		RankTip:     tutor.NextRankTip(skills),
	}
	if topic, ok := RecommendTopic(skills); ok {
		d.WeakestTopic = string(topic)
	}

	successes, err := s.store.ProgressData(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	d.Progress = Progress(successes)

	d.Sessions, err = s.Sessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Sessions lists a learner's tutoring sessions, newest first, with their
// attempts and gains.
func (s *Service) Sessions(ctx context.Context, userID int64) ([]SessionView, error) {
	summaries, err := s.store.Sessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	views := make([]SessionView, 0, len(summaries))
	for _, sum := range summaries {
		hist, err := s.store.SessionHistory(ctx, userID, sum.SessionID)
		if err != nil {
			return nil, fmt.Errorf("session history %s: %w", sum.SessionID, err)
		}
		v := SessionView{SessionSummary: sum, Status: sum.Status(), History: hist}
		if gains := SessionGains(hist); len(gains) > 0 {
			v.Gains = gains
		}
		views = append(views, v)
	}
	return views, nil
}

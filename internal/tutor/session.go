package tutor

import (
	"time"

	"github.com/felixgeelhaar/socratic/internal/domain"
	"github.com/felixgeelhaar/socratic/internal/retriever"
)

// Phase is the step of the tutoring flow a session is on.
type Phase string

const (
	PhaseAnalyze Phase = "analyze"
	PhaseWarmup  Phase = "warmup"
	PhaseFix     Phase = "fix"
)

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session is one debugging problem worked through by a learner.
type Session struct {
	ID             string            `json:"id"`
	UserID         int64             `json:"user_id"`
	Phase          Phase             `json:"phase"`
	Code           string            `json:"code"`
	LastSubmission string            `json:"last_submission,omitempty"`
	Analysis       *retriever.Result `json:"analysis"`
	MatchIndex     int               `json:"match_index"`
	Chat           []ChatMessage     `json:"chat"`
	Training       bool              `json:"training"`
	Solved         bool              `json:"solved"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// TopMatch returns the matched snippet, nil when there is none.
func (s *Session) TopMatch() *domain.Snippet {
	if s.Analysis == nil {
		return nil
	}
	return s.Analysis.TopMatch
}

// Concept returns the detected concept, empty without an analysis.
func (s *Session) Concept() string {
	if s.Analysis == nil {
		return ""
	}
	return s.Analysis.DetectedConcept
}

// PredictedError is the error type the fix is judged against.
func (s *Session) PredictedError() string {
	if top := s.TopMatch(); top != nil {
		return top.ErrorKind()
	}
	return domain.UnknownErrorType
}

func (s *Session) appendChat(role, content string) {
	s.Chat = append(s.Chat, ChatMessage{Role: role, Content: content})
}

// Warmup is the similar example shown before the learner fixes their code.
type Warmup struct {
	Example    *domain.Snippet `json:"example"`
	Concept    string          `json:"concept"`
	Index      int             `json:"index"`
	Candidates int             `json:"candidates"`
}

// FixResult is the outcome of a fix submission.
type FixResult struct {
	Verdict Verdict            `json:"verdict"`
	Rewards domain.SkillVector `json:"rewards,omitempty"`
	Skills  domain.SkillVector `json:"skills,omitempty"`
	Session *Session           `json:"session"`
}

// TrainingProblem is one practice snippet offered for a topic.
type TrainingProblem struct {
	Snippet *domain.Snippet `json:"snippet"`
	Locked  bool            `json:"locked"`
}

// TrainingSet is the practice offer for a topic.
type TrainingSet struct {
	Topic    string            `json:"topic"`
	Problems []TrainingProblem `json:"problems"`
	Fallback bool              `json:"fallback"`
}

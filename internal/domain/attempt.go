package domain

import "time"

const (
	// InputSnippetID marks attempts that record the learner's own code
	// rather than a corpus snippet.
	InputSnippetID = "USER_INPUT"

	// UnknownSessionID is stored when an attempt has no tutoring session.
	UnknownSessionID = "unknown"
)

// Attempt is one submission of code by a learner.
type Attempt struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"user_id"`
	SessionID string      `json:"session_id"`
	SnippetID string      `json:"snippet_id"`
	Code      string      `json:"code"`
	Success   bool        `json:"success"`
	Rewards   SkillVector `json:"rewards"`
	CreatedAt time.Time   `json:"created_at"`
}

// AttemptStats counts a learner's attempts.
type AttemptStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
}

// SuccessRate returns the whole-number success percentage.
func (s AttemptStats) SuccessRate() int {
	total := s.Total
	if total == 0 {
		total = 1
	}
	return int(float64(s.Success) / float64(total) * 100)
}

// SessionSummary describes one tutoring session from its attempts.
type SessionSummary struct {
	SessionID   string    `json:"session_id"`
	StartedAt   time.Time `json:"started_at"`
	InitialCode string    `json:"initial_code"`
	Solved      bool      `json:"solved"`
	Attempts    int       `json:"attempts_count"`
}

// Status renders the summary state.
func (s SessionSummary) Status() string {
	if s.Solved {
		return "Solved"
	}
	return "Unsolved"
}

// SummarizeSessions folds attempts, ordered oldest first, into per-session
// summaries, newest session first. Attempts without a session are skipped.
func SummarizeSessions(attempts []Attempt) []SessionSummary {
	index := make(map[string]int)
	var out []SessionSummary
	for _, a := range attempts {
		if a.SessionID == "" || a.SessionID == UnknownSessionID {
			continue
		}
		i, ok := index[a.SessionID]
		if !ok {
			i = len(out)
			index[a.SessionID] = i
			out = append(out, SessionSummary{
				SessionID:   a.SessionID,
				StartedAt:   a.CreatedAt,
				InitialCode: a.Code,
			})
		}
		out[i].Attempts++
		if a.Success {
			out[i].Solved = true
		}
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

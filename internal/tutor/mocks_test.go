package tutor

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/felixgeelhaar/socratic/internal/analyzer"
	"github.com/felixgeelhaar/socratic/internal/corpus"
	"github.com/felixgeelhaar/socratic/internal/domain"
	"github.com/felixgeelhaar/socratic/internal/llm"
	"github.com/felixgeelhaar/socratic/internal/retriever"
)

type mockProvider struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, req.Messages[0].Content)
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Response{Content: m.reply}, nil
}

func (m *mockProvider) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

// mockChecker reports a syntax error for code containing "def f(".
type mockChecker struct{}

func (mockChecker) CheckSyntax(_ context.Context, code string) (*analyzer.SyntaxError, error) {
	if strings.Contains(code, "def f(") && !strings.Contains(code, "):") {
		return &analyzer.SyntaxError{Msg: "expected ':'", Line: 1}, nil
	}
	return nil, nil
}

type mockRetriever struct {
	corpus  *corpus.Corpus
	result  *retriever.Result
	queries []string
}

func (m *mockRetriever) FindSimilar(_ context.Context, code string) (*retriever.Result, error) {
	m.queries = append(m.queries, code)
	cp := *m.result
	cp.WarmupCandidates = append([]*domain.Snippet(nil), m.result.WarmupCandidates...)
	return &cp, nil
}

func (m *mockRetriever) Corpus() *corpus.Corpus { return m.corpus }

type memProgress struct {
	mu       sync.Mutex
	skills   map[int64]domain.SkillVector
	attempts []domain.Attempt
}

func newMemProgress() *memProgress {
	return &memProgress{skills: make(map[int64]domain.SkillVector)}
}

func (m *memProgress) GetSkills(_ context.Context, userID int64) (domain.SkillVector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.skills[userID]
	if !ok {
		return nil, domain.ErrSkillsNotFound
	}
	return s.Clone(), nil
}

func (m *memProgress) UpdateSkills(_ context.Context, userID int64, skills domain.SkillVector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.skills[userID]
	if !ok {
		cur = domain.NewSkillVector()
	}
	for k, v := range skills.Known() {
		cur[k] = v
	}
	m.skills[userID] = cur
	return nil
}

func (m *memProgress) LogAttempt(_ context.Context, a *domain.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = int64(len(m.attempts) + 1)
	m.attempts = append(m.attempts, *a)
	return nil
}

func (m *memProgress) userAttempts(userID int64) []domain.Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Attempt
	for _, a := range m.attempts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out
}

func (m *memProgress) Stats(_ context.Context, userID int64) (domain.AttemptStats, error) {
	var st domain.AttemptStats
	for _, a := range m.userAttempts(userID) {
		st.Total++
		if a.Success {
			st.Success++
		}
	}
	return st, nil
}

func (m *memProgress) History(_ context.Context, userID int64, limit int) ([]domain.Attempt, error) {
	all := m.userAttempts(userID)
	sort.SliceStable(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memProgress) LastUnfinished(ctx context.Context, userID int64) (*domain.Attempt, error) {
	h, _ := m.History(ctx, userID, 1)
	if len(h) == 0 || h[0].Success {
		return nil, nil
	}
	return &h[0], nil
}

func (m *memProgress) Sessions(_ context.Context, userID int64) ([]domain.SessionSummary, error) {
	return domain.SummarizeSessions(m.userAttempts(userID)), nil
}

func (m *memProgress) SessionHistory(_ context.Context, userID int64, sessionID string) ([]domain.Attempt, error) {
	var out []domain.Attempt
	for _, a := range m.userAttempts(userID) {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memProgress) ProgressData(_ context.Context, userID int64) ([]domain.Attempt, error) {
	var out []domain.Attempt
	for _, a := range m.userAttempts(userID) {
		if a.Success {
			out = append(out, a)
		}
	}
	return out, nil
}

var _ ProgressStore = (*memProgress)(nil)

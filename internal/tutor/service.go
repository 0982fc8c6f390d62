package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/socratic/internal/analyzer"
	"github.com/felixgeelhaar/socratic/internal/corpus"
	"github.com/felixgeelhaar/socratic/internal/domain"
	"github.com/felixgeelhaar/socratic/internal/retriever"
)

var (
	ErrSessionNotFound     = errors.New("tutoring session not found")
	ErrSessionSolved       = errors.New("tutoring session already solved")
	ErrEmptyCode           = errors.New("code is required")
	ErrCalibrationNotFound = errors.New("calibration not found")
	ErrCalibrationComplete = errors.New("calibration already complete")
)

const (
	// ConceptSyntax replaces the detected concept for code that does not parse.
	ConceptSyntax = "Syntax"
	// ConceptGeneralLogic is shown for low-confidence analyses.
	ConceptGeneralLogic = "General Logic"

	trainingSampleSize   = 3
	trainingFallbackSize = 5
	warmupFallbackSize   = 3
)

// Placeholder is the warm-up example shown when nothing similar was found.
var Placeholder = domain.Snippet{
	ID:        "placeholder",
	Code:      "# No similar example found.\n# Try checking for Typos or Indentation.",
	Hint:      "Check syntax.",
	ErrorType: domain.UnknownErrorType,
}

// ProgressStore persists skills and attempts.
type ProgressStore interface {
	GetSkills(ctx context.Context, userID int64) (domain.SkillVector, error)
	UpdateSkills(ctx context.Context, userID int64, skills domain.SkillVector) error
	LogAttempt(ctx context.Context, a *domain.Attempt) error
	Stats(ctx context.Context, userID int64) (domain.AttemptStats, error)
	History(ctx context.Context, userID int64, limit int) ([]domain.Attempt, error)
	LastUnfinished(ctx context.Context, userID int64) (*domain.Attempt, error)
	Sessions(ctx context.Context, userID int64) ([]domain.SessionSummary, error)
	SessionHistory(ctx context.Context, userID int64, sessionID string) ([]domain.Attempt, error)
	ProgressData(ctx context.Context, userID int64) ([]domain.Attempt, error)
}

// Retriever finds known bugs similar to learner code.
type Retriever interface {
	FindSimilar(ctx context.Context, code string) (*retriever.Result, error)
	Corpus() *corpus.Corpus
}

// Service drives tutoring sessions and the calibration quiz for learners.
type Service struct {
	retriever Retriever
	progress  ProgressStore
	states    StateStore
	tutor     *Tutor
	checker   analyzer.SyntaxChecker
	logger    *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
	now   func() time.Time
}

// NewService creates a tutoring service.
func NewService(r Retriever, progress ProgressStore, states StateStore, t *Tutor, checker analyzer.SyntaxChecker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if states == nil {
		states = NewMemoryStateStore()
	}
	return &Service{
		retriever: r,
		progress:  progress,
		states:    states,
		tutor:     t,
		checker:   checker,
		logger:    logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
}

// SetRand replaces the random source used for example and problem picks.
func (s *Service) SetRand(r *rand.Rand) {
	s.rngMu.Lock()
	s.rng = r
	s.rngMu.Unlock()
}

// Tutor returns the underlying tutor.
func (s *Service) Tutor() *Tutor {
	return s.tutor
}

func (s *Service) intn(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Intn(n)
}

// Skills returns the learner's skill vector; a missing row is all zeros.
func (s *Service) Skills(ctx context.Context, userID int64) (domain.SkillVector, error) {
	skills, err := s.progress.GetSkills(ctx, userID)
	if errors.Is(err, domain.ErrSkillsNotFound) {
		return domain.NewSkillVector(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get skills: %w", err)
	}
	return skills, nil
}

// Session returns a learner's tutoring session.
func (s *Service) Session(ctx context.Context, userID int64, id string) (*Session, error) {
	sess, err := s.states.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = s.now()
	return s.states.SaveSession(ctx, sess)
}

// Analyze searches the corpus for the learner's bug and opens (or reuses)
// a tutoring session at the warm-up step.
func (s *Service) Analyze(ctx context.Context, user *domain.User, sessionID, code string) (*Session, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrEmptyCode
	}
	var sess *Session
	if sessionID == "" {
		sessionID = uuid.New().String()
	} else if prev, err := s.states.GetSession(ctx, sessionID); err == nil {
		if prev.UserID != user.ID {
			return nil, ErrSessionNotFound
		}
		sess = prev
	}

	if err := s.progress.LogAttempt(ctx, &domain.Attempt{
		UserID:    user.ID,
		SessionID: sessionID,
		SnippetID: domain.InputSnippetID,
		Code:      code,
	}); err != nil {
		return nil, fmt.Errorf("log attempt: %w", err)
	}

	query := code
	var syntaxErr *analyzer.SyntaxError
	if s.checker != nil {
		serr, err := s.checker.CheckSyntax(ctx, code)
		if err != nil {
			s.logger.Warn("syntax check failed", "error", err)
		}
		if serr != nil {
			syntaxErr = serr
			query = serr.Msg + " syntax error python"
		}
	}

	res, err := s.retriever.FindSimilar(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("find similar: %w", err)
	}

	if syntaxErr != nil {
		top := &domain.Snippet{ID: domain.InputSnippetID, Code: code, Topic: ConceptSyntax}
		if res.TopMatch != nil {
			cp := *res.TopMatch
			top = &cp
		}
		top.ErrorType = "Syntax Error: " + syntaxErr.Msg
		res.TopMatch = top
		res.DetectedConcept = ConceptSyntax
	}

	skills, err := s.Skills(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	res.WarmupCandidates = s.unlockedWarmups(res.WarmupCandidates, skills)

	if sess == nil {
		sess = &Session{ID: sessionID, UserID: user.ID, CreatedAt: s.now()}
	}
	sess.Phase = PhaseWarmup
	sess.Code = code
	sess.Analysis = res
	sess.Chat = nil
	sess.Training = false
	sess.MatchIndex = 0
	if n := len(res.WarmupCandidates); n > 0 {
		sess.MatchIndex = s.intn(n)
	}

	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info("code analyzed",
		"session", sess.ID, "status", res.Status, "concept", res.DetectedConcept, "confidence", res.Confidence)
	return sess, nil
}

// unlockedWarmups drops candidates the learner has not unlocked. When all
// are locked, up to three Novice snippets of the first candidate's topic
// are offered instead.
func (s *Service) unlockedWarmups(raw []*domain.Snippet, skills domain.SkillVector) []*domain.Snippet {
	valid := make([]*domain.Snippet, 0, len(raw))
	for _, sn := range raw {
		if !IsLocked(sn, skills) {
			valid = append(valid, sn)
		}
	}
	if len(valid) > 0 || len(raw) == 0 {
		return valid
	}

	return s.retriever.Corpus().NoviceByTopic(raw[0].Topic, warmupFallbackSize)
}

// Warmup returns the current practice example for a session.
func (s *Service) Warmup(ctx context.Context, userID int64, sessionID string) (*Warmup, error) {
	sess, err := s.Session(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return warmupFor(sess), nil
}

// NextExample cycles to the next warm-up candidate.
func (s *Service) NextExample(ctx context.Context, userID int64, sessionID string) (*Warmup, error) {
	sess, err := s.Session(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	sess.MatchIndex++
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return warmupFor(sess), nil
}

func warmupFor(sess *Session) *Warmup {
	var candidates []*domain.Snippet
	concept := ConceptGeneralLogic
	if a := sess.Analysis; a != nil && a.Status != retriever.StatusLowConfidence {
		candidates = a.WarmupCandidates
		concept = strings.ReplaceAll(a.DetectedConcept, "Root", "Logic")
	}

	w := &Warmup{Concept: concept, Candidates: len(candidates)}
	if len(candidates) == 0 {
		example := Placeholder
		w.Example = &example
		return w
	}
	w.Index = sess.MatchIndex % len(candidates)
	w.Example = candidates[w.Index]
	return w
}

// BeginFix moves a session from warm-up to the fix step with a fresh chat.
func (s *Service) BeginFix(ctx context.Context, userID int64, sessionID string) (*Session, error) {
	sess, err := s.Session(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	sess.Phase = PhaseFix
	sess.Chat = nil
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Chat sends a learner message to the tutor. During warm-up the tutor sees
// the practice example; during the fix step it sees code, or the latest
// submission when code is empty.
func (s *Service) Chat(ctx context.Context, user *domain.User, sessionID, message, code string) (*Session, string, error) {
	sess, err := s.Session(ctx, user.ID, sessionID)
	if err != nil {
		return nil, "", err
	}
	if strings.TrimSpace(message) == "" {
		return nil, "", domain.ErrInvalidInput
	}

	req := ChatRequest{UserName: user.Name()}
	switch sess.Phase {
	case PhaseWarmup:
		req.Phase = "Warmup"
		req.Code = warmupFor(sess).Example.Code
	default:
		req.Phase = "Fixing"
		req.Code = firstNonEmpty(code, sess.LastSubmission, sess.Code)
	}

	sess.appendChat(RoleUser, message)
	req.History = sess.Chat
	reply := s.tutor.Chat(ctx, req)
	sess.appendChat(RoleAssistant, reply)

	if err := s.save(ctx, sess); err != nil {
		return nil, "", err
	}
	return sess, reply, nil
}

// Fix judges a fix against the session's original code. A pass adds the
// problem's rewards to the learner's skills; a failure posts the judge's
// reason to the chat.
func (s *Service) Fix(ctx context.Context, user *domain.User, sessionID, code string) (*FixResult, error) {
	sess, err := s.Session(ctx, user.ID, sessionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrEmptyCode
	}

	verdict := s.tutor.Judge(ctx, JudgeRequest{
		Original:       sess.Code,
		Fix:            code,
		PredictedError: sess.PredictedError(),
		UserName:       user.Name(),
	})

	var rewards domain.SkillVector
	if verdict.Passed {
		concept := "Logic"
		if sess.Analysis != nil {
			concept = sess.Concept()
		}
		rewards = Rewards(sess.TopMatch(), concept)
	}

	if err := s.progress.LogAttempt(ctx, &domain.Attempt{
		UserID:    user.ID,
		SessionID: sess.ID,
		SnippetID: domain.InputSnippetID,
		Code:      code,
		Success:   verdict.Passed,
		Rewards:   rewards,
	}); err != nil {
		return nil, fmt.Errorf("log attempt: %w", err)
	}

	result := &FixResult{Verdict: verdict, Session: sess}
	sess.Phase = PhaseFix
	sess.LastSubmission = code

	if verdict.Passed {
		curr, err := s.Skills(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		next := curr.Plus(rewards)
		if err := s.progress.UpdateSkills(ctx, user.ID, next); err != nil {
			return nil, fmt.Errorf("update skills: %w", err)
		}
		sess.Solved = true
		result.Rewards = rewards
		result.Skills = next
		s.logger.Info("fix accepted", "session", sess.ID, "user", user.ID)
	} else {
		sess.appendChat(RoleAssistant, verdict.Reason)
	}

	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return result, nil
}

// Resume reopens an unsolved session at the fix step, seeded with the
// learner's last submission.
func (s *Service) Resume(ctx context.Context, userID int64, sessionID string) (*Session, error) {
	history, err := s.progress.SessionHistory(ctx, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session history: %w", err)
	}
	if len(history) == 0 {
		return nil, ErrSessionNotFound
	}
	for _, a := range history {
		if a.Success {
			return nil, ErrSessionSolved
		}
	}

	sess, err := s.states.GetSession(ctx, sessionID)
	switch {
	case err != nil:
		sess = &Session{ID: sessionID, UserID: userID, CreatedAt: history[0].CreatedAt}
	case sess.UserID != userID:
		return nil, ErrSessionNotFound
	}
	sess.Code = history[len(history)-1].Code
	sess.LastSubmission = ""
	sess.Phase = PhaseFix
	sess.Chat = nil
	sess.Solved = false

	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// StartTraining offers up to three practice problems for a topic. Locked
// problems are flagged but still offered.
func (s *Service) StartTraining(ctx context.Context, userID int64, topic string) (*TrainingSet, error) {
	skills, err := s.Skills(ctx, userID)
	if err != nil {
		return nil, err
	}

	c := s.retriever.Corpus()
	set := &TrainingSet{Topic: topic}
	candidates := c.Related(topic)
	if len(candidates) == 0 {
		set.Fallback = true
		candidates = c.Novice(trainingFallbackSize)
	}

	for _, sn := range s.sample(candidates, trainingSampleSize) {
		set.Problems = append(set.Problems, TrainingProblem{Snippet: sn, Locked: IsLocked(sn, skills)})
	}
	return set, nil
}

// sample picks up to n distinct snippets in random order.
func (s *Service) sample(src []*domain.Snippet, n int) []*domain.Snippet {
	pool := append([]*domain.Snippet(nil), src...)
	s.rngMu.Lock()
	s.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	s.rngMu.Unlock()
	if len(pool) > n {
		pool = pool[:n]
	}
	return pool
}

// StartTrainingSession opens a session that goes straight to the fix step
// on a corpus snippet.
func (s *Service) StartTrainingSession(ctx context.Context, userID int64, snippetID, topic string) (*Session, error) {
	snippet, ok := s.retriever.Corpus().ByID(snippetID)
	if !ok {
		return nil, domain.ErrSnippetNotFound
	}
	if topic == "" {
		topic = snippet.Topic
	}

	now := s.now()
	sess := &Session{
		ID:     uuid.New().String(),
		UserID: userID,
		Phase:  PhaseFix,
		Code:   snippet.Code,
		Analysis: &retriever.Result{
			Status:           retriever.StatusSuccess,
			TopMatch:         snippet,
			WarmupCandidates: []*domain.Snippet{snippet},
			DetectedConcept:  topic,
			Confidence:       1.0,
		},
		Training:  true,
		CreatedAt: now,
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// CalibrationResult is the state after a quiz action.
type CalibrationResult struct {
	Calibration *Calibration       `json:"calibration"`
	Item        *CalibrationItem   `json:"item,omitempty"`
	Verdict     *Verdict           `json:"verdict,omitempty"`
	Completed   bool               `json:"completed"`
	Skills      domain.SkillVector `json:"skills,omitempty"`
}

// NeedsCalibration reports whether the learner still has to take the quiz.
func (s *Service) NeedsCalibration(ctx context.Context, userID int64) (bool, error) {
	skills, err := s.Skills(ctx, userID)
	if err != nil {
		return false, err
	}
	return NeedsCalibration(skills), nil
}

// Calibration returns the learner's quiz, starting one if needed.
func (s *Service) Calibration(ctx context.Context, userID int64) (*CalibrationResult, error) {
	c, err := s.calibration(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &CalibrationResult{Calibration: c, Item: c.Current()}, nil
}

func (s *Service) calibration(ctx context.Context, userID int64) (*Calibration, error) {
	c, err := s.states.GetCalibration(ctx, userID)
	if errors.Is(err, ErrCalibrationNotFound) {
		c = NewCalibration(userID)
		c.UpdatedAt = s.now()
		if err := s.states.SaveCalibration(ctx, c); err != nil {
			return nil, err
		}
		return c, nil
	}
	return c, err
}

// AnswerCalibration judges an answer to the current quiz item.
func (s *Service) AnswerCalibration(ctx context.Context, user *domain.User, code string) (*CalibrationResult, error) {
	c, err := s.calibration(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	item := c.Current()
	if item == nil {
		return nil, ErrCalibrationComplete
	}

	v := s.tutor.Judge(ctx, JudgeRequest{
		Original:       item.Code,
		Fix:            code,
		PredictedError: item.Topic,
		UserName:       user.Name(),
	})
	c.Record(v.Passed)

	res, err := s.storeCalibration(ctx, c)
	if err != nil {
		return nil, err
	}
	res.Verdict = &v
	return res, nil
}

// SkipCalibration moves past the current quiz item without points.
func (s *Service) SkipCalibration(ctx context.Context, userID int64) (*CalibrationResult, error) {
	c, err := s.calibration(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c.Done() {
		return nil, ErrCalibrationComplete
	}
	c.Skip()
	return s.storeCalibration(ctx, c)
}

// SkipAllCalibration abandons the quiz with a minimal starting profile.
func (s *Service) SkipAllCalibration(ctx context.Context, userID int64) (domain.SkillVector, error) {
	if err := s.progress.UpdateSkills(ctx, userID, SkipAllSkills); err != nil {
		return nil, fmt.Errorf("update skills: %w", err)
	}
	if err := s.states.DeleteCalibration(ctx, userID); err != nil {
		return nil, err
	}
	return s.Skills(ctx, userID)
}

// storeCalibration saves an in-progress quiz, or writes the score and
// clears the quiz once every item is done.
func (s *Service) storeCalibration(ctx context.Context, c *Calibration) (*CalibrationResult, error) {
	c.UpdatedAt = s.now()
	if !c.Done() {
		if err := s.states.SaveCalibration(ctx, c); err != nil {
			return nil, err
		}
		return &CalibrationResult{Calibration: c, Item: c.Current()}, nil
	}

	if err := s.progress.UpdateSkills(ctx, c.UserID, c.Score); err != nil {
		return nil, fmt.Errorf("update skills: %w", err)
	}
	if err := s.states.DeleteCalibration(ctx, c.UserID); err != nil {
		return nil, err
	}
	skills, err := s.Skills(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("calibration complete", "user", c.UserID, "score", c.Score)
	return &CalibrationResult{Calibration: c, Completed: true, Skills: skills}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

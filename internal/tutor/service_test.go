package tutor

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/felixgeelhaar/socratic/internal/corpus"
	"github.com/felixgeelhaar/socratic/internal/domain"
	"github.com/felixgeelhaar/socratic/internal/retriever"
)

func testCorpus(t *testing.T) *corpus.Corpus {
	t.Helper()
	c, err := corpus.New([]*domain.Snippet{
		{ID: "loop_nov", Code: "i = 0\nwhile i < 3:\n    print(i)", ErrorType: "Infinite_Loop", Topic: "Loops",
			Difficulty: domain.DifficultyNovice, SkillRewards: domain.SkillVector{domain.SkillLoops: 1}},
		{ID: "loop_int", Code: "for i in range(10):\n    i -= 1", ErrorType: "Infinite_Loop", Topic: "Loops",
			Difficulty: domain.DifficultyIntermediate},
		{ID: "loop_adv", Code: "while x:\n    pass", ErrorType: "Infinite_Loop", Topic: "Loops",
			Difficulty: domain.DifficultyAdvanced},
		{ID: "syn1", Code: "if x\n    pass", ErrorType: "Missing_Colon", Topic: "Syntax",
			Difficulty: domain.DifficultyNovice},
		{ID: "rec_adv", Code: "def f(n):\n    return f(n)", ErrorType: "Missing_Base_Case", Topic: "Recursion",
			Difficulty: domain.DifficultyAdvanced, SkillRewards: domain.SkillVector{domain.SkillRecursion: 2}},
	})
	if err != nil {
		t.Fatalf("corpus.New() error = %v", err)
	}
	return c
}

type fixture struct {
	svc      *Service
	corpus   *corpus.Corpus
	retr     *mockRetriever
	progress *memProgress
	provider *mockProvider
	user     *domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := testCorpus(t)
	top, _ := c.ByID("loop_nov")
	f := &fixture{
		corpus: c,
		retr: &mockRetriever{
			corpus: c,
			result: &retriever.Result{
				Status:           retriever.StatusSuccess,
				TopMatch:         top,
				WarmupCandidates: c.ByErrorType("Infinite_Loop"),
				DetectedConcept:  "Infinite_Loop",
				Confidence:       0.82,
			},
		},
		progress: newMemProgress(),
		provider: &mockProvider{reply: "YES: Well done."},
		user:     &domain.User{ID: 7, Username: "ada", DisplayName: "Ada"},
	}
	tu := New(f.provider, mockChecker{}, nil)
	f.svc = NewService(f.retr, f.progress, NewMemoryStateStore(), tu, mockChecker{}, nil)
	f.svc.SetRand(rand.New(rand.NewSource(1)))
	return f
}

func (f *fixture) snippet(id string) *domain.Snippet {
	s, _ := f.corpus.ByID(id)
	return s
}

func TestService_Analyze(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := "n = 0\nwhile n < 5:\n    print(n)"

	sess, err := f.svc.Analyze(ctx, f.user, "", code)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if sess.ID == "" || sess.Phase != PhaseWarmup || sess.Code != code {
		t.Errorf("session = %+v", sess)
	}
	if f.retr.queries[0] != code {
		t.Errorf("query = %q, want the code", f.retr.queries[0])
	}

	// A fresh learner only sees the Novice candidate.
	cands := sess.Analysis.WarmupCandidates
	if len(cands) != 1 || cands[0].ID != "loop_nov" {
		t.Errorf("warmup candidates = %v", ids(cands))
	}

	attempts := f.progress.userAttempts(f.user.ID)
	if len(attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(attempts))
	}
	a := attempts[0]
	if a.SnippetID != domain.InputSnippetID || a.Success || a.SessionID != sess.ID || a.Code != code {
		t.Errorf("logged attempt = %+v", a)
	}
}

func TestService_Analyze_EmptyCode(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Analyze(context.Background(), f.user, "", "  \n"); !errors.Is(err, ErrEmptyCode) {
		t.Errorf("Analyze() error = %v, want ErrEmptyCode", err)
	}
}

func TestService_Analyze_ForeignSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner, err := f.svc.Analyze(ctx, f.user, "", "while True: pass")
	if err != nil {
		t.Fatalf("Analyze(owner) error = %v", err)
	}

	other := &domain.User{ID: 8, Username: "bob"}
	if _, err := f.svc.Analyze(ctx, other, owner.ID, "x = 1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Analyze(other) error = %v, want ErrSessionNotFound", err)
	}
	if n := len(f.progress.userAttempts(other.ID)); n != 0 {
		t.Errorf("other user has %d attempts logged, want 0", n)
	}

	sess, err := f.svc.Session(ctx, f.user.ID, owner.ID)
	if err != nil {
		t.Fatalf("Session(owner) error = %v", err)
	}
	if sess.Code != "while True: pass" {
		t.Errorf("owner session code = %q", sess.Code)
	}
}

func TestService_Analyze_ReusesOwnSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first, err := f.svc.Analyze(ctx, f.user, "", "while True: pass")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	again, err := f.svc.Analyze(ctx, f.user, first.ID, "while 1: pass")
	if err != nil {
		t.Fatalf("Analyze(again) error = %v", err)
	}
	if again.ID != first.ID || !again.CreatedAt.Equal(first.CreatedAt) || again.Code != "while 1: pass" {
		t.Errorf("session = %+v, want %s updated in place", again, first.ID)
	}
}

func TestService_Analyze_AllLockedFallsBackToNovice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.retr.result.WarmupCandidates = []*domain.Snippet{f.snippet("loop_adv"), f.snippet("loop_int")}

	sess, err := f.svc.Analyze(ctx, f.user, "", "while True: pass")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	got := ids(sess.Analysis.WarmupCandidates)
	if len(got) != 1 || got[0] != "loop_nov" {
		t.Errorf("warmup candidates = %v, want [loop_nov]", got)
	}
}

func TestService_Analyze_SyntaxError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.retr.result.TopMatch = f.snippet("syn1")

	sess, err := f.svc.Analyze(ctx, f.user, "sid-1", "def f(x)\n    return x")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if sess.ID != "sid-1" {
		t.Errorf("ID = %q, want sid-1", sess.ID)
	}
	if q := f.retr.queries[0]; q != "expected ':' syntax error python" {
		t.Errorf("query = %q", q)
	}
	if got := sess.TopMatch().ErrorType; got != "Syntax Error: expected ':'" {
		t.Errorf("top error type = %q", got)
	}
	if sess.Concept() != ConceptSyntax {
		t.Errorf("concept = %q", sess.Concept())
	}
	if f.snippet("syn1").ErrorType != "Missing_Colon" {
		t.Error("corpus snippet was modified")
	}
}

func TestService_Analyze_SyntaxErrorWithoutMatch(t *testing.T) {
	f := newFixture(t)
	f.retr.result = &retriever.Result{Status: retriever.StatusLowConfidence, DetectedConcept: retriever.ConceptGeneral}

	sess, err := f.svc.Analyze(context.Background(), f.user, "", "def f(x)\n    return x")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if sess.PredictedError() != "Syntax Error: expected ':'" {
		t.Errorf("PredictedError() = %q", sess.PredictedError())
	}
}

func TestService_Warmup(t *testing.T) {
	ctx := context.Background()

	t.Run("low confidence placeholder", func(t *testing.T) {
		f := newFixture(t)
		f.retr.result = &retriever.Result{Status: retriever.StatusLowConfidence, DetectedConcept: retriever.ConceptGeneral}
		sess, err := f.svc.Analyze(ctx, f.user, "", "x = 1")
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		w, err := f.svc.Warmup(ctx, f.user.ID, sess.ID)
		if err != nil {
			t.Fatalf("Warmup() error = %v", err)
		}
		if w.Concept != ConceptGeneralLogic || w.Example.Code != Placeholder.Code || w.Example.Hint != "Check syntax." {
			t.Errorf("warmup = %+v", w)
		}
	})

	t.Run("root shown as logic", func(t *testing.T) {
		f := newFixture(t)
		f.retr.result.DetectedConcept = "Root"
		sess, _ := f.svc.Analyze(ctx, f.user, "", "x = 1")
		w, _ := f.svc.Warmup(ctx, f.user.ID, sess.ID)
		if w.Concept != "Logic" {
			t.Errorf("concept = %q, want Logic", w.Concept)
		}
	})

	t.Run("next example cycles", func(t *testing.T) {
		f := newFixture(t)
		f.progress.skills[f.user.ID] = domain.SkillVector{domain.SkillLoops: 20}
		sess, _ := f.svc.Analyze(ctx, f.user, "", "x = 1")
		if n := len(sess.Analysis.WarmupCandidates); n != 3 {
			t.Fatalf("candidates = %d, want 3", n)
		}
		first, _ := f.svc.Warmup(ctx, f.user.ID, sess.ID)
		seen := map[string]bool{first.Example.ID: true}
		for i := 1; i < 3; i++ {
			w, err := f.svc.NextExample(ctx, f.user.ID, sess.ID)
			if err != nil {
				t.Fatalf("NextExample() error = %v", err)
			}
			if w.Index != (first.Index+i)%3 {
				t.Errorf("index = %d, want %d", w.Index, (first.Index+i)%3)
			}
			seen[w.Example.ID] = true
		}
		if len(seen) != 3 {
			t.Errorf("saw %d distinct examples, want 3", len(seen))
		}
	})

	t.Run("other user", func(t *testing.T) {
		f := newFixture(t)
		sess, _ := f.svc.Analyze(ctx, f.user, "", "x = 1")
		if _, err := f.svc.Warmup(ctx, 99, sess.ID); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Warmup() error = %v, want ErrSessionNotFound", err)
		}
	})
}

func TestService_Chat(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.provider.reply = "Ada, what changes i?"

	sess, _ := f.svc.Analyze(ctx, f.user, "", "n = 0\nwhile n < 5:\n    print(n)")
	sess, reply, err := f.svc.Chat(ctx, f.user, sess.ID, "why does it hang?", "")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if reply != f.provider.reply {
		t.Errorf("reply = %q", reply)
	}
	if len(sess.Chat) != 2 || sess.Chat[0].Role != RoleUser || sess.Chat[1].Role != RoleAssistant {
		t.Errorf("chat = %+v", sess.Chat)
	}
	prompt := f.provider.lastPrompt()
	if !strings.Contains(prompt, "Current phase: Warmup") || !strings.Contains(prompt, f.snippet("loop_nov").Code) {
		t.Error("warm-up chat should show the practice example")
	}

	sess, err = f.svc.BeginFix(ctx, f.user.ID, sess.ID)
	if err != nil {
		t.Fatalf("BeginFix() error = %v", err)
	}
	if sess.Phase != PhaseFix || len(sess.Chat) != 0 {
		t.Errorf("after BeginFix: phase=%s chat=%d", sess.Phase, len(sess.Chat))
	}

	if _, _, err := f.svc.Chat(ctx, f.user, sess.ID, "hint?", "n = 0\nwhile n < 5:\n    n += 1"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !strings.Contains(f.provider.lastPrompt(), "n += 1") {
		t.Error("fix chat should show the learner's current code")
	}
}

func TestService_Fix(t *testing.T) {
	ctx := context.Background()

	t.Run("pass adds rewards", func(t *testing.T) {
		f := newFixture(t)
		f.progress.skills[f.user.ID] = domain.SkillVector{domain.SkillLoops: 2, domain.SkillLogic: 1}
		sess, _ := f.svc.Analyze(ctx, f.user, "", "n = 0\nwhile n < 5:\n    print(n)")

		res, err := f.svc.Fix(ctx, f.user, sess.ID, "n = 0\nwhile n < 5:\n    n += 1")
		if err != nil {
			t.Fatalf("Fix() error = %v", err)
		}
		if !res.Verdict.Passed || res.Verdict.Reason != "Well done." {
			t.Errorf("verdict = %+v", res.Verdict)
		}
		if res.Rewards[domain.SkillLoops] != 1 {
			t.Errorf("rewards = %v", res.Rewards)
		}
		skills := f.progress.skills[f.user.ID]
		if skills[domain.SkillLoops] != 3 || skills[domain.SkillLogic] != 1 {
			t.Errorf("skills = %v", skills)
		}
		if !res.Session.Solved {
			t.Error("session should be solved")
		}

		attempts := f.progress.userAttempts(f.user.ID)
		last := attempts[len(attempts)-1]
		if !last.Success || last.Rewards[domain.SkillLoops] != 1 || last.SessionID != sess.ID {
			t.Errorf("logged attempt = %+v", last)
		}
		if !strings.Contains(f.provider.lastPrompt(), "print(n)") {
			t.Error("judge should compare against the original code")
		}
	})

	t.Run("fail posts reason", func(t *testing.T) {
		f := newFixture(t)
		f.provider.reply = "NO: What changes n?"
		sess, _ := f.svc.Analyze(ctx, f.user, "", "n = 0\nwhile n < 5:\n    print(n)")

		res, err := f.svc.Fix(ctx, f.user, sess.ID, "n = 0\nwhile n < 5:\n    print(n + 1)")
		if err != nil {
			t.Fatalf("Fix() error = %v", err)
		}
		if res.Verdict.Passed || res.Rewards != nil {
			t.Errorf("result = %+v", res)
		}
		chat := res.Session.Chat
		if len(chat) == 0 || chat[len(chat)-1].Content != "What changes n?" {
			t.Errorf("chat = %+v", chat)
		}
		if _, ok := f.progress.skills[f.user.ID]; ok {
			t.Error("skills should not change on failure")
		}
	})

	t.Run("fallback rewards from concept", func(t *testing.T) {
		f := newFixture(t)
		f.retr.result.TopMatch = f.snippet("loop_int")
		sess, _ := f.svc.Analyze(ctx, f.user, "", "for i in range(3):\n    i -= 1")

		res, err := f.svc.Fix(ctx, f.user, sess.ID, "for i in range(3):\n    print(i)")
		if err != nil {
			t.Fatalf("Fix() error = %v", err)
		}
		if res.Rewards[domain.SkillLogic] != 0.5 || res.Rewards[domain.SkillLoops] != 1 {
			t.Errorf("rewards = %v", res.Rewards)
		}
	})
}

func TestService_Resume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.provider.reply = "NO: not yet"

	sess, _ := f.svc.Analyze(ctx, f.user, "", "while True: pass")
	if _, err := f.svc.Fix(ctx, f.user, sess.ID, "while True: print(1)"); err != nil {
		t.Fatalf("Fix() error = %v", err)
	}

	resumed, err := f.svc.Resume(ctx, f.user.ID, sess.ID)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.Code != "while True: print(1)" || resumed.Phase != PhaseFix || len(resumed.Chat) != 0 {
		t.Errorf("resumed = %+v", resumed)
	}

	if _, err := f.svc.Resume(ctx, f.user.ID, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Resume(missing) error = %v", err)
	}

	f.provider.reply = "YES: done"
	if _, err := f.svc.Fix(ctx, f.user, sess.ID, "print(1)"); err != nil {
		t.Fatalf("Fix() error = %v", err)
	}
	if _, err := f.svc.Resume(ctx, f.user.ID, sess.ID); !errors.Is(err, ErrSessionSolved) {
		t.Errorf("Resume(solved) error = %v, want ErrSessionSolved", err)
	}
}

func TestService_StartTraining(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	set, err := f.svc.StartTraining(ctx, f.user.ID, "Recursion")
	if err != nil {
		t.Fatalf("StartTraining() error = %v", err)
	}
	if set.Fallback || len(set.Problems) != 1 {
		t.Fatalf("set = %+v", set)
	}
	if p := set.Problems[0]; p.Snippet.ID != "rec_adv" || !p.Locked {
		t.Errorf("problem = %+v, want locked rec_adv", p)
	}

	set, _ = f.svc.StartTraining(ctx, f.user.ID, "Loops")
	if len(set.Problems) != 3 {
		t.Errorf("Loops problems = %d, want 3", len(set.Problems))
	}

	set, _ = f.svc.StartTraining(ctx, f.user.ID, "Graphs")
	if !set.Fallback || len(set.Problems) != 2 {
		t.Errorf("fallback set = %+v", set)
	}
	for _, p := range set.Problems {
		if p.Snippet.Level() != domain.DifficultyNovice {
			t.Errorf("fallback offered %s", p.Snippet.ID)
		}
	}
}

func TestService_StartTrainingSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sess, err := f.svc.StartTrainingSession(ctx, f.user.ID, "rec_adv", "Recursion")
	if err != nil {
		t.Fatalf("StartTrainingSession() error = %v", err)
	}
	if sess.Phase != PhaseFix || !sess.Training || sess.Code != f.snippet("rec_adv").Code {
		t.Errorf("session = %+v", sess)
	}
	if sess.Analysis.Confidence != 1.0 || sess.Concept() != "Recursion" || sess.TopMatch().ID != "rec_adv" {
		t.Errorf("analysis = %+v", sess.Analysis)
	}

	res, err := f.svc.Fix(ctx, f.user, sess.ID, "def f(n):\n    if n == 0:\n        return 0\n    return f(n - 1)")
	if err != nil {
		t.Fatalf("Fix() error = %v", err)
	}
	if res.Rewards[domain.SkillRecursion] != 2 {
		t.Errorf("rewards = %v", res.Rewards)
	}

	if _, err := f.svc.StartTrainingSession(ctx, f.user.ID, "nope", ""); !errors.Is(err, domain.ErrSnippetNotFound) {
		t.Errorf("error = %v, want ErrSnippetNotFound", err)
	}
}

func TestService_Calibration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	need, err := f.svc.NeedsCalibration(ctx, f.user.ID)
	if err != nil || !need {
		t.Fatalf("NeedsCalibration() = %v, %v", need, err)
	}

	start, err := f.svc.Calibration(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("Calibration() error = %v", err)
	}
	if start.Item == nil || start.Item.ID != "calib_01" {
		t.Fatalf("first item = %+v", start.Item)
	}

	// Fail the first item once, then pass everything except a skipped third.
	f.provider.reply = "NO: look again"
	res, err := f.svc.AnswerCalibration(ctx, f.user, "print(1)")
	if err != nil {
		t.Fatalf("AnswerCalibration() error = %v", err)
	}
	if res.Verdict.Passed || res.Calibration.LivesLeft() != 2 {
		t.Errorf("after failure: %+v", res.Calibration)
	}

	f.provider.reply = "YES: ok"
	for i := 0; i < 4; i++ {
		if i == 2 {
			if _, err := f.svc.SkipCalibration(ctx, f.user.ID); err != nil {
				t.Fatalf("SkipCalibration() error = %v", err)
			}
		}
		res, err = f.svc.AnswerCalibration(ctx, f.user, "print(1)")
		if err != nil {
			t.Fatalf("AnswerCalibration(%d) error = %v", i, err)
		}
	}
	if !res.Completed {
		t.Fatalf("quiz should be complete: %+v", res.Calibration)
	}

	// calib_01 at 75%, calib_02, calib_04 and calib_05 in full.
	want := domain.SkillVector{
		domain.SkillSyntax:         1.5 + 1,
		domain.SkillLogic:          0.75 + 1 + 2 + 1,
		domain.SkillLoops:          2,
		domain.SkillDataStructures: 2,
		domain.SkillRecursion:      0,
	}
	for k, v := range want {
		if res.Skills[k] != v {
			t.Errorf("skills[%s] = %v, want %v", k, res.Skills[k], v)
		}
	}

	need, _ = f.svc.NeedsCalibration(ctx, f.user.ID)
	if need {
		t.Error("calibration should no longer be needed")
	}
}

func TestService_SkipAllCalibration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.svc.Calibration(ctx, f.user.ID); err != nil {
		t.Fatalf("Calibration() error = %v", err)
	}

	skills, err := f.svc.SkipAllCalibration(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("SkipAllCalibration() error = %v", err)
	}
	if skills[domain.SkillSyntax] != 1 || skills[domain.SkillLogic] != 1 || skills.Sum() != 2 {
		t.Errorf("skills = %v", skills)
	}

	res, _ := f.svc.Calibration(ctx, f.user.ID)
	if res.Calibration.Index != 0 {
		t.Errorf("quiz state should be reset, index = %d", res.Calibration.Index)
	}
}

func TestFileStateStore(t *testing.T) {
	ctx := context.Background()
	st, err := NewFileStateStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStateStore() error = %v", err)
	}

	sess := &Session{
		ID:     "abc",
		UserID: 3,
		Phase:  PhaseWarmup,
		Code:   "x = 1",
		Analysis: &retriever.Result{
			Status:   retriever.StatusSuccess,
			TopMatch: &domain.Snippet{ID: "s1", ErrorType: "Off_By_One"},
		},
		Chat: []ChatMessage{{Role: RoleUser, Content: "hi"}},
	}
	if err := st.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	got, err := st.GetSession(ctx, "abc")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.UserID != 3 || got.PredictedError() != "Off_By_One" || len(got.Chat) != 1 {
		t.Errorf("GetSession() = %+v", got)
	}
	if _, err := st.GetSession(ctx, "../escape"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession(bad id) error = %v", err)
	}

	c := NewCalibration(3)
	c.Record(true)
	if err := st.SaveCalibration(ctx, c); err != nil {
		t.Fatalf("SaveCalibration() error = %v", err)
	}
	gc, err := st.GetCalibration(ctx, 3)
	if err != nil || gc.Index != 1 || gc.Score[domain.SkillSyntax] != 2 {
		t.Errorf("GetCalibration() = %+v, %v", gc, err)
	}
	if err := st.DeleteCalibration(ctx, 3); err != nil {
		t.Fatalf("DeleteCalibration() error = %v", err)
	}
	if err := st.DeleteCalibration(ctx, 3); err != nil {
		t.Errorf("second DeleteCalibration() error = %v", err)
	}
	if _, err := st.GetCalibration(ctx, 3); !errors.Is(err, ErrCalibrationNotFound) {
		t.Errorf("GetCalibration() after delete error = %v", err)
	}
}

func ids(snippets []*domain.Snippet) []string {
	out := make([]string, len(snippets))
	for i, s := range snippets {
		out[i] = s.ID
	}
	return out
}

// Package tutor runs the Socratic debugging flow: hint chat, fix judging,
// the calibration quiz and skill progression.
package tutor

import (
	"context"
	"log/slog"
	"strings"

	"github.com/felixgeelhaar/socratic/internal/analyzer"
	"github.com/felixgeelhaar/socratic/internal/llm"
	"github.com/felixgeelhaar/socratic/internal/metrics"
)

const (
	OfflineMessage = "Offline Mode."
	EmptyReply     = "I'm analyzing your code, but I couldn't generate a specific hint. Try rephrasing?"
	DefaultName    = "you"
)

// ChatMessage is one turn of the hint conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest asks the tutor for a hint.
type ChatRequest struct {
	Phase    string
	UserName string
	Code     string
	History  []ChatMessage
}

// JudgeRequest asks whether fix resolves the predicted error in original.
type JudgeRequest struct {
	Original       string
	Fix            string
	PredictedError string
	UserName       string
}

// Verdict is the judge's decision.
type Verdict struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// Tutor wraps the LLM for hint chat and fix judging. A nil provider puts
// it in offline mode.
type Tutor struct {
	provider llm.Provider
	checker  analyzer.SyntaxChecker
	logger   *slog.Logger
}

// New creates a Tutor.
func New(provider llm.Provider, checker analyzer.SyntaxChecker, logger *slog.Logger) *Tutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tutor{provider: provider, checker: checker, logger: logger}
}

// Online reports whether an LLM is configured.
func (t *Tutor) Online() bool {
	return t.provider != nil
}

// Chat returns a guiding hint. It never fails; problems are rendered as
// the reply text.
func (t *Tutor) Chat(ctx context.Context, req ChatRequest) string {
	if t.provider == nil {
		return OfflineMessage
	}
	name := req.UserName
	if name == "" {
		name = DefaultName
	}
	phase := req.Phase
	if phase == "" {
		phase = "Unknown"
	}

	resp, err := t.provider.Generate(ctx, llm.Prompt(tutorPrompt(phase, name, req.Code, req.History)))
	if err != nil {
		t.logger.Warn("tutor reply failed", "phase", phase, "error", err)
		return "AI Error: " + err.Error()
	}
	if strings.TrimSpace(resp.Content) == "" {
		return EmptyReply
	}
	return resp.Content
}

// Judge verifies a fix. The fix must parse before the LLM is consulted.
func (t *Tutor) Judge(ctx context.Context, req JudgeRequest) Verdict {
	if t.checker != nil {
		serr, err := t.checker.CheckSyntax(ctx, req.Fix)
		if err != nil {
			t.logger.Warn("syntax check failed", "error", err)
		}
		if serr != nil {
			metrics.JudgeVerdicts.WithLabelValues("syntax_error").Inc()
			return Verdict{Reason: "Syntax Error: " + serr.Error()}
		}
	}

	if t.provider == nil {
		metrics.JudgeVerdicts.WithLabelValues("offline").Inc()
		return Verdict{Reason: OfflineMessage}
	}

	name := req.UserName
	if name == "" {
		name = DefaultName
	}
	resp, err := t.provider.Generate(ctx, llm.Prompt(judgePrompt(name, req.Original, req.Fix, req.PredictedError)))
	if err != nil {
		metrics.JudgeVerdicts.WithLabelValues("error").Inc()
		t.logger.Warn("judge call failed", "error", err)
		return Verdict{Reason: "AI Error: " + err.Error()}
	}

	v := ParseVerdict(resp.Content)
	if v.Passed {
		metrics.JudgeVerdicts.WithLabelValues("pass").Inc()
	} else {
		metrics.JudgeVerdicts.WithLabelValues("fail").Inc()
	}
	return v
}

// ParseVerdict reads a "YES: ..." or "NO: ..." reply. Anything not starting
// with YES fails.
func ParseVerdict(text string) Verdict {
	text = strings.TrimSpace(text)
	passed := strings.HasPrefix(strings.ToUpper(text), "YES")

	if _, after, ok := strings.Cut(text, ":"); ok {
		return Verdict{Passed: passed, Reason: strings.TrimSpace(after)}
	}
	if passed {
		return Verdict{Passed: true, Reason: "Good job!"}
	}
	return Verdict{Reason: "Not quite."}
}

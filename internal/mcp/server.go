// Package mcp exposes the debugging tutor as Model Context Protocol tools
// so editors and assistants can query it over stdio.
package mcp

import (
	"context"
	"fmt"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/felixgeelhaar/socratic/internal/app"
	"github.com/felixgeelhaar/socratic/internal/domain"
	"github.com/felixgeelhaar/socratic/internal/taxonomy"
	"github.com/felixgeelhaar/socratic/internal/tutor"
)

// Server wraps the MCP server with Socratic functionality
type Server struct {
	mcpServer *server.Server
	app       *app.App
}

// Config contains configuration for the MCP server
type Config struct {
	App     *app.App
	Version string
}

// NewServer creates a new MCP server
func NewServer(cfg Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{app: cfg.App}

	s.mcpServer = server.New(server.Info{
		Name:    "socratic",
		Version: version,
	}, server.WithInstructions(`
Socratic is a debugging tutor for Python learners.
It never hands out the fix. It finds known bugs similar to the learner's
code, names the concept behind them, and judges attempted fixes.

Available tools:
- analyze_code: Find known bugs similar to a snippet and name the concept
- check_syntax: Check whether Python code parses
- judge_fix: Decide whether a fix resolves the original bug
- explain_concept: Place a concept in the error taxonomy
- player_profile: Show a learner's skills, level and next rank
`))

	s.registerTools()
	return s
}

// registerTools registers all tutor tools
func (s *Server) registerTools() {
	s.mcpServer.Tool("analyze_code").
		Description("Find known bugs similar to a Python snippet and name the concept behind them.").
		Handler(s.handleAnalyze)

	s.mcpServer.Tool("check_syntax").
		Description("Check whether Python code parses; reports the first error and its line.").
		Handler(s.handleCheckSyntax)

	s.mcpServer.Tool("judge_fix").
		Description("Judge whether a fixed version of the code resolves the original bug.").
		Handler(s.handleJudge)

	s.mcpServer.Tool("explain_concept").
		Description("Show where a bug concept sits in the error taxonomy.").
		Handler(s.handleExplain)

	s.mcpServer.Tool("player_profile").
		Description("Show a learner's skill vector, level, title and next rank goal.").
		Handler(s.handleProfile)
}

// Input/Output types for tools

type CodeInput struct {
	Code string `json:"code" jsonschema:"description=Python source code"`
}

type Match struct {
	SnippetID string `json:"snippet_id"`
	Topic     string `json:"topic"`
	ErrorType string `json:"error_type"`
	Hint      string `json:"hint,omitempty"`
}

type AnalyzeOutput struct {
	Status      string   `json:"status"`
	Concept     string   `json:"concept"`
	Confidence  float64  `json:"confidence"`
	Features    []string `json:"features"`
	SyntaxError string   `json:"syntax_error,omitempty"`
	TopMatch    *Match   `json:"top_match,omitempty"`
	Warmups     []string `json:"warmups,omitempty"`
	Hint        string   `json:"hint,omitempty"`
}

type SyntaxOutput struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
	Line    int    `json:"line,omitempty"`
}

type JudgeInput struct {
	Original       string `json:"original" jsonschema:"description=The buggy code"`
	Fix            string `json:"fix" jsonschema:"description=The learner's fixed code"`
	PredictedError string `json:"predicted_error,omitempty" jsonschema:"description=Suspected bug, e.g. Off_By_One"`
}

type JudgeOutput struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

type ConceptInput struct {
	Concept string `json:"concept" jsonschema:"description=Taxonomy node, e.g. Off_By_One or Loops"`
}

type ConceptOutput struct {
	Concept  string   `json:"concept"`
	Known    bool     `json:"known"`
	Parent   string   `json:"parent,omitempty"`
	Path     []string `json:"path"`
	Children []string `json:"children,omitempty"`
}

type ProfileInput struct {
	Username string `json:"username" jsonschema:"description=Learner login name"`
}

type ProfileOutput struct {
	Username         string             `json:"username"`
	Level            int                `json:"level"`
	Title            string             `json:"title"`
	TotalXP          float64            `json:"total_xp"`
	Skills           domain.SkillVector `json:"skills"`
	NeedsCalibration bool               `json:"needs_calibration"`
	NextRank         string             `json:"next_rank,omitempty"`
}

// Tool handlers

func (s *Server) handleAnalyze(ctx context.Context, input CodeInput) (AnalyzeOutput, error) {
	if input.Code == "" {
		return AnalyzeOutput{}, fmt.Errorf("code is required")
	}

	out := AnalyzeOutput{}
	query := input.Code
	serr, err := s.app.Checker.CheckSyntax(ctx, input.Code)
	if err != nil {
		s.app.Logger().Warn("syntax check failed", "error", err)
	}
	if serr != nil {
		out.SyntaxError = serr.Error()
		query = serr.Msg + " syntax error python"
	}

	res, err := s.app.Retriever.FindSimilar(ctx, query)
	if err != nil {
		return AnalyzeOutput{}, fmt.Errorf("find similar: %w", err)
	}

	out.Status = string(res.Status)
	out.Concept = res.DetectedConcept
	out.Confidence = res.Confidence
	out.Features = res.Features.List()
	out.Hint = res.Hint
	if serr != nil {
		out.Concept = tutor.ConceptSyntax
	}
	if top := res.TopMatch; top != nil {
		out.TopMatch = &Match{SnippetID: top.ID, Topic: top.Topic, ErrorType: top.ErrorType, Hint: top.Hint}
	}
	for _, w := range res.WarmupCandidates {
		out.Warmups = append(out.Warmups, w.ID)
	}
	return out, nil
}

func (s *Server) handleCheckSyntax(ctx context.Context, input CodeInput) (SyntaxOutput, error) {
	serr, err := s.app.Checker.CheckSyntax(ctx, input.Code)
	if err != nil {
		return SyntaxOutput{}, fmt.Errorf("check syntax: %w", err)
	}
	if serr == nil {
		return SyntaxOutput{Valid: true}, nil
	}
	return SyntaxOutput{Message: serr.Msg, Line: serr.Line}, nil
}

func (s *Server) handleJudge(ctx context.Context, input JudgeInput) (JudgeOutput, error) {
	if input.Original == "" || input.Fix == "" {
		return JudgeOutput{}, fmt.Errorf("original and fix are required")
	}
	v := s.app.Tutor.Tutor().Judge(ctx, tutor.JudgeRequest{
		Original:       input.Original,
		Fix:            input.Fix,
		PredictedError: input.PredictedError,
		UserName:       "Student",
	})
	return JudgeOutput{Passed: v.Passed, Reason: v.Reason}, nil
}

func (s *Server) handleExplain(ctx context.Context, input ConceptInput) (ConceptOutput, error) {
	if input.Concept == "" {
		return ConceptOutput{}, fmt.Errorf("concept is required")
	}
	out := ConceptOutput{
		Concept:  input.Concept,
		Known:    taxonomy.Contains(input.Concept),
		Path:     taxonomy.Path(input.Concept),
		Children: taxonomy.Children(input.Concept),
	}
	if input.Concept != taxonomy.Root {
		out.Parent = taxonomy.Parent(input.Concept)
	}
	return out, nil
}

func (s *Server) handleProfile(ctx context.Context, input ProfileInput) (ProfileOutput, error) {
	user, err := s.app.Auth.UserByUsername(ctx, input.Username)
	if err != nil {
		return ProfileOutput{}, fmt.Errorf("find learner %q: %w", input.Username, err)
	}
	skills, err := s.app.Tutor.Skills(ctx, user.ID)
	if err != nil {
		return ProfileOutput{}, fmt.Errorf("load skills: %w", err)
	}

	p := tutor.Profile(skills)
	out := ProfileOutput{
		Username:         user.Username,
		Level:            p.Level,
		Title:            p.Title,
		TotalXP:          p.TotalXP,
		Skills:           skills,
		NeedsCalibration: tutor.NeedsCalibration(skills),
	}
	if tip := tutor.NextRankTip(skills); tip != nil {
		out.NextRank = tip.Message
	}
	return out, nil
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}

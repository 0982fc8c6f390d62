package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/felixgeelhaar/socratic/internal/app"
	"github.com/felixgeelhaar/socratic/internal/domain"
	"github.com/felixgeelhaar/socratic/internal/retriever"
	"github.com/felixgeelhaar/socratic/internal/tutor"
)

// maxBodyBytes caps request bodies; code submissions are small.
const maxBodyBytes = 1 << 20

// Server represents the Socratic daemon HTTP server
type Server struct {
	app          *app.App
	server       *http.Server
	router       *http.ServeMux
	limiter      ratelimit.RateLimiter
	retrieveRate ratelimit.RateLimiter
	admins       map[string]struct{}
	version      string
	started      time.Time
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	App     *app.App
	Addr    string // host:port
	Version string

	// AuthRatePerMinute throttles register/login per client IP (default 20)
	AuthRatePerMinute int
	// RetrieveRatePerMinute throttles anonymous /v1/retrieve per client IP
	// (default 30)
	RetrieveRatePerMinute int

	// Admins are the usernames allowed to trigger a corpus reindex.
	Admins []string
}

func perMinute(rate int) ratelimit.RateLimiter {
	return ratelimit.New(&ratelimit.Config{
		Rate:     rate,
		Burst:    rate,
		Interval: time.Minute,
	})
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("daemon: app is required")
	}
	authRate := cfg.AuthRatePerMinute
	if authRate <= 0 {
		authRate = 20
	}
	retrieveRate := cfg.RetrieveRatePerMinute
	if retrieveRate <= 0 {
		retrieveRate = 30
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		app:          cfg.App,
		router:       http.NewServeMux(),
		version:      version,
		started:      time.Now(),
		limiter:      perMinute(authRate),
		retrieveRate: perMinute(retrieveRate),
		admins:       make(map[string]struct{}, len(cfg.Admins)),
	}
	for _, name := range cfg.Admins {
		s.admins[name] = struct{}{}
	}

	s.setupRoutes()

	// metricsMiddleware must sit directly on the mux to see route patterns
	handler := recoveryMiddleware(correlationIDMiddleware(loggingMiddleware(metricsMiddleware(s.router))))
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // LLM judge calls can be slow
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)
	s.router.Handle("GET /metrics", promhttp.Handler())

	// Accounts
	s.router.Handle("POST /v1/auth/register", rateLimitMiddleware(s.limiter, http.HandlerFunc(s.handleRegister)))
	s.router.Handle("POST /v1/auth/login", rateLimitMiddleware(s.limiter, http.HandlerFunc(s.handleLogin)))
	s.router.HandleFunc("POST /v1/auth/logout", s.requireAuth(s.handleLogout))

	// Learner
	s.router.HandleFunc("GET /v1/me/skills", s.requireAuth(s.handleSkills))
	s.router.HandleFunc("GET /v1/me/profile", s.requireAuth(s.handleProfile))
	s.router.HandleFunc("GET /v1/me/dashboard", s.requireAuth(s.handleDashboard))
	s.router.HandleFunc("GET /v1/me/history", s.requireAuth(s.handleHistory))
	s.router.HandleFunc("GET /v1/me/sessions", s.requireAuth(s.handleSessions))
	s.router.HandleFunc("GET /v1/me/resume", s.requireAuth(s.handleLastUnfinished))

	// Calibration quiz
	s.router.HandleFunc("GET /v1/me/calibration", s.requireAuth(s.handleGetCalibration))
	s.router.HandleFunc("POST /v1/me/calibration/answer", s.requireAuth(s.handleAnswerCalibration))
	s.router.HandleFunc("POST /v1/me/calibration/skip", s.requireAuth(s.handleSkipCalibration))
	s.router.HandleFunc("POST /v1/me/calibration/skip-all", s.requireAuth(s.handleSkipAllCalibration))

	// Tutoring sessions
	s.router.HandleFunc("POST /v1/sessions", s.requireAuth(s.handleAnalyze))
	s.router.HandleFunc("GET /v1/sessions/{id}", s.requireAuth(s.handleGetSession))
	s.router.HandleFunc("GET /v1/sessions/{id}/warmup", s.requireAuth(s.handleWarmup))
	s.router.HandleFunc("POST /v1/sessions/{id}/warmup/next", s.requireAuth(s.handleNextExample))
	s.router.HandleFunc("POST /v1/sessions/{id}/begin-fix", s.requireAuth(s.handleBeginFix))
	s.router.HandleFunc("POST /v1/sessions/{id}/chat", s.requireAuth(s.handleChat))
	s.router.HandleFunc("POST /v1/sessions/{id}/fix", s.requireAuth(s.handleFix))
	s.router.HandleFunc("POST /v1/sessions/{id}/resume", s.requireAuth(s.handleResume))

	// Training
	s.router.HandleFunc("GET /v1/training/{topic}", s.requireAuth(s.handleTraining))
	s.router.HandleFunc("POST /v1/training/{topic}/start", s.requireAuth(s.handleStartTraining))

	// Retrieval & corpus
	s.router.Handle("POST /v1/retrieve", rateLimitMiddleware(s.retrieveRate, http.HandlerFunc(s.handleRetrieve)))
	s.router.HandleFunc("POST /v1/corpus/reindex", s.requireAdmin(s.handleReindex))
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting socratic daemon",
		"addr", s.server.Addr,
		"llm_providers", s.app.LLM.Names(),
		"embedder", s.app.EmbedderName(),
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon...")
	err := s.server.Shutdown(ctx)
	for _, l := range []ratelimit.RateLimiter{s.limiter, s.retrieveRate} {
		if cerr := l.Close(); cerr != nil {
			slog.Warn("failed to close rate limiter", "error", cerr)
		}
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":          "running",
		"version":         s.version,
		"uptime":          time.Since(s.started).Round(time.Second).String(),
		"llm_providers":   s.app.LLM.Names(),
		"tutor_online":    s.app.Tutor.Tutor().Online(),
		"embedder":        s.app.EmbedderName(),
		"corpus_snippets": s.app.Corpus.Current().Len(),
		"index_ready":     s.app.Retriever.Ready(),
		"queued_reindex":  s.app.Queued(),
	})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Code == "" {
		s.jsonError(w, http.StatusBadRequest, "code is required", nil)
		return
	}

	res, err := s.app.Retriever.FindSimilar(r.Context(), req.Code)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "retrieval failed", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	status, err := s.app.Reindex(r.Context(), "requested via API", user.Username)
	if err != nil {
		s.serviceError(w, "reindex failed", err)
		return
	}
	if status.Queued {
		s.jsonResponse(w, http.StatusAccepted, status)
		return
	}
	s.jsonResponse(w, http.StatusOK, status)
}

// decode reads a JSON body into v, writing a 400 on failure. An empty body
// leaves v untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
	return false
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, data)
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}

// serviceError maps domain and service errors to HTTP statuses. Known
// errors use their own message; anything else is a 500 with fallback.
func (s *Server) serviceError(w http.ResponseWriter, fallback string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.jsonError(w, status, fallback, err)
		return
	}
	s.jsonError(w, status, rootMessage(err), nil)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidUsername),
		errors.Is(err, domain.ErrInvalidPassword),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrUnknownSkill),
		errors.Is(err, tutor.ErrEmptyCode):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrAuthSessionNotFound),
		errors.Is(err, domain.ErrAuthSessionExpired),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, tutor.ErrSessionNotFound),
		errors.Is(err, tutor.ErrCalibrationNotFound),
		errors.Is(err, domain.ErrSnippetNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUsernameTaken),
		errors.Is(err, tutor.ErrSessionSolved),
		errors.Is(err, tutor.ErrCalibrationComplete),
		errors.Is(err, retriever.ErrNoSnippets):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// rootMessage returns the innermost error text, which for sentinel errors
// is the user-facing message.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

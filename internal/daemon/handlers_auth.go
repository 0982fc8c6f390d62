package daemon

import (
	"context"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/socratic/internal/auth"
	"github.com/felixgeelhaar/socratic/internal/domain"
)

// requireAuth resolves the bearer token into a user stored under UserKey.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.jsonError(w, http.StatusUnauthorized, "authentication required", nil)
			return
		}
		user, err := s.app.Auth.ValidateSession(r.Context(), token)
		if err != nil {
			s.serviceError(w, "failed to validate session", err)
			return
		}
		ctx := context.WithValue(r.Context(), UserKey, user)
		next(w, r.WithContext(ctx))
	}
}

// requireAdmin is requireAuth restricted to the configured admins.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.admins[userFrom(r).Username]; !ok {
			s.jsonError(w, http.StatusForbidden, "admin access required", nil)
			return
		}
		next(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// userFrom returns the authenticated user. Only valid behind requireAuth.
func userFrom(r *http.Request) *domain.User {
	user, _ := r.Context().Value(UserKey).(*domain.User)
	return user
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, err := s.app.Auth.Register(r.Context(), req)
	if err != nil {
		s.serviceError(w, "registration failed", err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.app.Auth.Login(r.Context(), req)
	if err != nil {
		s.serviceError(w, "login failed", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleLogout revokes the presented token, or with ?all=true every token
// of its owner.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	logout := s.app.Auth.Logout
	if r.URL.Query().Get("all") == "true" {
		logout = s.app.Auth.LogoutAll
	}
	if err := logout(r.Context(), bearerToken(r)); err != nil {
		s.serviceError(w, "logout failed", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

package daemon

import (
	"net/http"
)

type codeRequest struct {
	Code      string `json:"code"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess, err := s.app.Tutor.Analyze(r.Context(), userFrom(r), req.SessionID, req.Code)
	if err != nil {
		s.serviceError(w, "analysis failed", err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.app.Tutor.Session(r.Context(), userFrom(r).ID, r.PathValue("id"))
	if err != nil {
		s.serviceError(w, "failed to load session", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, sess)
}

func (s *Server) handleWarmup(w http.ResponseWriter, r *http.Request) {
	warmup, err := s.app.Tutor.Warmup(r.Context(), userFrom(r).ID, r.PathValue("id"))
	if err != nil {
		s.serviceError(w, "failed to load warm-up", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, warmup)
}

func (s *Server) handleNextExample(w http.ResponseWriter, r *http.Request) {
	warmup, err := s.app.Tutor.NextExample(r.Context(), userFrom(r).ID, r.PathValue("id"))
	if err != nil {
		s.serviceError(w, "failed to advance warm-up", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, warmup)
}

func (s *Server) handleBeginFix(w http.ResponseWriter, r *http.Request) {
	sess, err := s.app.Tutor.BeginFix(r.Context(), userFrom(r).ID, r.PathValue("id"))
	if err != nil {
		s.serviceError(w, "failed to start fix phase", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, sess)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Message == "" {
		s.jsonError(w, http.StatusBadRequest, "message is required", nil)
		return
	}
	sess, reply, err := s.app.Tutor.Chat(r.Context(), userFrom(r), r.PathValue("id"), req.Message, req.Code)
	if err != nil {
		s.serviceError(w, "chat failed", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"reply":   reply,
		"session": sess,
	})
}

func (s *Server) handleFix(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.app.Tutor.Fix(r.Context(), userFrom(r), r.PathValue("id"), req.Code)
	if err != nil {
		s.serviceError(w, "failed to judge fix", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	sess, err := s.app.Tutor.Resume(r.Context(), userFrom(r).ID, r.PathValue("id"))
	if err != nil {
		s.serviceError(w, "failed to resume session", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, sess)
}

// Training

func (s *Server) handleTraining(w http.ResponseWriter, r *http.Request) {
	set, err := s.app.Tutor.StartTraining(r.Context(), userFrom(r).ID, r.PathValue("topic"))
	if err != nil {
		s.serviceError(w, "failed to build training set", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, set)
}

func (s *Server) handleStartTraining(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SnippetID string `json:"snippet_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.SnippetID == "" {
		s.jsonError(w, http.StatusBadRequest, "snippet_id is required", nil)
		return
	}
	sess, err := s.app.Tutor.StartTrainingSession(r.Context(), userFrom(r).ID, req.SnippetID, r.PathValue("topic"))
	if err != nil {
		s.serviceError(w, "failed to start training session", err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, sess)
}

package daemon

import (
	"net/http"
	"strconv"

	"github.com/felixgeelhaar/socratic/internal/tutor"
)

const defaultHistoryLimit = 10

func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	skills, err := s.app.Tutor.Skills(r.Context(), userFrom(r).ID)
	if err != nil {
		s.serviceError(w, "failed to load skills", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"skills":            skills,
		"needs_calibration": tutor.NeedsCalibration(skills),
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	skills, err := s.app.Tutor.Skills(r.Context(), user.ID)
	if err != nil {
		s.serviceError(w, "failed to load skills", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"user":     user,
		"profile":  tutor.Profile(skills),
		"rank_tip": tutor.NextRankTip(skills),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.app.Analytics.Dashboard(r.Context(), userFrom(r).ID)
	if err != nil {
		s.serviceError(w, "failed to build dashboard", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, dash)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.jsonError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}

	history, err := s.app.Progress.History(r.Context(), userFrom(r).ID, limit)
	if err != nil {
		s.serviceError(w, "failed to load history", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"attempts": history,
		"count":    len(history),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.app.Analytics.Sessions(r.Context(), userFrom(r).ID)
	if err != nil {
		s.serviceError(w, "failed to list sessions", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleLastUnfinished(w http.ResponseWriter, r *http.Request) {
	attempt, err := s.app.Progress.LastUnfinished(r.Context(), userFrom(r).ID)
	if err != nil {
		s.serviceError(w, "failed to load last attempt", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{"attempt": attempt})
}

// Calibration

func (s *Server) handleGetCalibration(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r).ID
	needed, err := s.app.Tutor.NeedsCalibration(r.Context(), userID)
	if err != nil {
		s.serviceError(w, "failed to load skills", err)
		return
	}
	if !needed {
		s.jsonResponse(w, http.StatusOK, map[string]bool{"needed": false})
		return
	}

	res, err := s.app.Tutor.Calibration(r.Context(), userID)
	if err != nil {
		s.serviceError(w, "failed to load calibration", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, calibrationBody{Needed: true, CalibrationResult: res})
}

type calibrationBody struct {
	Needed bool `json:"needed"`
	*tutor.CalibrationResult
}

func (s *Server) handleAnswerCalibration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.app.Tutor.AnswerCalibration(r.Context(), userFrom(r), req.Code)
	if err != nil {
		s.serviceError(w, "failed to grade answer", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, calibrationBody{Needed: !res.Completed, CalibrationResult: res})
}

func (s *Server) handleSkipCalibration(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.Tutor.SkipCalibration(r.Context(), userFrom(r).ID)
	if err != nil {
		s.serviceError(w, "failed to skip question", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, calibrationBody{Needed: !res.Completed, CalibrationResult: res})
}

func (s *Server) handleSkipAllCalibration(w http.ResponseWriter, r *http.Request) {
	skills, err := s.app.Tutor.SkipAllCalibration(r.Context(), userFrom(r).ID)
	if err != nil {
		s.serviceError(w, "failed to skip calibration", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{"skills": skills})
}

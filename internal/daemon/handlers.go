package daemon

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/tetherapp/tether/internal/domain"
	"github.com/tetherapp/tether/internal/session"
)

type startSessionRequest struct {
	OwnerID           string `json:"owner_id"`
	GoalSeconds       int64  `json:"goal_seconds"`
	HardcoreMode      bool   `json:"hardcore_mode"`
	KeyholderApproval bool   `json:"keyholder_approval"`
	Notes             string `json:"notes"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.OwnerID == "" {
		s.jsonError(w, http.StatusBadRequest, "owner_id is required", nil)
		return
	}

	sess, err := s.sessionService.Start(r.Context(), req.OwnerID, session.StartOptions{
		GoalSeconds:       req.GoalSeconds,
		HardcoreMode:      req.HardcoreMode,
		KeyholderApproval: req.KeyholderApproval,
		Notes:             req.Notes,
	})
	if err != nil {
		s.domainError(w, err, "failed to start session")
		return
	}
	s.jsonResponse(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.domainError(w, err, "failed to get session")
		return
	}
	s.jsonResponse(w, http.StatusOK, sess)
}

func (s *Server) handleSessionTime(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.domainError(w, err, "failed to get session")
		return
	}

	now := time.Now()
	resp := map[string]interface{}{
		"session_id":        sess.ID,
		"open":              sess.IsOpen(),
		"paused":            sess.Paused,
		"elapsed_seconds":   sess.ElapsedSeconds(now),
		"pause_seconds":     sess.TotalPauseSeconds(now),
		"effective_seconds": sess.EffectiveSeconds(now),
	}
	if sess.GoalSeconds > 0 {
		resp["goal"] = sess.GoalProgressAt(sess.GoalSeconds, now)
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

type pauseRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handlePauseSession(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	sess, err := s.sessionService.Pause(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		s.domainError(w, err, "failed to pause session")
		return
	}
	s.jsonResponse(w, http.StatusOK, sess)
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionService.Resume(r.Context(), r.PathValue("id"))
	if err != nil {
		s.domainError(w, err, "failed to resume session")
		return
	}
	s.jsonResponse(w, http.StatusOK, sess)
}

type endRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var req endRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "completed"
	}

	sess, err := s.sessionService.End(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		s.domainError(w, err, "failed to end session")
		return
	}
	s.jsonResponse(w, http.StatusOK, sess)
}

type emergencyUnlockRequest struct {
	OwnerID string `json:"owner_id"`
	Reason  string `json:"reason"`
	Notes   string `json:"notes"`
}

func (s *Server) handleEmergencyUnlock(w http.ResponseWriter, r *http.Request) {
	var req emergencyUnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.OwnerID == "" {
		s.jsonError(w, http.StatusBadRequest, "owner_id is required", nil)
		return
	}
	if req.Reason == "" {
		s.jsonError(w, http.StatusBadRequest, "reason is required", nil)
		return
	}

	result, err := s.emergencyService.PerformUnlock(r.Context(), r.PathValue("id"), req.OwnerID, req.Reason, req.Notes)
	if err != nil {
		s.domainError(w, err, "failed to perform emergency unlock")
		return
	}

	// A cooldown denial is a normal outcome, distinguished by status.
	status := http.StatusOK
	if !result.Success {
		status = http.StatusTooManyRequests
	}
	s.jsonResponse(w, status, result)
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.FindOpenByOwner(r.Context(), r.PathValue("owner"))
	if err != nil {
		s.domainError(w, err, "failed to find open session")
		return
	}
	if sess == nil {
		s.jsonError(w, http.StatusNotFound, "no open session", nil)
		return
	}
	s.jsonResponse(w, http.StatusOK, sess)
}

func (s *Server) handlePauseEligibility(w http.ResponseWriter, r *http.Request) {
	decision, err := s.sessionService.CanPause(r.Context(), r.PathValue("owner"))
	if err != nil {
		s.domainError(w, err, "failed to check pause eligibility")
		return
	}

	resp := map[string]interface{}{
		"allowed": decision.Allowed,
	}
	if decision.LastPauseAt != nil {
		resp["last_pause_at"] = decision.LastPauseAt
	}
	if decision.NextAvailable != nil {
		resp["next_available"] = decision.NextAvailable
		resp["remaining_seconds"] = int64(decision.Remaining.Seconds())
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	filter := domain.EventFilter{
		OwnerID: r.PathValue("owner"),
		Limit:   50,
	}
	if t := r.URL.Query().Get("type"); t != "" {
		filter.Type = domain.EventType(t)
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if limit, err := strconv.Atoi(l); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}

	events, err := s.events.QueryRecent(r.Context(), filter)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to query events", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

type createGoalRequest struct {
	OwnerID       string `json:"owner_id"`
	Name          string `json:"name"`
	TargetSeconds int64  `json:"target_seconds"`
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.OwnerID == "" || req.Name == "" {
		s.jsonError(w, http.StatusBadRequest, "owner_id and name are required", nil)
		return
	}
	if req.TargetSeconds <= 0 {
		s.jsonError(w, http.StatusBadRequest, "target_seconds must be positive", nil)
		return
	}

	g := domain.NewGoal(req.OwnerID, req.Name, req.TargetSeconds)
	if err := s.goals.Create(r.Context(), g); err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to create goal", err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, g)
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	g, err := s.goals.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.domainError(w, err, "failed to get goal")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"goal":      g,
		"percent":   s.tracker.Progress(g),
		"completed": s.tracker.Completed(g),
	})
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.goals.FindIncompleteByOwner(r.Context(), r.PathValue("owner"))
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to list goals", err)
		return
	}

	result := make([]map[string]interface{}, 0, len(goals))
	for _, g := range goals {
		result = append(result, map[string]interface{}{
			"goal":    g,
			"percent": s.tracker.Progress(g),
		})
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"goals": result,
	})
}

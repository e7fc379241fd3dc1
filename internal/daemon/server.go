// Package daemon is the HTTP surface of the lifecycle engine. Handlers
// stay thin: decode, delegate to the session and goal services, map
// domain errors to status codes.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tetherapp/tether/internal/config"
	"github.com/tetherapp/tether/internal/domain"
	"github.com/tetherapp/tether/internal/goal"
	"github.com/tetherapp/tether/internal/session"
)

// Version reported by the status endpoint.
const Version = "0.1.0"

// GoalCatalog is the goal persistence the HTTP surface needs: the
// tracker's store interface plus creation.
type GoalCatalog interface {
	goal.GoalStore
	Create(ctx context.Context, g *domain.Goal) error
}

// Stores bundles the persistence backends the server runs against.
// cmd/tetherd fills it from SQLite or Postgres depending on config.
type Stores struct {
	Sessions session.SessionStore
	Events   session.EventLog
	Settings session.SettingsProvider
	Goals    GoalCatalog
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config  *config.LocalConfig
	Stores  Stores
	Backend string // "sqlite" or "postgres", for status reporting

	// Publisher, when set, feeds lifecycle events to the outbound queue.
	Publisher session.EventPublisher
}

// Server represents the tether daemon HTTP server
type Server struct {
	cfg     *config.LocalConfig
	server  *http.Server
	router  *http.ServeMux
	backend string
	feed    bool

	sessionService   *session.Service
	emergencyService *session.EmergencyService
	tracker          *goal.Tracker
	sessions         session.SessionStore
	goals            GoalCatalog
	events           session.EventLog
}

// NewServer creates a new daemon server
func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	if cfg.Stores.Sessions == nil || cfg.Stores.Events == nil || cfg.Stores.Settings == nil || cfg.Stores.Goals == nil {
		return nil, fmt.Errorf("incomplete store wiring")
	}

	s := &Server{
		cfg:      cfg.Config,
		router:   http.NewServeMux(),
		backend:  cfg.Backend,
		feed:     cfg.Publisher != nil,
		sessions: cfg.Stores.Sessions,
		goals:    cfg.Stores.Goals,
		events:   cfg.Stores.Events,
	}

	guard := session.NewGuard()
	cooldown := session.NewPauseCooldownPolicy(cfg.Stores.Sessions, cfg.Stores.Events, nil)
	if hours := cfg.Config.Lifecycle.PauseCooldownHours; hours > 0 {
		cooldown.Window = time.Duration(hours) * time.Hour
	}

	s.sessionService = session.NewService(cfg.Stores.Sessions, cfg.Stores.Events, guard, cooldown)
	s.tracker = goal.NewTracker(cfg.Stores.Goals, cfg.Stores.Events)
	s.sessionService.SetGoalTracker(s.tracker)
	if cfg.Publisher != nil {
		s.sessionService.SetPublisher(cfg.Publisher)
	}

	s.emergencyService = session.NewEmergencyService(cfg.Stores.Sessions, cfg.Stores.Events, cfg.Stores.Settings, guard)

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Config.Daemon.Bind, cfg.Config.Daemon.Port)
	handler := recoveryMiddleware(loggingMiddleware(correlationIDMiddleware(s.router)))
	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)
	s.router.HandleFunc("GET /v1/config", s.handleGetConfig)

	// Session lifecycle
	s.router.HandleFunc("POST /v1/sessions", s.handleStartSession)
	s.router.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	s.router.HandleFunc("GET /v1/sessions/{id}/time", s.handleSessionTime)
	s.router.HandleFunc("POST /v1/sessions/{id}/pause", s.handlePauseSession)
	s.router.HandleFunc("POST /v1/sessions/{id}/resume", s.handleResumeSession)
	s.router.HandleFunc("POST /v1/sessions/{id}/end", s.handleEndSession)
	s.router.HandleFunc("POST /v1/sessions/{id}/emergency-unlock", s.handleEmergencyUnlock)

	// Owner views
	s.router.HandleFunc("GET /v1/owners/{owner}/session", s.handleOpenSession)
	s.router.HandleFunc("GET /v1/owners/{owner}/pause-eligibility", s.handlePauseEligibility)
	s.router.HandleFunc("GET /v1/owners/{owner}/events", s.handleListEvents)
	s.router.HandleFunc("GET /v1/owners/{owner}/goals", s.handleListGoals)

	// Goals
	s.router.HandleFunc("POST /v1/goals", s.handleCreateGoal)
	s.router.HandleFunc("GET /v1/goals/{id}", s.handleGetGoal)
}

// Handler exposes the middleware-wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting tether daemon",
		"addr", s.server.Addr,
		"backend", s.backend,
		"feed", s.feed,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon...")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":  "running",
		"version": Version,
		"backend": s.backend,
		"feed":    s.feed,
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"daemon":    s.cfg.Daemon,
		"lifecycle": s.cfg.Lifecycle,
		"feed": map[string]interface{}{
			"enabled": s.cfg.Feed.Enabled,
		},
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}

// domainError maps domain sentinels to HTTP status codes. A cooldown
// denial is handled separately because it carries retry metadata.
func (s *Server) domainError(w http.ResponseWriter, err error, message string) {
	var cdErr *domain.CooldownError
	switch {
	case errors.As(err, &cdErr):
		s.jsonResponse(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":             message,
			"status":            http.StatusTooManyRequests,
			"details":           cdErr.Error(),
			"last_at":           cdErr.LastAt,
			"next_available":    cdErr.NextAvailable,
			"remaining_seconds": int64(cdErr.Remaining.Seconds()),
		})
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrGoalNotFound):
		s.jsonError(w, http.StatusNotFound, message, err)
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrAlreadyInState), errors.Is(err, domain.ErrInvalidState):
		s.jsonError(w, http.StatusConflict, message, err)
	case errors.Is(err, domain.ErrPermission):
		s.jsonError(w, http.StatusForbidden, message, err)
	default:
		s.jsonError(w, http.StatusInternalServerError, message, err)
	}
}

package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tetherapp/tether/internal/domain"
)

// Service owns the session state machine: start, pause, resume, end.
// It consults the cooldown policy and the concurrency guard, delegates
// time arithmetic to the entity's calculator methods, and writes an
// audit event for every transition.
type Service struct {
	sessions SessionStore
	events   EventLog
	guard    *Guard
	cooldown *PauseCooldownPolicy

	tracker   GoalTracker    // optional: advances duration goals on end
	publisher EventPublisher // optional: outbound sync feed

	now func() time.Time
}

// NewService creates a lifecycle service.
func NewService(sessions SessionStore, events EventLog, guard *Guard, cooldown *PauseCooldownPolicy) *Service {
	return &Service{
		sessions: sessions,
		events:   events,
		guard:    guard,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// SetGoalTracker sets the tracker notified with each finished session.
func (s *Service) SetGoalTracker(t GoalTracker) {
	s.tracker = t
}

// SetPublisher sets the outbound event publisher.
func (s *Service) SetPublisher(p EventPublisher) {
	s.publisher = p
}

// SetClock overrides the service clock. Tests use this to control time.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.cooldown.now = now
}

// StartOptions holds optional attributes for a new session.
type StartOptions struct {
	GoalSeconds       int64
	HardcoreMode      bool
	KeyholderApproval bool
	Notes             string
}

// Start creates a new active session for the owner. At most one open
// session may exist per owner, so a duplicate start is a conflict.
func (s *Service) Start(ctx context.Context, ownerID string, opts StartOptions) (*domain.Session, error) {
	if s.guard.InProgress(ownerID) {
		return nil, fmt.Errorf("start session: %w", domain.ErrConflict)
	}
	s.guard.Start(ownerID, OpStart, "")
	defer s.guard.Complete(ownerID, OpStart)

	open, err := s.sessions.FindOpenByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("find open session: %w", err)
	}
	if open != nil {
		return nil, fmt.Errorf("open session %s already exists: %w", open.ID, domain.ErrConflict)
	}

	now := s.now()
	sess := domain.NewSession(ownerID, now, domain.SessionOptions{
		GoalSeconds:       opts.GoalSeconds,
		HardcoreMode:      opts.HardcoreMode,
		KeyholderApproval: opts.KeyholderApproval,
		Notes:             opts.Notes,
	})

	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.audit(ctx, domain.NewEvent(ownerID, sess.ID, domain.EventSessionStart, now, domain.StartDetails{
		GoalSeconds:       sess.GoalSeconds,
		HardcoreMode:      sess.HardcoreMode,
		KeyholderApproval: sess.KeyholderApproval,
	}))

	slog.Info("session started", "session_id", sess.ID, "owner_id", ownerID, "goal_seconds", sess.GoalSeconds)
	return sess, nil
}

// Pause suspends an active session. The pause cooldown gates repeated
// pauses; a denial carries the next-available time for the caller to
// surface.
func (s *Service) Pause(ctx context.Context, sessionID, reason string) (*domain.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// The guard is keyed by owner, so the read has to come first; it is
	// consulted before any state validation.
	if s.guard.InProgress(sess.OwnerID) {
		return nil, fmt.Errorf("pause session: %w", domain.ErrConflict)
	}
	s.guard.Start(sess.OwnerID, OpPause, sess.ID)
	defer s.guard.Complete(sess.OwnerID, OpPause)

	if !sess.IsOpen() {
		return nil, fmt.Errorf("pause ended session: %w", domain.ErrInvalidState)
	}
	if sess.Paused {
		return nil, fmt.Errorf("pause: %w", domain.ErrAlreadyInState)
	}

	decision, err := s.cooldown.CanPauseSession(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("pause cooldown check: %w", err)
	}
	if !decision.Allowed {
		cdErr := &domain.CooldownError{Remaining: decision.Remaining}
		if decision.LastPauseAt != nil {
			cdErr.LastAt = *decision.LastPauseAt
		}
		if decision.NextAvailable != nil {
			cdErr.NextAvailable = *decision.NextAvailable
		}
		return nil, cdErr
	}

	now := s.now()
	sess.BeginPause(now)
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	s.audit(ctx, domain.NewEvent(sess.OwnerID, sess.ID, domain.EventSessionPause, now, domain.PauseDetails{
		Reason: reason,
	}))

	slog.Info("session paused", "session_id", sess.ID, "owner_id", sess.OwnerID, "reason", reason)
	return sess, nil
}

// Resume ends the in-progress pause span, folding it into the session's
// accumulated pause time. Resuming a session that is not paused fails
// without mutating anything.
func (s *Service) Resume(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if s.guard.InProgress(sess.OwnerID) {
		return nil, fmt.Errorf("resume session: %w", domain.ErrConflict)
	}
	s.guard.Start(sess.OwnerID, OpResume, sess.ID)
	defer s.guard.Complete(sess.OwnerID, OpResume)

	if !sess.IsOpen() {
		return nil, fmt.Errorf("resume ended session: %w", domain.ErrInvalidState)
	}
	if !sess.Paused {
		return nil, fmt.Errorf("resume unpaused session: %w", domain.ErrInvalidState)
	}

	now := s.now()
	pauseSeconds := sess.EndPause(now)
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	s.audit(ctx, domain.NewEvent(sess.OwnerID, sess.ID, domain.EventSessionResume, now, domain.ResumeDetails{
		PauseSeconds: pauseSeconds,
	}))

	slog.Info("session resumed", "session_id", sess.ID, "owner_id", sess.OwnerID, "pause_seconds", pauseSeconds)
	return sess, nil
}

// End terminates the session and stores the final effective duration.
// A trailing pause is folded in before closing. The goal tracker is then
// invoked with the finished session; tracker failures are logged, never
// surfaced, since the session is already closed.
func (s *Service) End(ctx context.Context, sessionID, reason string) (*domain.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if s.guard.InProgress(sess.OwnerID) {
		return nil, fmt.Errorf("end session: %w", domain.ErrConflict)
	}
	s.guard.Start(sess.OwnerID, OpEnd, sess.ID)
	defer s.guard.Complete(sess.OwnerID, OpEnd)

	if !sess.IsOpen() {
		return nil, fmt.Errorf("end session: %w", domain.ErrInvalidState)
	}

	now := s.now()
	sess.Close(now, reason)
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	s.audit(ctx, domain.NewEvent(sess.OwnerID, sess.ID, domain.EventSessionEnd, now, domain.EndDetails{
		Reason:           reason,
		DurationSeconds:  sess.ElapsedSeconds(now),
		EffectiveSeconds: sess.FinalEffectiveSeconds,
		PauseSeconds:     sess.AccumulatedPauseSeconds,
	}))

	if s.tracker != nil {
		if err := s.tracker.TrackSessionCompletion(ctx, sess); err != nil {
			slog.Warn("failed to track session completion", "session_id", sess.ID, "error", err)
		}
	}

	slog.Info("session ended",
		"session_id", sess.ID,
		"owner_id", sess.OwnerID,
		"reason", reason,
		"effective_seconds", sess.FinalEffectiveSeconds,
	)
	return sess, nil
}

// Get retrieves a session by ID.
func (s *Service) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// EffectiveSeconds returns the session's pause-excluded duration as of
// now (or as of its end, once terminal).
func (s *Service) EffectiveSeconds(ctx context.Context, sessionID string) (int64, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return sess.EffectiveSeconds(s.now()), nil
}

// CanPause exposes the cooldown decision for the owner's open session,
// so callers can render availability without attempting the pause.
func (s *Service) CanPause(ctx context.Context, ownerID string) (PauseDecision, error) {
	return s.cooldown.CanPause(ctx, ownerID)
}

// audit appends a lifecycle event and forwards it to the outbound
// publisher. Both are secondary to the committed mutation: failures are
// logged and suppressed.
func (s *Service) audit(ctx context.Context, e *domain.Event) {
	if err := s.events.Append(ctx, e); err != nil {
		slog.Warn("failed to append audit event", "type", e.Type, "session_id", e.SessionID, "error", err)
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, e); err != nil {
			slog.Warn("failed to publish event", "type", e.Type, "session_id", e.SessionID, "error", err)
		}
	}
}

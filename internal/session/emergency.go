package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tetherapp/tether/internal/domain"
)

// DefaultEmergencyCooldown applies when the owner has not configured a
// window of their own.
const DefaultEmergencyCooldown = 24 * time.Hour

// emergencyLookback bounds the audit scan for prior emergency unlocks.
const emergencyLookback = 7 * 24 * time.Hour

// UnlockResult is the structured outcome of an emergency unlock
// attempt. Cooldown denial is a normal, UI-facing outcome, not an
// error.
type UnlockResult struct {
	Success       bool       `json:"success"`
	Message       string     `json:"message"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

// EmergencyService is the safety-valve termination path. It bypasses the
// normal end restrictions, enforces its own longer cooldown, and writes
// a full audit trail. Its cooldown check fails open: an emergency unlock
// must never be silently blocked by an unrelated storage fault.
type EmergencyService struct {
	sessions SessionStore
	events   EventLog
	settings SettingsProvider
	guard    *Guard

	Mode FailureMode

	now func() time.Time
}

// NewEmergencyService creates the emergency coordinator.
func NewEmergencyService(sessions SessionStore, events EventLog, settings SettingsProvider, guard *Guard) *EmergencyService {
	return &EmergencyService{
		sessions: sessions,
		events:   events,
		settings: settings,
		guard:    guard,
		Mode:     FailOpen,
		now:      time.Now,
	}
}

// SetClock overrides the service clock for tests.
func (s *EmergencyService) SetClock(now func() time.Time) {
	s.now = now
}

// PerformUnlock ends the session immediately, outside the normal
// lifecycle restrictions. Structural problems (missing session, wrong
// owner, already ended) return errors; a cooldown denial returns a
// failure result instead.
func (s *EmergencyService) PerformUnlock(ctx context.Context, sessionID, ownerID, reason, notes string) (*UnlockResult, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.OwnerID != ownerID {
		return nil, fmt.Errorf("emergency unlock: %w", domain.ErrPermission)
	}
	if !sess.IsOpen() {
		return nil, fmt.Errorf("emergency unlock ended session: %w", domain.ErrInvalidState)
	}

	if until, denied := s.cooldownActive(ctx, ownerID); denied {
		return &UnlockResult{
			Success:       false,
			Message:       "emergency unlock is on cooldown",
			CooldownUntil: until,
		}, nil
	}

	s.guard.Start(ownerID, OpEmergency, sess.ID)
	defer s.guard.Complete(ownerID, OpEmergency)

	now := s.now()
	sess.Close(now, domain.EndReasonEmergency)
	sess.EmergencyUnlock = true
	sess.EmergencyReason = reason
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	// The session is ended; everything past this point is bookkeeping
	// and must not undo that outcome.
	if err := s.events.Append(ctx, domain.NewEvent(ownerID, sess.ID, domain.EventEmergencyUnlock, now, domain.EmergencyUnlockDetails{
		Reason:            reason,
		Notes:             notes,
		DurationSeconds:   sess.ElapsedSeconds(now),
		EffectiveSeconds:  sess.FinalEffectiveSeconds,
		PauseSeconds:      sess.AccumulatedPauseSeconds,
		HardcoreMode:      sess.HardcoreMode,
		KeyholderApproval: sess.KeyholderApproval,
	})); err != nil {
		slog.Error("failed to write emergency unlock audit event", "session_id", sess.ID, "error", err)
	}

	if err := s.settings.ClearActiveRestrictions(ctx, ownerID); err != nil {
		slog.Error("failed to clear active restrictions", "owner_id", ownerID, "error", err)
	}

	slog.Info("emergency unlock performed",
		"session_id", sess.ID,
		"owner_id", ownerID,
		"reason", reason,
		"hardcore_mode", sess.HardcoreMode,
	)
	return &UnlockResult{Success: true, Message: "session ended"}, nil
}

// cooldownActive scans the owner's recent emergency unlocks. Lookup
// failures allow, per the service's fail-open posture.
func (s *EmergencyService) cooldownActive(ctx context.Context, ownerID string) (*time.Time, bool) {
	window, err := s.settings.EmergencyCooldown(ctx, ownerID)
	if err != nil {
		if s.Mode == FailClosed {
			slog.Warn("emergency cooldown settings lookup failed, denying", "owner_id", ownerID, "error", err)
			return nil, true
		}
		slog.Warn("emergency cooldown settings lookup failed, using default", "owner_id", ownerID, "error", err)
		window = DefaultEmergencyCooldown
	}
	if window <= 0 {
		return nil, false
	}

	now := s.now()
	events, err := s.events.QueryRecent(ctx, domain.EventFilter{
		OwnerID: ownerID,
		Type:    domain.EventEmergencyUnlock,
		Since:   now.Add(-emergencyLookback),
		Limit:   1,
	})
	if err != nil {
		if s.Mode == FailClosed {
			slog.Warn("emergency cooldown lookup failed, denying", "owner_id", ownerID, "error", err)
			return nil, true
		}
		slog.Warn("emergency cooldown lookup failed, allowing", "owner_id", ownerID, "error", err)
		return nil, false
	}
	if len(events) == 0 {
		return nil, false
	}

	last := events[0].Timestamp
	if now.Sub(last) >= window {
		return nil, false
	}
	until := last.Add(window)
	return &until, true
}

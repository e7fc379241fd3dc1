package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session represents a single timed restriction interval for one owner,
// running from StartTime until a terminal EndTime.
type Session struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// Paused and PauseStartTime are set together: either both present
	// or both absent.
	Paused                  bool       `json:"is_paused"`
	PauseStartTime          *time.Time `json:"pause_start_time,omitempty"`
	AccumulatedPauseSeconds int64      `json:"accumulated_pause_seconds"`

	// GoalSeconds of 0 means the session has no duration goal.
	GoalSeconds       int64  `json:"goal_seconds,omitempty"`
	HardcoreMode      bool   `json:"is_hardcore_mode"`
	KeyholderApproval bool   `json:"keyholder_approval_required"`
	Notes             string `json:"notes,omitempty"`

	EndReason             string `json:"end_reason,omitempty"`
	EmergencyUnlock       bool   `json:"is_emergency_unlock,omitempty"`
	EmergencyReason       string `json:"emergency_reason,omitempty"`
	FinalEffectiveSeconds int64  `json:"final_effective_seconds,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EndReasonEmergency marks a session terminated through the emergency
// unlock path rather than a normal end.
const EndReasonEmergency = "emergency_unlock"

// SessionOptions holds optional attributes supplied at session creation.
type SessionOptions struct {
	GoalSeconds       int64
	HardcoreMode      bool
	KeyholderApproval bool
	Notes             string
}

// NewSession creates an active session starting at the given instant.
func NewSession(ownerID string, startedAt time.Time, opts SessionOptions) *Session {
	return &Session{
		ID:                uuid.New().String(),
		OwnerID:           ownerID,
		StartTime:         startedAt,
		GoalSeconds:       opts.GoalSeconds,
		HardcoreMode:      opts.HardcoreMode,
		KeyholderApproval: opts.KeyholderApproval,
		Notes:             opts.Notes,
		CreatedAt:         startedAt,
		UpdatedAt:         startedAt,
	}
}

// IsOpen reports whether the session has not yet been ended.
func (s *Session) IsOpen() bool {
	return s.EndTime == nil
}

// BeginPause marks the session paused as of now.
// The caller is responsible for state validation.
func (s *Session) BeginPause(now time.Time) {
	t := now
	s.Paused = true
	s.PauseStartTime = &t
	s.UpdatedAt = now
}

// EndPause closes the in-progress pause span, folds it into the
// accumulated total, and returns the span length in whole seconds.
func (s *Session) EndPause(now time.Time) int64 {
	if !s.Paused || s.PauseStartTime == nil {
		return 0
	}
	span := floorSeconds(now.Sub(*s.PauseStartTime))
	s.AccumulatedPauseSeconds += span
	s.Paused = false
	s.PauseStartTime = nil
	s.UpdatedAt = now
	return span
}

// Close terminates the session. A trailing in-progress pause is folded
// into AccumulatedPauseSeconds first, so the final effective duration is
// consistent with a session ended from the active state at the same
// instant.
func (s *Session) Close(now time.Time, reason string) {
	s.EndPause(now)
	t := now
	s.EndTime = &t
	s.EndReason = reason
	s.Paused = false
	s.PauseStartTime = nil
	s.FinalEffectiveSeconds = s.EffectiveSeconds(now)
	s.UpdatedAt = now
}

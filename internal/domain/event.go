package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a kind of audit event. The audit log is
// append-only and doubles as the lookback source for cooldown decisions.
type EventType string

const (
	EventSessionStart    EventType = "session_start"
	EventSessionPause    EventType = "session_pause"
	EventSessionResume   EventType = "session_resume"
	EventSessionEnd      EventType = "session_end"
	EventEmergencyUnlock EventType = "emergency_unlock"
	EventGoalCompleted   EventType = "goal_completed"
)

// Event is one audit record.
type Event struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	SessionID string    `json:"session_id,omitempty"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Details   Details   `json:"details,omitempty"`
}

// NewEvent creates an audit event stamped at the given instant.
func NewEvent(ownerID, sessionID string, t EventType, at time.Time, details Details) *Event {
	return &Event{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		SessionID: sessionID,
		Type:      t,
		Timestamp: at,
		Details:   details,
	}
}

// EventFilter selects audit events. Zero fields are ignored. Results are
// sorted newest-first.
type EventFilter struct {
	OwnerID   string
	SessionID string
	Type      EventType
	Since     time.Time
	Limit     int
}

// -----------------------------------------------------------------------------
// Event Details
// Each event type carries a concrete payload shape rather than an open
// map, keyed by the event's Type tag.
// -----------------------------------------------------------------------------

// Details is the per-type payload of an audit event.
type Details interface {
	isDetails()
}

// StartDetails accompanies a session_start event.
type StartDetails struct {
	GoalSeconds       int64 `json:"goal_seconds,omitempty"`
	HardcoreMode      bool  `json:"hardcore_mode"`
	KeyholderApproval bool  `json:"keyholder_approval_required"`
}

// PauseDetails accompanies a session_pause event.
type PauseDetails struct {
	Reason string `json:"reason,omitempty"`
}

// ResumeDetails accompanies a session_resume event and records the
// length of the pause span that just ended.
type ResumeDetails struct {
	PauseSeconds int64 `json:"pause_seconds"`
}

// EndDetails accompanies a session_end event.
type EndDetails struct {
	Reason           string `json:"reason,omitempty"`
	DurationSeconds  int64  `json:"duration_seconds"`
	EffectiveSeconds int64  `json:"effective_seconds"`
	PauseSeconds     int64  `json:"pause_seconds"`
}

// EmergencyUnlockDetails is the full audit trail of a safety-valve
// termination.
type EmergencyUnlockDetails struct {
	Reason            string `json:"reason"`
	Notes             string `json:"notes,omitempty"`
	DurationSeconds   int64  `json:"duration_seconds"`
	EffectiveSeconds  int64  `json:"effective_seconds"`
	PauseSeconds      int64  `json:"pause_seconds"`
	HardcoreMode      bool   `json:"hardcore_mode"`
	KeyholderApproval bool   `json:"keyholder_approval_required"`
}

// GoalCompletedDetails accompanies a goal_completed achievement event.
type GoalCompletedDetails struct {
	GoalID         string `json:"goal_id"`
	GoalName       string `json:"goal_name"`
	TargetSeconds  int64  `json:"target_seconds"`
	CurrentSeconds int64  `json:"current_seconds"`
}

func (StartDetails) isDetails()           {}
func (PauseDetails) isDetails()           {}
func (ResumeDetails) isDetails()          {}
func (EndDetails) isDetails()             {}
func (EmergencyUnlockDetails) isDetails() {}
func (GoalCompletedDetails) isDetails()   {}

// MarshalDetails encodes a details payload for storage. A nil payload
// encodes as null.
func MarshalDetails(d Details) ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	return json.Marshal(d)
}

// UnmarshalDetails decodes a stored payload into the concrete shape for
// the given event type.
func UnmarshalDetails(t EventType, data []byte) (Details, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var d Details
	switch t {
	case EventSessionStart:
		d = &StartDetails{}
	case EventSessionPause:
		d = &PauseDetails{}
	case EventSessionResume:
		d = &ResumeDetails{}
	case EventSessionEnd:
		d = &EndDetails{}
	case EventEmergencyUnlock:
		d = &EmergencyUnlockDetails{}
	case EventGoalCompleted:
		d = &GoalCompletedDetails{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", t)
	}

	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("unmarshal %s details: %w", t, err)
	}
	return d, nil
}

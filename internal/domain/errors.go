package domain

import (
	"errors"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Domain Errors
// Structural and state errors raised by the lifecycle services. Cooldown
// denials carry their remaining-time metadata; everything else is a
// sentinel so callers can branch with errors.Is.
// -----------------------------------------------------------------------------

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrGoalNotFound    = errors.New("goal not found")

	// ErrInvalidState is returned when an operation is illegal for the
	// session's current state, e.g. resuming a session that is not paused.
	ErrInvalidState = errors.New("operation invalid for session state")

	// ErrAlreadyInState is returned for no-op transitions, e.g. pausing
	// an already paused session.
	ErrAlreadyInState = errors.New("session already in requested state")

	// ErrConflict is returned when an open session already exists for the
	// owner, or when another lifecycle operation is in progress.
	ErrConflict = errors.New("conflicting operation in progress")

	// ErrPermission is returned on an ownership mismatch.
	ErrPermission = errors.New("session does not belong to owner")
)

// CooldownError is a policy denial. It is business-normal rather than
// exceptional and carries the data a UI needs to show when the gated
// action becomes available again.
type CooldownError struct {
	LastAt        time.Time
	NextAvailable time.Time
	Remaining     time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active: next available at %s (%s remaining)",
		e.NextAvailable.Format(time.RFC3339), e.Remaining.Round(time.Second))
}

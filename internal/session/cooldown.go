package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tetherapp/tether/internal/domain"
)

// FailureMode names a policy's posture when its lookups fail. Pausing is
// a privilege, so its policy fails closed; the emergency unlock is a
// safety valve, so its check fails open. Making this an explicit
// attribute keeps the asymmetry documented and testable instead of
// buried in error handling.
type FailureMode string

const (
	FailOpen   FailureMode = "open"
	FailClosed FailureMode = "closed"
)

// DefaultPauseCooldown is the fixed window between pauses.
const DefaultPauseCooldown = 4 * time.Hour

// PauseDecision is the outcome of a cooldown check.
type PauseDecision struct {
	Allowed       bool
	LastPauseAt   *time.Time
	NextAvailable *time.Time
	Remaining     time.Duration
}

// PauseCooldownPolicy decides whether a new pause is allowed based on
// the most recent pause event for the owner's open session.
type PauseCooldownPolicy struct {
	sessions SessionStore
	events   EventLog

	Window time.Duration
	Mode   FailureMode

	now func() time.Time
}

// NewPauseCooldownPolicy creates the pause policy with its fixed 4-hour
// window and fail-closed posture.
func NewPauseCooldownPolicy(sessions SessionStore, events EventLog, now func() time.Time) *PauseCooldownPolicy {
	if now == nil {
		now = time.Now
	}
	return &PauseCooldownPolicy{
		sessions: sessions,
		events:   events,
		Window:   DefaultPauseCooldown,
		Mode:     FailClosed,
		now:      now,
	}
}

// CanPause reports whether the owner may pause now. The first pause of a
// session is always free; afterwards a pause is allowed iff the window
// has fully elapsed since the last one (elapsed >= window). Any lookup
// error denies, per the policy's fail-closed posture.
func (p *PauseCooldownPolicy) CanPause(ctx context.Context, ownerID string) (PauseDecision, error) {
	open, err := p.sessions.FindOpenByOwner(ctx, ownerID)
	if err != nil {
		return p.failed(fmt.Errorf("find open session: %w", err))
	}
	if open == nil {
		// Nothing to pause.
		return PauseDecision{}, nil
	}
	return p.CanPauseSession(ctx, open)
}

// CanPauseSession applies the cooldown check to an already-loaded open
// session, saving the extra lookup when the caller holds one.
func (p *PauseCooldownPolicy) CanPauseSession(ctx context.Context, sess *domain.Session) (PauseDecision, error) {
	events, err := p.events.QueryRecent(ctx, domain.EventFilter{
		SessionID: sess.ID,
		Type:      domain.EventSessionPause,
		Limit:     1,
	})
	if err != nil {
		return p.failed(fmt.Errorf("query pause events: %w", err))
	}
	if len(events) == 0 {
		return PauseDecision{Allowed: true}, nil
	}

	last := events[0].Timestamp
	elapsed := p.now().Sub(last)
	if elapsed >= p.Window {
		return PauseDecision{Allowed: true, LastPauseAt: &last}, nil
	}

	next := last.Add(p.Window)
	return PauseDecision{
		Allowed:       false,
		LastPauseAt:   &last,
		NextAvailable: &next,
		Remaining:     p.Window - elapsed,
	}, nil
}

// failed applies the policy's failure posture to a lookup error.
func (p *PauseCooldownPolicy) failed(err error) (PauseDecision, error) {
	if p.Mode == FailOpen {
		slog.Warn("pause cooldown lookup failed, allowing", "error", err)
		return PauseDecision{Allowed: true}, nil
	}
	slog.Warn("pause cooldown lookup failed, denying", "error", err)
	return PauseDecision{}, err
}

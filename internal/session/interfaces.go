package session

import (
	"context"
	"time"

	"github.com/tetherapp/tether/internal/domain"
)

// SessionStore defines the persistence interface for sessions.
// Both the SQLite store and the Postgres repository implement this.
type SessionStore interface {
	Create(ctx context.Context, sess *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)

	// FindOpenByOwner returns the owner's non-terminal session, or
	// (nil, nil) when none exists. At most one open session may exist
	// per owner.
	FindOpenByOwner(ctx context.Context, ownerID string) (*domain.Session, error)

	Update(ctx context.Context, sess *domain.Session) error
}

// EventLog is the append-only audit trail. It is both the audit sink
// for lifecycle transitions and the lookback source for cooldown
// decisions.
type EventLog interface {
	Append(ctx context.Context, e *domain.Event) error

	// QueryRecent returns matching events sorted newest-first.
	QueryRecent(ctx context.Context, filter domain.EventFilter) ([]*domain.Event, error)
}

// SettingsProvider exposes the owner-configurable knobs the lifecycle
// engine consults. Settings management itself lives elsewhere.
type SettingsProvider interface {
	// EmergencyCooldown returns the owner's configured emergency-unlock
	// cooldown window.
	EmergencyCooldown(ctx context.Context, ownerID string) (time.Duration, error)

	HardcoreMode(ctx context.Context, ownerID string) (bool, error)

	// ClearActiveRestrictions removes any restriction flags still active
	// for the owner after an emergency unlock.
	ClearActiveRestrictions(ctx context.Context, ownerID string) error
}

// GoalTracker is notified with each finished session so in-progress
// duration goals can advance.
type GoalTracker interface {
	TrackSessionCompletion(ctx context.Context, sess *domain.Session) error
}

// EventPublisher feeds lifecycle events to the outbound sync/backup
// queue. Publishing is best-effort: failures are logged, never surfaced.
type EventPublisher interface {
	Publish(ctx context.Context, e *domain.Event) error
}

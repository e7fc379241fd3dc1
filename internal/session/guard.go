package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tetherapp/tether/internal/domain"
)

// OpType identifies a lifecycle operation tracked by the guard.
type OpType string

const (
	OpStart     OpType = "start"
	OpPause     OpType = "pause"
	OpResume    OpType = "resume"
	OpEnd       OpType = "end"
	OpEmergency OpType = "emergency_unlock"
)

// DefaultPendingTTL is how long a tracked operation is considered live.
// Entries older than this belong to crashed or abandoned operations and
// are cleared on the next check.
const DefaultPendingTTL = 30 * time.Second

type pendingOp struct {
	Type      OpType
	SessionID string
	StartedAt time.Time
}

// Guard provides advisory per-owner mutual exclusion over lifecycle
// operations. It is in-memory and only meaningful within a single
// process: callers must check InProgress before acting and treat a
// positive result as a conflict. It is not a lock.
type Guard struct {
	mu  sync.Mutex
	ops map[string]pendingOp
	ttl time.Duration
	now func() time.Time
}

// NewGuard creates a guard with the default stale-entry expiry.
func NewGuard() *Guard {
	return NewGuardWithClock(time.Now)
}

// NewGuardWithClock creates a guard using the given clock, so tests can
// control time.
func NewGuardWithClock(now func() time.Time) *Guard {
	return &Guard{
		ops: make(map[string]pendingOp),
		ttl: DefaultPendingTTL,
		now: now,
	}
}

// InProgress reports whether a live operation is tracked for the owner.
// With no types given, any operation counts; otherwise only the listed
// types do. A stale entry is cleared and does not count.
func (g *Guard) InProgress(ownerID string, types ...OpType) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	op, ok := g.ops[ownerID]
	if !ok {
		return false
	}
	if g.now().Sub(op.StartedAt) > g.ttl {
		delete(g.ops, ownerID)
		return false
	}
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if op.Type == t {
			return true
		}
	}
	return false
}

// Start records that an operation began. It does not block or queue: if
// an operation is already tracked it logs a warning and overwrites the
// entry.
func (g *Guard) Start(ownerID string, t OpType, sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.ops[ownerID]; ok && g.now().Sub(prev.StartedAt) <= g.ttl {
		slog.Warn("overwriting in-progress operation",
			"owner_id", ownerID,
			"previous", prev.Type,
			"new", t,
		)
	}
	g.ops[ownerID] = pendingOp{Type: t, SessionID: sessionID, StartedAt: g.now()}
}

// Complete removes the tracked operation if it matches the given type.
func (g *Guard) Complete(ownerID string, t OpType) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if op, ok := g.ops[ownerID]; ok && op.Type == t {
		delete(g.ops, ownerID)
	}
}

// SweepExpired removes all stale entries and returns how many were
// cleared.
func (g *Guard) SweepExpired() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	now := g.now()
	for owner, op := range g.ops {
		if now.Sub(op.StartedAt) > g.ttl {
			delete(g.ops, owner)
			removed++
		}
	}
	return removed
}

// Conflict classifies a mismatch between an in-hand session snapshot and
// freshly read state.
type Conflict string

const (
	ConflictNone          Conflict = ""
	ConflictStaleData     Conflict = "stale_data"
	ConflictSessionEnded  Conflict = "session_ended"
	ConflictPauseMismatch Conflict = "pause_state_mismatch"
)

// DetectConflict compares the session just read from the store against
// the caller's (possibly stale) expected snapshot. Optimistic callers
// use the result to decide whether to refresh and retry rather than
// blindly overwrite.
func DetectConflict(current, expected *domain.Session) Conflict {
	if current == nil || expected == nil {
		return ConflictNone
	}
	if expected.EndTime == nil && current.EndTime != nil {
		return ConflictSessionEnded
	}
	if expected.Paused != current.Paused {
		return ConflictPauseMismatch
	}
	if current.UpdatedAt.After(expected.UpdatedAt) {
		return ConflictStaleData
	}
	return ConflictNone
}

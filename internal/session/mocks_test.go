package session

import (
	"context"
	"sort"
	"time"

	"github.com/tetherapp/tether/internal/domain"
)

// memSessionStore is an in-memory SessionStore for tests.
type memSessionStore struct {
	sessions map[string]*domain.Session

	getErr  error
	findErr error
	saveErr error
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]*domain.Session)}
}

func (m *memSessionStore) Create(ctx context.Context, sess *domain.Session) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *sess
	m.sessions[sess.ID] = &cp
	return nil
}

func (m *memSessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	sess, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (m *memSessionStore) FindOpenByOwner(ctx context.Context, ownerID string) (*domain.Session, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, sess := range m.sessions {
		if sess.OwnerID == ownerID && sess.EndTime == nil {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memSessionStore) Update(ctx context.Context, sess *domain.Session) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *sess
	m.sessions[sess.ID] = &cp
	return nil
}

// memEventLog is an in-memory EventLog for tests.
type memEventLog struct {
	events []*domain.Event

	appendErr error
	queryErr  error
}

func (m *memEventLog) Append(ctx context.Context, e *domain.Event) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memEventLog) QueryRecent(ctx context.Context, filter domain.EventFilter) ([]*domain.Event, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}

	var out []*domain.Event
	for _, e := range m.events {
		if filter.OwnerID != "" && e.OwnerID != filter.OwnerID {
			continue
		}
		if filter.SessionID != "" && e.SessionID != filter.SessionID {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memEventLog) countByType(t domain.EventType) int {
	n := 0
	for _, e := range m.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// memSettings is an in-memory SettingsProvider for tests.
type memSettings struct {
	cooldown time.Duration
	hardcore bool

	cooldownErr error
	clearErr    error
	cleared     []string
}

func (m *memSettings) EmergencyCooldown(ctx context.Context, ownerID string) (time.Duration, error) {
	if m.cooldownErr != nil {
		return 0, m.cooldownErr
	}
	if m.cooldown == 0 {
		return DefaultEmergencyCooldown, nil
	}
	return m.cooldown, nil
}

func (m *memSettings) HardcoreMode(ctx context.Context, ownerID string) (bool, error) {
	return m.hardcore, nil
}

func (m *memSettings) ClearActiveRestrictions(ctx context.Context, ownerID string) error {
	if m.clearErr != nil {
		return m.clearErr
	}
	m.cleared = append(m.cleared, ownerID)
	return nil
}

// memTracker records sessions passed to TrackSessionCompletion.
type memTracker struct {
	tracked []*domain.Session
	err     error
}

func (m *memTracker) TrackSessionCompletion(ctx context.Context, sess *domain.Session) error {
	if m.err != nil {
		return m.err
	}
	m.tracked = append(m.tracked, sess)
	return nil
}

// fakeClock is a controllable clock for tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *fakeClock) Set(t time.Time)         { c.t = t }

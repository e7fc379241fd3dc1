package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tetherapp/tether/internal/domain"
)

func newCooldownFixture(t *testing.T) (*PauseCooldownPolicy, *memSessionStore, *memEventLog, *fakeClock) {
	t.Helper()
	store := newMemSessionStore()
	log := &memEventLog{}
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewPauseCooldownPolicy(store, log, clock.Now), store, log, clock
}

func TestPauseCooldown_NoOpenSessionDenies(t *testing.T) {
	policy, _, _, _ := newCooldownFixture(t)

	decision, err := policy.CanPause(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("CanPause() error = %v", err)
	}
	if decision.Allowed {
		t.Error("no open session: pause should be denied")
	}
}

func TestPauseCooldown_FirstPauseIsFree(t *testing.T) {
	policy, store, _, clock := newCooldownFixture(t)

	sess := domain.NewSession("owner-1", clock.Now(), domain.SessionOptions{})
	store.Create(context.Background(), sess)

	decision, err := policy.CanPause(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("CanPause() error = %v", err)
	}
	if !decision.Allowed {
		t.Error("first pause should always be allowed")
	}
}

func TestPauseCooldown_Boundary(t *testing.T) {
	policy, store, log, clock := newCooldownFixture(t)

	start := clock.Now()
	sess := domain.NewSession("owner-1", start, domain.SessionOptions{})
	store.Create(context.Background(), sess)
	log.Append(context.Background(), domain.NewEvent("owner-1", sess.ID, domain.EventSessionPause, start, domain.PauseDetails{}))

	// One second before the window closes: denied, with metadata.
	clock.Set(start.Add(DefaultPauseCooldown - time.Second))
	decision, err := policy.CanPause(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("CanPause() error = %v", err)
	}
	if decision.Allowed {
		t.Error("pause inside the window should be denied")
	}
	if decision.NextAvailable == nil || !decision.NextAvailable.Equal(start.Add(DefaultPauseCooldown)) {
		t.Errorf("NextAvailable = %v; want %v", decision.NextAvailable, start.Add(DefaultPauseCooldown))
	}
	if decision.Remaining != time.Second {
		t.Errorf("Remaining = %v; want 1s", decision.Remaining)
	}

	// Exactly at the window boundary: allowed (elapsed >= window).
	clock.Set(start.Add(DefaultPauseCooldown))
	decision, err = policy.CanPause(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("CanPause() error = %v", err)
	}
	if !decision.Allowed {
		t.Error("pause at exactly the window boundary should be allowed")
	}
}

func TestPauseCooldown_FailsClosed(t *testing.T) {
	policy, store, log, clock := newCooldownFixture(t)

	sess := domain.NewSession("owner-1", clock.Now(), domain.SessionOptions{})
	store.Create(context.Background(), sess)
	log.queryErr = errors.New("storage offline")

	decision, err := policy.CanPause(context.Background(), "owner-1")
	if err == nil {
		t.Fatal("expected lookup error to surface")
	}
	if decision.Allowed {
		t.Error("lookup failure must deny: pausing fails closed")
	}
	if policy.Mode != FailClosed {
		t.Errorf("Mode = %q; want %q", policy.Mode, FailClosed)
	}
}

func TestPauseCooldown_SessionLookupFailureDenies(t *testing.T) {
	policy, store, _, _ := newCooldownFixture(t)
	store.findErr = errors.New("storage offline")

	decision, err := policy.CanPause(context.Background(), "owner-1")
	if err == nil {
		t.Fatal("expected lookup error to surface")
	}
	if decision.Allowed {
		t.Error("session lookup failure must deny")
	}
}

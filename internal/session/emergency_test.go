package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tetherapp/tether/internal/domain"
)

type emergencyFixture struct {
	svc      *EmergencyService
	store    *memSessionStore
	log      *memEventLog
	settings *memSettings
	clock    *fakeClock
}

func newEmergencyFixture(t *testing.T) *emergencyFixture {
	t.Helper()

	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := newMemSessionStore()
	log := &memEventLog{}
	settings := &memSettings{}
	guard := NewGuardWithClock(clock.Now)

	svc := NewEmergencyService(store, log, settings, guard)
	svc.SetClock(clock.Now)

	return &emergencyFixture{svc: svc, store: store, log: log, settings: settings, clock: clock}
}

func (f *emergencyFixture) openSession(t *testing.T, ownerID string) *domain.Session {
	t.Helper()
	sess := domain.NewSession(ownerID, f.clock.Now(), domain.SessionOptions{HardcoreMode: true})
	if err := f.store.Create(context.Background(), sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}

func TestEmergency_Unlock(t *testing.T) {
	f := newEmergencyFixture(t)
	ctx := context.Background()

	sess := f.openSession(t, "owner-1")
	f.clock.Advance(time.Hour)

	result, err := f.svc.PerformUnlock(ctx, sess.ID, "owner-1", "medical emergency", "ER visit")
	if err != nil {
		t.Fatalf("PerformUnlock() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("PerformUnlock() result = %+v; want success", result)
	}

	stored, _ := f.store.Get(ctx, sess.ID)
	if stored.IsOpen() {
		t.Fatal("session should be ended after emergency unlock")
	}
	if !stored.EmergencyUnlock || stored.EmergencyReason != "medical emergency" {
		t.Error("session should record the emergency unlock and its reason")
	}
	if stored.EndReason != domain.EndReasonEmergency {
		t.Errorf("EndReason = %q; want %q", stored.EndReason, domain.EndReasonEmergency)
	}

	events, _ := f.log.QueryRecent(ctx, domain.EventFilter{Type: domain.EventEmergencyUnlock, Limit: 1})
	if len(events) != 1 {
		t.Fatal("emergency unlock should write an audit event")
	}
	details, ok := events[0].Details.(domain.EmergencyUnlockDetails)
	if !ok {
		t.Fatalf("details type = %T; want EmergencyUnlockDetails", events[0].Details)
	}
	if details.DurationSeconds != 3600 || !details.HardcoreMode || details.Notes != "ER visit" {
		t.Errorf("details = %+v; want 3600s, hardcore, ER visit note", details)
	}

	if len(f.settings.cleared) != 1 || f.settings.cleared[0] != "owner-1" {
		t.Error("emergency unlock should clear active restrictions for the owner")
	}
}

func TestEmergency_CooldownDenied(t *testing.T) {
	f := newEmergencyFixture(t)
	ctx := context.Background()

	t0 := f.clock.Now()
	sess := f.openSession(t, "owner-1")

	result, err := f.svc.PerformUnlock(ctx, sess.ID, "owner-1", "first", "")
	if err != nil || !result.Success {
		t.Fatalf("first unlock = %+v, %v; want success", result, err)
	}

	// One hour later, a new session and a second attempt: denied, with
	// cooldown_until = first unlock + 24h.
	f.clock.Advance(time.Hour)
	sess2 := f.openSession(t, "owner-1")

	result, err = f.svc.PerformUnlock(ctx, sess2.ID, "owner-1", "second", "")
	if err != nil {
		t.Fatalf("second unlock error = %v", err)
	}
	if result.Success {
		t.Fatal("second unlock inside the cooldown should be denied")
	}
	if result.CooldownUntil == nil || !result.CooldownUntil.Equal(t0.Add(24*time.Hour)) {
		t.Errorf("CooldownUntil = %v; want %v", result.CooldownUntil, t0.Add(24*time.Hour))
	}

	// The denied attempt must not end the session.
	stored, _ := f.store.Get(ctx, sess2.ID)
	if !stored.IsOpen() {
		t.Error("denied unlock must not mutate the session")
	}
}

func TestEmergency_CooldownBoundary(t *testing.T) {
	f := newEmergencyFixture(t)
	ctx := context.Background()
	f.settings.cooldown = 2 * time.Hour

	sess := f.openSession(t, "owner-1")
	if result, _ := f.svc.PerformUnlock(ctx, sess.ID, "owner-1", "first", ""); !result.Success {
		t.Fatal("first unlock should succeed")
	}

	// Exactly at the window boundary: allowed, same rule as pausing.
	f.clock.Advance(2 * time.Hour)
	sess2 := f.openSession(t, "owner-1")
	result, err := f.svc.PerformUnlock(ctx, sess2.ID, "owner-1", "second", "")
	if err != nil {
		t.Fatalf("PerformUnlock() error = %v", err)
	}
	if !result.Success {
		t.Error("unlock at exactly the window boundary should be allowed")
	}
}

func TestEmergency_OwnerMismatch(t *testing.T) {
	f := newEmergencyFixture(t)

	sess := f.openSession(t, "owner-1")
	_, err := f.svc.PerformUnlock(context.Background(), sess.ID, "owner-2", "reason", "")
	if !errors.Is(err, domain.ErrPermission) {
		t.Errorf("PerformUnlock() error = %v; want ErrPermission", err)
	}
}

func TestEmergency_AlreadyEnded(t *testing.T) {
	f := newEmergencyFixture(t)
	ctx := context.Background()

	sess := f.openSession(t, "owner-1")
	sess.Close(f.clock.Now(), "completed")
	f.store.Update(ctx, sess)

	_, err := f.svc.PerformUnlock(ctx, sess.ID, "owner-1", "reason", "")
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("PerformUnlock() error = %v; want ErrInvalidState", err)
	}
}

func TestEmergency_MissingSession(t *testing.T) {
	f := newEmergencyFixture(t)

	_, err := f.svc.PerformUnlock(context.Background(), "no-such-id", "owner-1", "reason", "")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("PerformUnlock() error = %v; want ErrSessionNotFound", err)
	}
}

func TestEmergency_CooldownLookupFailsOpen(t *testing.T) {
	f := newEmergencyFixture(t)
	ctx := context.Background()

	f.log.queryErr = errors.New("storage offline")
	sess := f.openSession(t, "owner-1")

	result, err := f.svc.PerformUnlock(ctx, sess.ID, "owner-1", "reason", "")
	if err != nil {
		t.Fatalf("PerformUnlock() error = %v", err)
	}
	if !result.Success {
		t.Error("cooldown lookup failure must allow: emergency unlock fails open")
	}
	if f.svc.Mode != FailOpen {
		t.Errorf("Mode = %q; want %q", f.svc.Mode, FailOpen)
	}
}

func TestEmergency_SettingsLookupFailsOpen(t *testing.T) {
	f := newEmergencyFixture(t)
	ctx := context.Background()

	f.settings.cooldownErr = errors.New("settings offline")
	sess := f.openSession(t, "owner-1")

	result, err := f.svc.PerformUnlock(ctx, sess.ID, "owner-1", "reason", "")
	if err != nil {
		t.Fatalf("PerformUnlock() error = %v", err)
	}
	if !result.Success {
		t.Error("settings failure must fall back to the default window, not block")
	}
}

func TestEmergency_SecondaryFailuresSwallowed(t *testing.T) {
	f := newEmergencyFixture(t)
	ctx := context.Background()

	f.log.appendErr = errors.New("audit log offline")
	f.settings.clearErr = errors.New("settings offline")
	sess := f.openSession(t, "owner-1")

	result, err := f.svc.PerformUnlock(ctx, sess.ID, "owner-1", "reason", "")
	if err != nil {
		t.Fatalf("PerformUnlock() error = %v", err)
	}
	if !result.Success {
		t.Fatal("audit and restriction-clear failures must not undo the unlock")
	}

	stored, _ := f.store.Get(ctx, sess.ID)
	if stored.IsOpen() {
		t.Error("session must remain ended despite secondary failures")
	}
}

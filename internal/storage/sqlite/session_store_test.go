package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tetherapp/tether/internal/domain"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestSessionStore_CreateAndGet(t *testing.T) {
	db := openTestDB(t)
	store := NewSessionStore(db)
	ctx := context.Background()

	sess := domain.NewSession("owner-1", testStart, domain.SessionOptions{
		GoalSeconds:       3600,
		HardcoreMode:      true,
		KeyholderApproval: true,
		Notes:             "weekend session",
	})
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.OwnerID != "owner-1" || got.GoalSeconds != 3600 || !got.HardcoreMode {
		t.Errorf("Get() = %+v; fields do not round-trip", got)
	}
	if got.StartTime.Unix() != testStart.Unix() {
		t.Errorf("StartTime = %v; want %v", got.StartTime, testStart)
	}
	if got.EndTime != nil || got.PauseStartTime != nil {
		t.Error("open session should have no end or pause-start time")
	}
}

func TestSessionStore_GetMissing(t *testing.T) {
	db := openTestDB(t)
	store := NewSessionStore(db)

	_, err := store.Get(context.Background(), "no-such-id")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Get() error = %v; want ErrSessionNotFound", err)
	}
}

func TestSessionStore_FindOpenByOwner(t *testing.T) {
	db := openTestDB(t)
	store := NewSessionStore(db)
	ctx := context.Background()

	// No session at all.
	got, err := store.FindOpenByOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("FindOpenByOwner() error = %v", err)
	}
	if got != nil {
		t.Errorf("FindOpenByOwner() = %v; want nil", got)
	}

	// An ended session does not count as open.
	ended := domain.NewSession("owner-1", testStart, domain.SessionOptions{})
	ended.Close(testStart.Add(time.Hour), "completed")
	store.Create(ctx, ended)

	got, err = store.FindOpenByOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("FindOpenByOwner() error = %v", err)
	}
	if got != nil {
		t.Error("ended session should not be returned as open")
	}

	open := domain.NewSession("owner-1", testStart.Add(2*time.Hour), domain.SessionOptions{})
	store.Create(ctx, open)

	got, err = store.FindOpenByOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("FindOpenByOwner() error = %v", err)
	}
	if got == nil || got.ID != open.ID {
		t.Errorf("FindOpenByOwner() = %v; want session %s", got, open.ID)
	}
}

func TestSessionStore_Update(t *testing.T) {
	db := openTestDB(t)
	store := NewSessionStore(db)
	ctx := context.Background()

	sess := domain.NewSession("owner-1", testStart, domain.SessionOptions{})
	store.Create(ctx, sess)

	sess.BeginPause(testStart.Add(10 * time.Minute))
	if err := store.Update(ctx, sess); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ := store.Get(ctx, sess.ID)
	if !got.Paused || got.PauseStartTime == nil {
		t.Error("pause state should round-trip")
	}

	sess.Close(testStart.Add(time.Hour), "completed")
	if err := store.Update(ctx, sess); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ = store.Get(ctx, sess.ID)
	if got.EndTime == nil || got.Paused {
		t.Error("terminal session should have an end time and no pause flag")
	}
	if got.AccumulatedPauseSeconds != 3000 {
		t.Errorf("AccumulatedPauseSeconds = %d; want 3000", got.AccumulatedPauseSeconds)
	}
	if got.FinalEffectiveSeconds != 600 {
		t.Errorf("FinalEffectiveSeconds = %d; want 600", got.FinalEffectiveSeconds)
	}
}

func TestSessionStore_UpdateMissing(t *testing.T) {
	db := openTestDB(t)
	store := NewSessionStore(db)

	sess := domain.NewSession("owner-1", testStart, domain.SessionOptions{})
	err := store.Update(context.Background(), sess)
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Update() error = %v; want ErrSessionNotFound", err)
	}
}

func TestSessionStore_ListByOwner(t *testing.T) {
	db := openTestDB(t)
	store := NewSessionStore(db)
	ctx := context.Background()

	first := domain.NewSession("owner-1", testStart, domain.SessionOptions{})
	first.Close(testStart.Add(time.Hour), "completed")
	store.Create(ctx, first)

	second := domain.NewSession("owner-1", testStart.Add(2*time.Hour), domain.SessionOptions{})
	store.Create(ctx, second)

	other := domain.NewSession("owner-2", testStart, domain.SessionOptions{})
	store.Create(ctx, other)

	sessions, err := store.ListByOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("ListByOwner() = %d sessions; want 2", len(sessions))
	}
	if sessions[0].ID != second.ID {
		t.Error("sessions should be sorted newest first")
	}
}

func TestSessionStore_OpenSessionUniquePerOwner(t *testing.T) {
	db := openTestDB(t)
	store := NewSessionStore(db)
	ctx := context.Background()

	store.Create(ctx, domain.NewSession("owner-1", testStart, domain.SessionOptions{}))

	// The partial unique index rejects a second open session, and the
	// violation surfaces as a conflict, not a raw driver error.
	err := store.Create(ctx, domain.NewSession("owner-1", testStart.Add(time.Minute), domain.SessionOptions{}))
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("second open session error = %v; want ErrConflict", err)
	}

	// An ended session does not block a new open one.
	ended := domain.NewSession("owner-2", testStart, domain.SessionOptions{})
	ended.Close(testStart.Add(time.Hour), "completed")
	store.Create(ctx, ended)

	if err := store.Create(ctx, domain.NewSession("owner-2", testStart.Add(2*time.Hour), domain.SessionOptions{})); err != nil {
		t.Errorf("open session after ended one error = %v", err)
	}
}

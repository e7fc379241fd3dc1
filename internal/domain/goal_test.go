package domain

import (
	"testing"
	"time"
)

func TestNewGoal(t *testing.T) {
	g := NewGoal("owner-1", "one week locked", 7*24*3600)

	if g.ID == "" {
		t.Error("NewGoal() should generate an ID")
	}
	if g.Completed {
		t.Error("new goal should not be completed")
	}
	if g.CurrentSeconds != 0 {
		t.Errorf("CurrentSeconds = %d; want 0", g.CurrentSeconds)
	}
}

func TestGoal_Progress(t *testing.T) {
	tests := []struct {
		name    string
		target  int64
		current int64
		want    float64
	}{
		{"zero target", 0, 100, 0},
		{"negative target", -10, 100, 0},
		{"negative current clamps low", 100, -50, 0},
		{"halfway", 200, 100, 50},
		{"complete", 100, 100, 100},
		{"over target clamps high", 100, 250, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Goal{TargetSeconds: tt.target, CurrentSeconds: tt.current}
			if got := g.Progress(); got != tt.want {
				t.Errorf("Progress() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestGoal_IsCompleted(t *testing.T) {
	g := &Goal{TargetSeconds: 100, CurrentSeconds: 50}
	if g.IsCompleted() {
		t.Error("goal below target should not be completed")
	}

	g.CurrentSeconds = 100
	if !g.IsCompleted() {
		t.Error("goal at target should be completed")
	}

	// An explicitly marked goal stays completed regardless of values.
	now := time.Now()
	g = &Goal{TargetSeconds: 100, CurrentSeconds: 10, Completed: true, CompletedAt: &now}
	if !g.IsCompleted() {
		t.Error("explicitly marked goal should be completed")
	}
}

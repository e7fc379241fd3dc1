package domain

import (
	"time"

	"github.com/google/uuid"
)

// Goal is a target duration an owner is accumulating effective session
// time toward.
type Goal struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"owner_id"`
	Name           string     `json:"name"`
	TargetSeconds  int64      `json:"target_seconds"`
	CurrentSeconds int64      `json:"current_seconds"`
	Completed      bool       `json:"is_completed"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewGoal creates an incomplete goal with the given target.
func NewGoal(ownerID, name string, targetSeconds int64) *Goal {
	now := time.Now()
	return &Goal{
		ID:            uuid.New().String(),
		OwnerID:       ownerID,
		Name:          name,
		TargetSeconds: targetSeconds,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Progress returns completion as a percentage clamped to [0, 100].
// A non-positive target always reads as 0.
func (g *Goal) Progress() float64 {
	if g.TargetSeconds <= 0 {
		return 0
	}
	percent := float64(g.CurrentSeconds) / float64(g.TargetSeconds) * 100
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// IsCompleted reports whether the goal has been marked complete or its
// current value has reached the target.
func (g *Goal) IsCompleted() bool {
	return g.Completed || g.CurrentSeconds >= g.TargetSeconds
}

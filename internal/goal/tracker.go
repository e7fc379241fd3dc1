package goal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tetherapp/tether/internal/domain"
	"github.com/tetherapp/tether/internal/session"
)

// GoalStore defines the persistence interface for goals. Progress is
// mutated exclusively through the tracker.
type GoalStore interface {
	Get(ctx context.Context, id string) (*domain.Goal, error)
	FindIncompleteByOwner(ctx context.Context, ownerID string) ([]*domain.Goal, error)
	UpdateProgress(ctx context.Context, goalID string, currentSeconds int64) error
	MarkCompleted(ctx context.Context, goalID string, completedAt time.Time) error
}

// Tracker subscribes to session completion, advances the owner's
// in-progress duration goals, and emits an achievement event when a
// goal's target is reached.
type Tracker struct {
	goals  GoalStore
	events session.EventLog

	now func() time.Time
}

// NewTracker creates a goal progress tracker.
func NewTracker(goals GoalStore, events session.EventLog) *Tracker {
	return &Tracker{goals: goals, events: events, now: time.Now}
}

// SetClock overrides the tracker clock for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// TrackSessionCompletion adds the finished session's effective duration
// to each of the owner's incomplete goals. A goal already marked
// complete is skipped entirely, so repeated completion calls never
// re-award it.
func (t *Tracker) TrackSessionCompletion(ctx context.Context, sess *domain.Session) error {
	if sess.EndTime == nil {
		return fmt.Errorf("track completion of open session: %w", domain.ErrInvalidState)
	}

	goals, err := t.goals.FindIncompleteByOwner(ctx, sess.OwnerID)
	if err != nil {
		return fmt.Errorf("find incomplete goals: %w", err)
	}
	if len(goals) == 0 {
		return nil
	}

	contributed := sess.EffectiveSeconds(*sess.EndTime)
	if contributed <= 0 {
		return nil
	}

	for _, g := range goals {
		if g.Completed {
			continue
		}

		updated := g.CurrentSeconds + contributed
		if err := t.goals.UpdateProgress(ctx, g.ID, updated); err != nil {
			return fmt.Errorf("update goal %s: %w", g.ID, err)
		}
		g.CurrentSeconds = updated

		if updated < g.TargetSeconds {
			continue
		}

		completedAt := t.now()
		if err := t.goals.MarkCompleted(ctx, g.ID, completedAt); err != nil {
			return fmt.Errorf("mark goal %s completed: %w", g.ID, err)
		}
		g.Completed = true
		g.CompletedAt = &completedAt

		if err := t.events.Append(ctx, domain.NewEvent(g.OwnerID, sess.ID, domain.EventGoalCompleted, completedAt, domain.GoalCompletedDetails{
			GoalID:         g.ID,
			GoalName:       g.Name,
			TargetSeconds:  g.TargetSeconds,
			CurrentSeconds: updated,
		})); err != nil {
			slog.Warn("failed to append goal completion event", "goal_id", g.ID, "error", err)
		}

		slog.Info("goal completed", "goal_id", g.ID, "owner_id", g.OwnerID, "name", g.Name)
	}

	return nil
}

// Progress returns the goal's completion percentage, clamped to
// [0, 100].
func (t *Tracker) Progress(g *domain.Goal) float64 {
	return g.Progress()
}

// Completed reports whether the goal is complete, either by its marker
// or by its current value reaching the target.
func (t *Tracker) Completed(g *domain.Goal) bool {
	return g.IsCompleted()
}

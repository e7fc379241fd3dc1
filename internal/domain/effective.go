package domain

import "time"

// Effective-time arithmetic over a session's timestamps. All functions
// are pure: they take the observation instant explicitly and never read
// an ambient clock. Malformed timestamps clamp to 0 rather than going
// negative.

// floorSeconds converts a duration to whole seconds, clamped at 0.
func floorSeconds(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// ElapsedSeconds returns the whole seconds between StartTime and the
// session's end, or now for an open session.
func (s *Session) ElapsedSeconds(now time.Time) int64 {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	return floorSeconds(end.Sub(s.StartTime))
}

// CurrentPauseSeconds returns the length of the in-progress pause span,
// or 0 if the session is not paused or already ended.
func (s *Session) CurrentPauseSeconds(now time.Time) int64 {
	if !s.Paused || s.EndTime != nil || s.PauseStartTime == nil {
		return 0
	}
	return floorSeconds(now.Sub(*s.PauseStartTime))
}

// TotalPauseSeconds returns accumulated pause time plus any in-progress
// pause span.
func (s *Session) TotalPauseSeconds(now time.Time) int64 {
	total := s.AccumulatedPauseSeconds + s.CurrentPauseSeconds(now)
	if total < 0 {
		return 0
	}
	return total
}

// EffectiveSeconds returns elapsed time minus all pause time, never
// negative. Effective time is always <= elapsed time.
func (s *Session) EffectiveSeconds(now time.Time) int64 {
	effective := s.ElapsedSeconds(now) - s.TotalPauseSeconds(now)
	if effective < 0 {
		return 0
	}
	return effective
}

// GoalProgress describes how far a session has advanced toward a
// duration goal.
type GoalProgress struct {
	Percent          float64 `json:"percent"`
	Completed        bool    `json:"completed"`
	RemainingSeconds int64   `json:"remaining_seconds"`
}

// GoalProgressAt computes progress toward goalSeconds as of now. A
// non-positive goal yields zero progress.
func (s *Session) GoalProgressAt(goalSeconds int64, now time.Time) GoalProgress {
	if goalSeconds <= 0 {
		return GoalProgress{}
	}
	effective := s.EffectiveSeconds(now)
	percent := float64(effective) / float64(goalSeconds) * 100
	if percent > 100 {
		percent = 100
	}
	remaining := goalSeconds - effective
	if remaining < 0 {
		remaining = 0
	}
	return GoalProgress{
		Percent:          percent,
		Completed:        effective >= goalSeconds,
		RemainingSeconds: remaining,
	}
}

package repository

import (
	"github.com/tetherapp/tether/internal/goal"
	"github.com/tetherapp/tether/internal/session"
)

var (
	_ session.SessionStore     = (*PostgresSessionRepository)(nil)
	_ session.EventLog         = (*PostgresEventRepository)(nil)
	_ session.SettingsProvider = (*PostgresSettingsRepository)(nil)
	_ goal.GoalStore           = (*PostgresGoalRepository)(nil)
)

package sqlite

import (
	"github.com/tetherapp/tether/internal/goal"
	"github.com/tetherapp/tether/internal/session"
)

// Ensure SQLite stores implement the service interfaces.
var (
	_ session.SessionStore     = (*SessionStore)(nil)
	_ session.EventLog         = (*EventStore)(nil)
	_ session.SettingsProvider = (*SettingsStore)(nil)
	_ goal.GoalStore           = (*GoalStore)(nil)
)

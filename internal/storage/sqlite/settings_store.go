package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DefaultEmergencyCooldownHours applies to owners with no stored
// settings row.
const DefaultEmergencyCooldownHours = 24

// OwnerSettings holds the per-owner knobs the lifecycle engine reads.
type OwnerSettings struct {
	OwnerID                string
	EmergencyCooldownHours int
	HardcoreMode           bool
	ActiveRestrictions     string
	UpdatedAt              time.Time
}

// SettingsStore implements the read-only settings provider plus the
// restriction-clearing hook used by the emergency unlock path.
type SettingsStore struct {
	db *DB
}

// NewSettingsStore creates a new SQLite-backed settings store.
func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns the owner's settings, or defaults when none are stored.
func (s *SettingsStore) Get(ctx context.Context, ownerID string) (*OwnerSettings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT owner_id, emergency_cooldown_hours, hardcore_mode, active_restrictions, updated_at
		FROM owner_settings WHERE owner_id = ?`, ownerID)

	var out OwnerSettings
	err := row.Scan(&out.OwnerID, &out.EmergencyCooldownHours, &out.HardcoreMode, &out.ActiveRestrictions, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &OwnerSettings{
			OwnerID:                ownerID,
			EmergencyCooldownHours: DefaultEmergencyCooldownHours,
			ActiveRestrictions:     "[]",
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan settings: %w", err)
	}
	return &out, nil
}

// Save upserts the owner's settings row.
func (s *SettingsStore) Save(ctx context.Context, settings *OwnerSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO owner_settings (owner_id, emergency_cooldown_hours, hardcore_mode, active_restrictions, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			emergency_cooldown_hours=excluded.emergency_cooldown_hours,
			hardcore_mode=excluded.hardcore_mode,
			active_restrictions=excluded.active_restrictions,
			updated_at=excluded.updated_at`,
		settings.OwnerID, settings.EmergencyCooldownHours, settings.HardcoreMode,
		settings.ActiveRestrictions, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

// EmergencyCooldown returns the owner's configured emergency-unlock
// window.
func (s *SettingsStore) EmergencyCooldown(ctx context.Context, ownerID string) (time.Duration, error) {
	settings, err := s.Get(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	return time.Duration(settings.EmergencyCooldownHours) * time.Hour, nil
}

// HardcoreMode returns the owner's hardcore-mode flag.
func (s *SettingsStore) HardcoreMode(ctx context.Context, ownerID string) (bool, error) {
	settings, err := s.Get(ctx, ownerID)
	if err != nil {
		return false, err
	}
	return settings.HardcoreMode, nil
}

// ClearActiveRestrictions drops any restriction flags still active for
// the owner. No-op when the owner has no settings row.
func (s *SettingsStore) ClearActiveRestrictions(ctx context.Context, ownerID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE owner_settings SET active_restrictions = '[]', hardcore_mode = 0, updated_at = ?
		WHERE owner_id = ?`, time.Now(), ownerID)
	if err != nil {
		return fmt.Errorf("clear restrictions: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSettingsRepository implements session.SettingsProvider using
// PostgreSQL. Owners without a settings row get the defaults.
type PostgresSettingsRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSettingsRepository creates a new PostgreSQL settings repository.
func NewPostgresSettingsRepository(pool *pgxpool.Pool) *PostgresSettingsRepository {
	return &PostgresSettingsRepository{pool: pool}
}

// EmergencyCooldown returns the owner's configured emergency unlock cooldown.
func (r *PostgresSettingsRepository) EmergencyCooldown(ctx context.Context, ownerID string) (time.Duration, error) {
	query := `SELECT emergency_cooldown_hours FROM owner_settings WHERE owner_id = $1`
	var hours int
	err := r.pool.QueryRow(ctx, query, ownerID).Scan(&hours)
	if errors.Is(err, pgx.ErrNoRows) {
		return 24 * time.Hour, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get emergency cooldown: %w", err)
	}
	return time.Duration(hours) * time.Hour, nil
}

// HardcoreMode reports whether the owner has hardcore mode enabled.
func (r *PostgresSettingsRepository) HardcoreMode(ctx context.Context, ownerID string) (bool, error) {
	query := `SELECT hardcore_mode FROM owner_settings WHERE owner_id = $1`
	var hardcore bool
	err := r.pool.QueryRow(ctx, query, ownerID).Scan(&hardcore)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get hardcore mode: %w", err)
	}
	return hardcore, nil
}

// ClearActiveRestrictions drops the owner's restrictions and hardcore flag
// after an emergency unlock. A missing settings row is a no-op.
func (r *PostgresSettingsRepository) ClearActiveRestrictions(ctx context.Context, ownerID string) error {
	query := `
		UPDATE owner_settings
		SET active_restrictions = '[]', hardcore_mode = FALSE, updated_at = NOW()
		WHERE owner_id = $1
	`
	if _, err := r.pool.Exec(ctx, query, ownerID); err != nil {
		return fmt.Errorf("clear restrictions: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tetherapp/tether/internal/domain"
)

const sessionColumns = `id, owner_id, start_time, end_time, paused, pause_start_time,
	accumulated_pause_seconds, goal_seconds, hardcore_mode, keyholder_approval,
	notes, end_reason, emergency_unlock, emergency_reason, final_effective_seconds,
	created_at, updated_at`

// PostgresSessionRepository implements session.SessionStore using PostgreSQL.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionRepository creates a new PostgreSQL session repository.
func NewPostgresSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

// Create inserts a new session.
func (r *PostgresSessionRepository) Create(ctx context.Context, sess *domain.Session) error {
	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := r.pool.Exec(ctx, query,
		sess.ID, sess.OwnerID, sess.StartTime, sess.EndTime, sess.Paused, sess.PauseStartTime,
		sess.AccumulatedPauseSeconds, sess.GoalSeconds, sess.HardcoreMode, sess.KeyholderApproval,
		sess.Notes, sess.EndReason, sess.EmergencyUnlock, sess.EmergencyReason, sess.FinalEffectiveSeconds,
		sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		// 23505 unique_violation: the partial unique index rejected a
		// second open session for the owner.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("open session already exists for owner %s: %w", sess.OwnerID, domain.ErrConflict)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID.
func (r *PostgresSessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	sess, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// FindOpenByOwner returns the owner's open session, or nil when there is none.
func (r *PostgresSessionRepository) FindOpenByOwner(ctx context.Context, ownerID string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE owner_id = $1 AND end_time IS NULL`
	sess, err := scanSession(r.pool.QueryRow(ctx, query, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open session: %w", err)
	}
	return sess, nil
}

// Update persists the full session state.
func (r *PostgresSessionRepository) Update(ctx context.Context, sess *domain.Session) error {
	query := `
		UPDATE sessions SET
			end_time = $2, paused = $3, pause_start_time = $4,
			accumulated_pause_seconds = $5, notes = $6, end_reason = $7,
			emergency_unlock = $8, emergency_reason = $9, final_effective_seconds = $10,
			updated_at = $11
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		sess.ID, sess.EndTime, sess.Paused, sess.PauseStartTime,
		sess.AccumulatedPauseSeconds, sess.Notes, sess.EndReason,
		sess.EmergencyUnlock, sess.EmergencyReason, sess.FinalEffectiveSeconds,
		sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// ListByOwner returns the owner's sessions, newest first.
func (r *PostgresSessionRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE owner_id = $1 ORDER BY start_time DESC`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	sess := &domain.Session{}
	err := row.Scan(
		&sess.ID, &sess.OwnerID, &sess.StartTime, &sess.EndTime, &sess.Paused, &sess.PauseStartTime,
		&sess.AccumulatedPauseSeconds, &sess.GoalSeconds, &sess.HardcoreMode, &sess.KeyholderApproval,
		&sess.Notes, &sess.EndReason, &sess.EmergencyUnlock, &sess.EmergencyReason, &sess.FinalEffectiveSeconds,
		&sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

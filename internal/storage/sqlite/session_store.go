package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/tetherapp/tether/internal/domain"
)

// SessionStore implements session persistence backed by SQLite.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a new SQLite-backed session store.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

const sessionColumns = `id, owner_id, start_time, end_time, is_paused, pause_start_time,
	accumulated_pause_seconds, goal_seconds, is_hardcore_mode, keyholder_approval,
	notes, end_reason, is_emergency_unlock, emergency_reason, final_effective_seconds,
	created_at, updated_at`

// Create inserts a new session.
func (s *SessionStore) Create(ctx context.Context, sess *domain.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.OwnerID, sess.StartTime, nullTime(sess.EndTime),
		sess.Paused, nullTime(sess.PauseStartTime),
		sess.AccumulatedPauseSeconds, sess.GoalSeconds, sess.HardcoreMode, sess.KeyholderApproval,
		sess.Notes, sess.EndReason, sess.EmergencyUnlock, sess.EmergencyReason, sess.FinalEffectiveSeconds,
		sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		// The partial unique index on open sessions is the race-proof arm
		// of the one-open-session-per-owner invariant.
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("open session already exists for owner %s: %w", sess.OwnerID, domain.ErrConflict)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// FindOpenByOwner returns the owner's non-terminal session, or nil when
// none exists.
func (s *SessionStore) FindOpenByOwner(ctx context.Context, ownerID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE owner_id = ? AND end_time IS NULL`, ownerID)
	sess, err := scanSession(row)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil
	}
	return sess, err
}

// Update persists the session's mutable fields.
func (s *SessionStore) Update(ctx context.Context, sess *domain.Session) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			end_time = ?, is_paused = ?, pause_start_time = ?,
			accumulated_pause_seconds = ?, goal_seconds = ?,
			is_hardcore_mode = ?, keyholder_approval = ?, notes = ?,
			end_reason = ?, is_emergency_unlock = ?, emergency_reason = ?,
			final_effective_seconds = ?, updated_at = ?
		WHERE id = ?`,
		nullTime(sess.EndTime), sess.Paused, nullTime(sess.PauseStartTime),
		sess.AccumulatedPauseSeconds, sess.GoalSeconds,
		sess.HardcoreMode, sess.KeyholderApproval, sess.Notes,
		sess.EndReason, sess.EmergencyUnlock, sess.EmergencyReason,
		sess.FinalEffectiveSeconds, sess.UpdatedAt,
		sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// ListByOwner returns the owner's sessions, newest first.
func (s *SessionStore) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE owner_id = ? ORDER BY start_time DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		sess, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSessionFields(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var endTime, pauseStart sql.NullTime

	err := row.Scan(
		&sess.ID, &sess.OwnerID, &sess.StartTime, &endTime,
		&sess.Paused, &pauseStart,
		&sess.AccumulatedPauseSeconds, &sess.GoalSeconds, &sess.HardcoreMode, &sess.KeyholderApproval,
		&sess.Notes, &sess.EndReason, &sess.EmergencyUnlock, &sess.EmergencyReason, &sess.FinalEffectiveSeconds,
		&sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if endTime.Valid {
		sess.EndTime = &endTime.Time
	}
	if pauseStart.Valid {
		sess.PauseStartTime = &pauseStart.Time
	}
	return &sess, nil
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	sess, err := scanSessionFields(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return sess, nil
}

func scanSessionRow(rows *sql.Rows) (*domain.Session, error) {
	sess, err := scanSessionFields(rows)
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return sess, nil
}

// nullTime converts a *time.Time to sql.NullTime for storage.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

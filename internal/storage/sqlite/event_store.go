package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tetherapp/tether/internal/domain"
)

// EventStore implements the append-only audit log backed by SQLite.
type EventStore struct {
	db *DB
}

// NewEventStore creates a new SQLite-backed event store.
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

// Append writes one audit event. Events are never updated or deleted.
func (s *EventStore) Append(ctx context.Context, e *domain.Event) error {
	details, err := domain.MarshalDetails(e.Details)
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, owner_id, session_id, type, timestamp, details)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.OwnerID, nullString(e.SessionID), string(e.Type), e.Timestamp, string(details),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// QueryRecent returns matching events sorted newest-first.
func (s *EventStore) QueryRecent(ctx context.Context, filter domain.EventFilter) ([]*domain.Event, error) {
	var conds []string
	var args []any

	if filter.OwnerID != "" {
		conds = append(conds, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(filter.Type))
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, filter.Since)
	}

	query := "SELECT id, owner_id, session_id, type, timestamp, details FROM events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		var e domain.Event
		var sessionID, details sql.NullString
		var eventType string

		if err := rows.Scan(&e.ID, &e.OwnerID, &sessionID, &eventType, &e.Timestamp, &details); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		e.Type = domain.EventType(eventType)
		if sessionID.Valid {
			e.SessionID = sessionID.String
		}
		if details.Valid {
			d, err := domain.UnmarshalDetails(e.Type, []byte(details.String))
			if err != nil {
				return nil, fmt.Errorf("decode event %s: %w", e.ID, err)
			}
			e.Details = d
		}

		events = append(events, &e)
	}
	return events, rows.Err()
}

// nullString converts an empty string to NULL for nullable TEXT columns.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

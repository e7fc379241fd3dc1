package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tetherapp/tether/internal/domain"
)

// PostgresEventRepository implements session.EventLog using PostgreSQL,
// with event details stored as JSONB.
type PostgresEventRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresEventRepository creates a new PostgreSQL event repository.
func NewPostgresEventRepository(pool *pgxpool.Pool) *PostgresEventRepository {
	return &PostgresEventRepository{pool: pool}
}

// Append inserts an audit event.
func (r *PostgresEventRepository) Append(ctx context.Context, e *domain.Event) error {
	details, err := domain.MarshalDetails(e.Details)
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}

	var sessionID *string
	if e.SessionID != "" {
		sessionID = &e.SessionID
	}

	query := `
		INSERT INTO events (id, owner_id, session_id, event_type, timestamp, details)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.pool.Exec(ctx, query,
		e.ID, e.OwnerID, sessionID, string(e.Type), e.Timestamp, details,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// QueryRecent returns events matching the filter, newest first.
func (r *PostgresEventRepository) QueryRecent(ctx context.Context, filter domain.EventFilter) ([]*domain.Event, error) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, cond+"$"+strconv.Itoa(len(args)))
	}
	if filter.OwnerID != "" {
		add("owner_id = ", filter.OwnerID)
	}
	if filter.SessionID != "" {
		add("session_id = ", filter.SessionID)
	}
	if filter.Type != "" {
		add("event_type = ", string(filter.Type))
	}
	if !filter.Since.IsZero() {
		add("timestamp >= ", filter.Since)
	}

	query := `SELECT id, owner_id, session_id, event_type, timestamp, details FROM events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		var (
			e         domain.Event
			sessionID *string
			eventType string
			details   []byte
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &sessionID, &eventType, &e.Timestamp, &details); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if sessionID != nil {
			e.SessionID = *sessionID
		}
		e.Type = domain.EventType(eventType)
		e.Details, err = domain.UnmarshalDetails(e.Type, details)
		if err != nil {
			return nil, fmt.Errorf("unmarshal event details: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

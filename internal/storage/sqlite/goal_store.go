package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tetherapp/tether/internal/domain"
)

// GoalStore implements goal persistence backed by SQLite.
type GoalStore struct {
	db *DB
}

// NewGoalStore creates a new SQLite-backed goal store.
func NewGoalStore(db *DB) *GoalStore {
	return &GoalStore{db: db}
}

const goalColumns = `id, owner_id, name, target_seconds, current_seconds,
	is_completed, completed_at, created_at, updated_at`

// Create inserts a new goal.
func (s *GoalStore) Create(ctx context.Context, g *domain.Goal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goals (`+goalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.OwnerID, g.Name, g.TargetSeconds, g.CurrentSeconds,
		g.Completed, nullTime(g.CompletedAt), g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	return nil
}

// Get retrieves a goal by ID.
func (s *GoalStore) Get(ctx context.Context, id string) (*domain.Goal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE id = ?`, id)

	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrGoalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan goal: %w", err)
	}
	return g, nil
}

// FindIncompleteByOwner returns the owner's goals that have not yet
// been completed.
func (s *GoalStore) FindIncompleteByOwner(ctx context.Context, ownerID string) ([]*domain.Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE owner_id = ? AND is_completed = 0 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list incomplete goals: %w", err)
	}
	defer rows.Close()

	var goals []*domain.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal row: %w", err)
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// UpdateProgress sets the goal's accumulated value.
func (s *GoalStore) UpdateProgress(ctx context.Context, goalID string, currentSeconds int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE goals SET current_seconds = ?, updated_at = ? WHERE id = ?`,
		currentSeconds, time.Now(), goalID)
	if err != nil {
		return fmt.Errorf("update goal progress: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrGoalNotFound
	}
	return nil
}

// MarkCompleted stamps the goal complete.
func (s *GoalStore) MarkCompleted(ctx context.Context, goalID string, completedAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE goals SET is_completed = 1, completed_at = ?, updated_at = ? WHERE id = ?`,
		completedAt, completedAt, goalID)
	if err != nil {
		return fmt.Errorf("mark goal completed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrGoalNotFound
	}
	return nil
}

func scanGoal(row rowScanner) (*domain.Goal, error) {
	var g domain.Goal
	var completedAt sql.NullTime

	err := row.Scan(
		&g.ID, &g.OwnerID, &g.Name, &g.TargetSeconds, &g.CurrentSeconds,
		&g.Completed, &completedAt, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		g.CompletedAt = &completedAt.Time
	}
	return &g, nil
}

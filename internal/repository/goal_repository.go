package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tetherapp/tether/internal/domain"
)

const goalColumns = `id, owner_id, name, target_seconds, current_seconds,
	is_completed, completed_at, created_at, updated_at`

// PostgresGoalRepository implements goal.GoalStore using PostgreSQL.
type PostgresGoalRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresGoalRepository creates a new PostgreSQL goal repository.
func NewPostgresGoalRepository(pool *pgxpool.Pool) *PostgresGoalRepository {
	return &PostgresGoalRepository{pool: pool}
}

// Create inserts a new goal.
func (r *PostgresGoalRepository) Create(ctx context.Context, g *domain.Goal) error {
	query := `
		INSERT INTO goals (` + goalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		g.ID, g.OwnerID, g.Name, g.TargetSeconds, g.CurrentSeconds,
		g.Completed, g.CompletedAt, g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	return nil
}

// Get retrieves a goal by ID.
func (r *PostgresGoalRepository) Get(ctx context.Context, id string) (*domain.Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals WHERE id = $1`
	g, err := scanGoal(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrGoalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

// FindIncompleteByOwner returns the owner's goals that have not completed yet.
func (r *PostgresGoalRepository) FindIncompleteByOwner(ctx context.Context, ownerID string) ([]*domain.Goal, error) {
	query := `
		SELECT ` + goalColumns + ` FROM goals
		WHERE owner_id = $1 AND is_completed = FALSE
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("find goals: %w", err)
	}
	defer rows.Close()

	var goals []*domain.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// UpdateProgress sets the accumulated seconds on a goal.
func (r *PostgresGoalRepository) UpdateProgress(ctx context.Context, id string, currentSeconds int64) error {
	query := `UPDATE goals SET current_seconds = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, currentSeconds)
	if err != nil {
		return fmt.Errorf("update goal progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGoalNotFound
	}
	return nil
}

// MarkCompleted flags a goal as completed at the given time.
func (r *PostgresGoalRepository) MarkCompleted(ctx context.Context, id string, completedAt time.Time) error {
	query := `UPDATE goals SET is_completed = TRUE, completed_at = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, completedAt)
	if err != nil {
		return fmt.Errorf("mark goal completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGoalNotFound
	}
	return nil
}

func scanGoal(row pgx.Row) (*domain.Goal, error) {
	g := &domain.Goal{}
	err := row.Scan(
		&g.ID, &g.OwnerID, &g.Name, &g.TargetSeconds, &g.CurrentSeconds,
		&g.Completed, &g.CompletedAt, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return g, nil
}

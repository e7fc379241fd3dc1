package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tetherapp/tether/internal/domain"
)

// Publisher pushes lifecycle events onto the outbound feed. It satisfies
// session.EventPublisher; the caller treats failures as best-effort.
type Publisher struct {
	conn *Connection
}

// NewPublisher creates a new lifecycle event publisher
func NewPublisher(conn *Connection) *Publisher {
	return &Publisher{conn: conn}
}

// Publish sends a lifecycle event to the feed queue.
func (p *Publisher) Publish(ctx context.Context, e *domain.Event) error {
	env, err := NewEnvelope(e)
	if err != nil {
		return err
	}

	if err := p.conn.PublishJSON(ctx, LifecycleQueueName, env); err != nil {
		return fmt.Errorf("failed to publish lifecycle event: %w", err)
	}

	slog.Info("published lifecycle event",
		"event_id", e.ID,
		"type", e.Type,
		"owner_id", e.OwnerID,
		"session_id", e.SessionID,
	)

	return nil
}

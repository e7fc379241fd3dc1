package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tetherapp/tether/internal/domain"
)

// EventHandler processes lifecycle events from the feed
type EventHandler func(ctx context.Context, e *domain.Event) error

// Consumer consumes lifecycle events from the feed queue. Companion
// processes (notifiers, sync agents) embed it to follow the feed.
type Consumer struct {
	conn       *Connection
	handler    EventHandler
	workers    int
	prefetch   int
	timeout    time.Duration
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int           // Number of concurrent workers
	Prefetch int           // Prefetch count per worker
	Timeout  time.Duration // Per-event handler timeout
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  1, // Single worker preserves feed ordering
		Prefetch: 10,
		Timeout:  30 * time.Second,
	}
}

// NewConsumer creates a new feed consumer
func NewConsumer(conn *Connection, handler EventHandler, cfg ConsumerConfig) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Consumer{
		conn:     conn,
		handler:  handler,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		timeout:  cfg.Timeout,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()

	// Set QoS (prefetch)
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		LifecycleQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (manual ack for reliability)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	slog.Info("starting lifecycle feed consumer", "workers", c.workers, "prefetch", c.prefetch)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}

	return nil
}

// worker processes messages from the queue
func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	slog.Info("worker started", "worker_id", id)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopping", "worker_id", id)
			return

		case msg, ok := <-msgs:
			if !ok {
				slog.Info("message channel closed", "worker_id", id)
				return
			}

			c.processMessage(ctx, id, msg)
		}
	}
}

// processMessage handles a single message
func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	event, err := decodeEnvelope(msg.Body)
	if err != nil {
		slog.Error("failed to decode lifecycle event",
			"worker_id", workerID,
			"error", err,
		)
		// Reject without requeue for malformed messages
		_ = msg.Reject(false)
		return
	}

	eventCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.handler(eventCtx, event); err != nil {
		slog.Error("lifecycle event handling failed",
			"worker_id", workerID,
			"event_id", event.ID,
			"type", event.Type,
			"error", err,
		)
		// The feed is fire-and-forget; a failed event is dropped, not
		// requeued, so one broken consumer cannot wedge the queue.
		_ = msg.Nack(false, false)
		return
	}

	if err := msg.Ack(false); err != nil {
		slog.Error("failed to ack message",
			"worker_id", workerID,
			"event_id", event.ID,
			"error", err,
		)
	}
}

// decodeEnvelope parses a wire message into a typed domain event.
func decodeEnvelope(body []byte) (*domain.Event, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env.Event()
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	slog.Info("consumer stopped")
}

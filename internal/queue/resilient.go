package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/tetherapp/tether/internal/domain"
	"github.com/tetherapp/tether/internal/session"
)

// ResilientPublisher wraps a publisher with resilience patterns from
// fortify. Publishing is best-effort for the caller, but a short retry
// rides out broker reconnects, and the circuit breaker keeps a dead
// broker from slowing every lifecycle transition down.
type ResilientPublisher struct {
	publisher      session.EventPublisher
	circuitBreaker circuitbreaker.CircuitBreaker[struct{}]
	retrier        retry.Retry[struct{}]
	logger         *slog.Logger
}

// ResilientConfig holds configuration for the resilient publisher wrapper
type ResilientConfig struct {
	// EnableCircuitBreaker enables circuit breaker pattern
	EnableCircuitBreaker bool

	// EnableRetry enables retry with backoff
	EnableRetry bool

	// MaxAttempts for retry (default: 3)
	MaxAttempts int

	// InitialDelay for retry backoff (default: 100ms)
	InitialDelay time.Duration

	// Logger for resilience events
	Logger *slog.Logger
}

// DefaultResilientConfig returns sensible defaults for feed publishing
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		EnableCircuitBreaker: true,
		EnableRetry:          true,
		MaxAttempts:          3,
		InitialDelay:         100 * time.Millisecond,
	}
}

// NewResilientPublisher wraps a publisher with resilience patterns using fortify
func NewResilientPublisher(publisher session.EventPublisher, cfg ResilientConfig) *ResilientPublisher {
	rp := &ResilientPublisher{
		publisher: publisher,
		logger:    cfg.Logger,
	}

	if cfg.EnableCircuitBreaker {
		rp.circuitBreaker = circuitbreaker.New[struct{}](circuitbreaker.Config{
			MaxRequests: 2,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				if rp.logger != nil {
					rp.logger.Warn("lifecycle feed circuit breaker state change",
						"from", from.String(),
						"to", to.String())
				}
			},
		})
	}

	if cfg.EnableRetry {
		attempts := cfg.MaxAttempts
		if attempts <= 0 {
			attempts = 3
		}
		delay := cfg.InitialDelay
		if delay <= 0 {
			delay = 100 * time.Millisecond
		}
		rp.retrier = retry.New[struct{}](retry.Config{
			MaxAttempts:   attempts,
			InitialDelay:  delay,
			MaxDelay:      5 * time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
		})
	}

	return rp
}

// Publish sends the event through the configured resilience layers.
func (rp *ResilientPublisher) Publish(ctx context.Context, e *domain.Event) error {
	operation := func(ctx context.Context) (struct{}, error) {
		return struct{}{}, rp.publisher.Publish(ctx, e)
	}

	var err error
	switch {
	case rp.circuitBreaker != nil && rp.retrier != nil:
		_, err = rp.circuitBreaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
			return rp.retrier.Do(ctx, operation)
		})
	case rp.circuitBreaker != nil:
		_, err = rp.circuitBreaker.Execute(ctx, operation)
	case rp.retrier != nil:
		_, err = rp.retrier.Do(ctx, operation)
	default:
		_, err = operation(ctx)
	}
	return err
}

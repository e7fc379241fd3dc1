package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tetherapp/tether/internal/domain"
	"github.com/tetherapp/tether/internal/queue"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	event := domain.NewEvent("owner-1", "sess-1", domain.EventSessionEnd, at, domain.EndDetails{
		Reason:           "completed",
		DurationSeconds:  7200,
		EffectiveSeconds: 6900,
		PauseSeconds:     300,
	})

	env, err := queue.NewEnvelope(event)
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}

	// Over the wire and back.
	body, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	var decoded queue.Envelope
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}

	got, err := decoded.Event()
	if err != nil {
		t.Fatalf("Event() error = %v", err)
	}
	if got.ID != event.ID || got.OwnerID != "owner-1" || got.Type != domain.EventSessionEnd {
		t.Errorf("Event() = %+v; identity fields do not round-trip", got)
	}
	if !got.Timestamp.Equal(at) {
		t.Errorf("Timestamp = %v; want %v", got.Timestamp, at)
	}

	details, ok := got.Details.(*domain.EndDetails)
	if !ok {
		t.Fatalf("details type = %T; want *EndDetails", got.Details)
	}
	if details.EffectiveSeconds != 6900 || details.PauseSeconds != 300 {
		t.Errorf("details = %+v; do not round-trip", details)
	}
}

func TestEnvelope_NoDetails(t *testing.T) {
	event := domain.NewEvent("owner-1", "sess-1", domain.EventSessionResume, time.Now(), nil)

	env, err := queue.NewEnvelope(event)
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}

	got, err := env.Event()
	if err != nil {
		t.Fatalf("Event() error = %v", err)
	}
	if got.Details != nil {
		t.Errorf("Details = %v; want nil", got.Details)
	}
}

func TestDefaultConsumerConfig(t *testing.T) {
	cfg := queue.DefaultConsumerConfig()

	if cfg.Workers != 1 {
		t.Errorf("Default Workers = %d; want 1", cfg.Workers)
	}
	if cfg.Prefetch != 10 {
		t.Errorf("Default Prefetch = %d; want 10", cfg.Prefetch)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Default Timeout = %v; want 30s", cfg.Timeout)
	}
}

type flakyPublisher struct {
	failures int
	calls    int
}

func (p *flakyPublisher) Publish(ctx context.Context, e *domain.Event) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("broker unavailable")
	}
	return nil
}

func TestResilientPublisher_RetriesTransientFailure(t *testing.T) {
	inner := &flakyPublisher{failures: 2}
	rp := queue.NewResilientPublisher(inner, queue.ResilientConfig{
		EnableRetry:  true,
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
	})

	event := domain.NewEvent("owner-1", "sess-1", domain.EventSessionStart, time.Now(), domain.StartDetails{})
	if err := rp.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish() error = %v; want success after retries", err)
	}
	if inner.calls != 3 {
		t.Errorf("inner publisher calls = %d; want 3", inner.calls)
	}
}

func TestResilientPublisher_NoLayersPassesThrough(t *testing.T) {
	inner := &flakyPublisher{failures: 1}
	rp := queue.NewResilientPublisher(inner, queue.ResilientConfig{})

	event := domain.NewEvent("owner-1", "sess-1", domain.EventSessionStart, time.Now(), domain.StartDetails{})
	if err := rp.Publish(context.Background(), event); err == nil {
		t.Error("Publish() should surface the failure without retry layers")
	}
	if inner.calls != 1 {
		t.Errorf("inner publisher calls = %d; want 1", inner.calls)
	}
}

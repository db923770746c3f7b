// Package adapter defines the notification boundary for completed renders.
//
// Adapters publish render completion events to downstream systems
// (Redis pub/sub or streams, HTTP webhooks). Publishing is best-effort:
// the pipeline logs adapter failures and never fails a request because of one.
package adapter

import (
	"context"
	"fmt"
	"time"
)

// EventTypeRenderCompleted is the EventType of every RenderCompletedEvent.
const EventTypeRenderCompleted = "render_completed"

// RenderCompletedEvent is the payload published when a render finishes.
type RenderCompletedEvent struct {
	EventType  string `json:"event_type"` // always "render_completed"
	Version    string `json:"version"`
	Key        string `json:"key"`
	Name       string `json:"name"`
	Outcome    string `json:"outcome"` // success or failure
	Stage      string `json:"stage,omitempty"`
	Error      string `json:"error,omitempty"`
	Bytes      int64  `json:"bytes"`
	DurationMs int64  `json:"duration_ms"`
	Instance   string `json:"instance,omitempty"`
	Timestamp  string `json:"timestamp"` // RFC 3339
}

// Adapter publishes render completion events to a downstream system.
// Implementations must be safe for concurrent use.
type Adapter interface {
	// Publish sends a render completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RenderCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the delay before the first retry; it doubles per attempt.
const BaseBackoff = 500 * time.Millisecond

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. It stops early when ctx ends or when retriable reports false
// for the returned error. retriable may be nil, meaning always retry.
func Retry(ctx context.Context, retries int, fn func(context.Context) error, retriable func(error) bool) error {
	var lastErr error
	// attempts = 1 initial + retries
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context canceled: %w", err)
		}

		// Exponential backoff before retries (not before first attempt)
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * BaseBackoff
			select {
			case <-ctx.Done():
				return fmt.Errorf("context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if retriable != nil && !retriable(lastErr) {
			return fmt.Errorf("non-retriable error: %w", lastErr)
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// Package redis publishes render completion events to Redis.
//
// Events are JSON-encoded and either PUBLISHed to a channel or, when a
// stream is configured, appended with XADD so consumers can replay them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/justapithecus/chartd/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "chartd:render_completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: chartd:render_completed).
	Channel string
	// Stream switches to XADD on the named stream instead of PUBLISH.
	Stream string
	// StreamMaxLen approximately caps the stream length. Zero means uncapped.
	StreamMaxLen int64
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 3).
	Retries int
}

// Adapter publishes render completion events to Redis.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.StreamMaxLen < 0 {
		return nil, fmt.Errorf("stream max length must be >= 0, got %d", cfg.StreamMaxLen)
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Publish sends the event, retrying with exponential backoff on failures.
func (a *Adapter) Publish(ctx context.Context, event *adapter.RenderCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	err = adapter.Retry(ctx, a.config.Retries, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		return a.send(publishCtx, event, body)
	}, nil)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

func (a *Adapter) send(ctx context.Context, event *adapter.RenderCompletedEvent, body []byte) error {
	if a.config.Stream == "" {
		return a.client.Publish(ctx, a.config.Channel, body).Err()
	}
	args := &goredis.XAddArgs{
		Stream: a.config.Stream,
		Values: map[string]any{
			"key":     event.Key,
			"outcome": event.Outcome,
			"event":   body,
		},
	}
	if a.config.StreamMaxLen > 0 {
		args.MaxLen = a.config.StreamMaxLen
		args.Approx = true
	}
	return a.client.XAdd(ctx, args).Err()
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// Verify Adapter implements the adapter interface.
var _ adapter.Adapter = (*Adapter)(nil)

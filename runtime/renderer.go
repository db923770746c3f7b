package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/justapithecus/chartd/artifact"
	"github.com/justapithecus/chartd/log"
	"github.com/justapithecus/chartd/metrics"
	"github.com/justapithecus/chartd/query"
	"github.com/justapithecus/chartd/types"
)

// Renderer defaults.
const (
	DefaultUIPath        = "/chart"
	DefaultSelector      = ".page > #chart"
	DefaultErrorSelector = ".page .error"
	DefaultReadyTimeout  = 30 * time.Second
	DefaultMaxSessions   = 4
	DefaultQuality       = 90
)

// RendererConfig configures how charts are rendered.
type RendererConfig struct {
	// UIBaseURL is the origin of the chart UI, e.g. "http://localhost:3000".
	UIBaseURL string
	// UIPath is the chart route on the UI. Defaults to DefaultUIPath.
	UIPath string
	// Selector identifies the rendered chart element.
	Selector string
	// ErrorSelector identifies the UI error marker. Empty disables it.
	ErrorSelector string
	// ReadyTimeout bounds navigation plus the readiness wait, and separately
	// the capture.
	ReadyTimeout time.Duration
	// MaxSessions bounds concurrently open sessions.
	MaxSessions int
	Format      types.ImageFormat
	// Quality applies to jpeg only.
	Quality int
}

func (c *RendererConfig) applyDefaults() {
	if c.UIPath == "" {
		c.UIPath = DefaultUIPath
	}
	if c.Selector == "" {
		c.Selector = DefaultSelector
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.Format == "" {
		c.Format = types.FormatPNG
	}
	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = DefaultQuality
	}
}

// RenderResult describes a written artifact.
type RenderResult struct {
	Name     string
	Bytes    int64
	Duration time.Duration
}

// Renderer turns chart queries into artifacts using sessions from a shared Engine.
type Renderer struct {
	engine    Engine
	store     artifact.Store
	config    RendererConfig
	sem       *semaphore.Weighted
	open      atomic.Int64
	logger    *log.Logger
	collector *metrics.Collector
}

// NewRenderer creates a Renderer. logger and collector may be nil.
func NewRenderer(engine Engine, store artifact.Store, config RendererConfig, logger *log.Logger, collector *metrics.Collector) (*Renderer, error) {
	if engine == nil {
		return nil, errors.New("renderer requires an engine")
	}
	if store == nil {
		return nil, errors.New("renderer requires an artifact store")
	}
	if config.UIBaseURL == "" {
		return nil, errors.New("renderer requires a UI base URL")
	}
	if _, err := url.Parse(config.UIBaseURL); err != nil {
		return nil, fmt.Errorf("invalid UI base URL: %w", err)
	}
	config.applyDefaults()
	if logger == nil {
		logger = log.NewNop()
	}

	return &Renderer{
		engine:    engine,
		store:     store,
		config:    config,
		sem:       semaphore.NewWeighted(int64(config.MaxSessions)),
		logger:    logger,
		collector: collector,
	}, nil
}

// Format returns the image format this renderer produces.
func (r *Renderer) Format() types.ImageFormat {
	return r.config.Format
}

// OpenSessions reports the number of sessions currently open.
func (r *Renderer) OpenSessions() int64 {
	return r.open.Load()
}

// ChartURL builds the UI address for a raw query. The query is forwarded in
// padded standard base64 whatever alphabet the client used.
func (r *Renderer) ChartURL(raw string) string {
	if normalized, err := query.Normalize(raw); err == nil {
		raw = normalized
	}
	return strings.TrimRight(r.config.UIBaseURL, "/") + r.config.UIPath + "?query=" + url.QueryEscape(raw)
}

// Render drives one isolated session through navigate, wait and capture,
// then writes the image to the store under name. The session is closed
// before Render returns, whatever the outcome. Errors are *types.Error
// tagged with the failing stage.
func (r *Renderer) Render(ctx context.Context, raw, name string) (*RenderResult, error) {
	start := time.Now()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, types.NewRenderError(types.StageAcquire, err)
	}
	defer r.sem.Release(1)

	session, err := r.engine.NewSession(ctx)
	if err != nil {
		return nil, types.NewRenderError(types.StageSession, err)
	}
	r.open.Add(1)
	r.collector.SessionOpened()
	defer func() {
		if cerr := session.Close(); cerr != nil {
			r.logger.Warn("failed to close render session", map[string]any{
				"name":  name,
				"error": cerr.Error(),
			})
		}
		r.open.Add(-1)
		r.collector.SessionClosed()
	}()

	readyCtx, cancelReady := context.WithTimeout(ctx, r.config.ReadyTimeout)
	defer cancelReady()

	if err := session.Navigate(readyCtx, r.ChartURL(raw)); err != nil {
		return nil, types.NewRenderError(types.StageNavigate, r.timeoutCause(readyCtx, err))
	}
	if err := session.WaitReady(readyCtx, r.config.Selector, r.config.ErrorSelector); err != nil {
		return nil, types.NewRenderError(types.StageWait, r.timeoutCause(readyCtx, err))
	}

	captureCtx, cancelCapture := context.WithTimeout(ctx, r.config.ReadyTimeout)
	defer cancelCapture()

	data, err := session.Screenshot(captureCtx, r.config.Selector, r.config.Format, r.config.Quality)
	if err != nil {
		return nil, types.NewRenderError(types.StageCapture, r.timeoutCause(captureCtx, err))
	}
	if len(data) == 0 {
		return nil, types.NewRenderError(types.StageCapture, errors.New("empty screenshot"))
	}

	if err := r.store.Put(ctx, name, data); err != nil {
		return nil, types.NewRenderError(types.StageWrite, err)
	}

	result := &RenderResult{
		Name:     name,
		Bytes:    int64(len(data)),
		Duration: time.Since(start),
	}
	r.logger.Debug("chart rendered", map[string]any{
		"name":        name,
		"bytes":       result.Bytes,
		"duration_ms": result.Duration.Milliseconds(),
	})
	return result, nil
}

// timeoutCause makes a deadline expiry read as a readiness timeout.
func (r *Renderer) timeoutCause(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("not ready after %s: %w", r.config.ReadyTimeout, err)
	}
	return err
}

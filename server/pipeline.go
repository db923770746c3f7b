// Package server wires the render pipeline into an HTTP service.
//
// A request moves through received, validated, cache_hit or cache_miss,
// rendering, rendered and responded; any step may end in failed.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/justapithecus/chartd/adapter"
	"github.com/justapithecus/chartd/artifact"
	"github.com/justapithecus/chartd/cache"
	"github.com/justapithecus/chartd/lode"
	"github.com/justapithecus/chartd/log"
	"github.com/justapithecus/chartd/metrics"
	"github.com/justapithecus/chartd/query"
	"github.com/justapithecus/chartd/runtime"
	"github.com/justapithecus/chartd/types"
)

// Pipeline defaults.
const (
	DefaultRenderTimeout = 2 * time.Minute
	DefaultNotifyTimeout = 30 * time.Second
)

// Renderer produces an artifact for a raw query.
// *runtime.Renderer is the production implementation.
type Renderer interface {
	Render(ctx context.Context, query, name string) (*runtime.RenderResult, error)
	Format() types.ImageFormat
}

// Journal records completed renders. *lode.Journal implements it.
type Journal interface {
	Record(ctx context.Context, rec lode.RenderRecord) error
}

// Outcome describes how a request was satisfied.
type Outcome struct {
	Key   types.CacheKey
	Name  string
	Hit   bool
	State types.RequestState
	Query *types.ChartQuery
}

// PipelineOptions configures a Pipeline. Renderer, Store and Cache are required.
type PipelineOptions struct {
	Renderer Renderer
	Store    artifact.Store
	Cache    *cache.FIFO[types.CacheKey, types.Entry]

	// Journal and Adapter are optional.
	Journal Journal
	Adapter adapter.Adapter

	Logger    *log.Logger
	Collector *metrics.Collector

	// RenderTimeout caps a shared render, which runs detached from the
	// request that started it.
	RenderTimeout time.Duration
	// NotifyTimeout caps one adapter publish, retries included.
	NotifyTimeout time.Duration
	Instance      string
}

// Pipeline is the request orchestrator: decode, look up, render on miss,
// record and notify.
type Pipeline struct {
	renderer  Renderer
	store     artifact.Store
	cache     *cache.FIFO[types.CacheKey, types.Entry]
	journal   Journal
	adapter   adapter.Adapter
	logger    *log.Logger
	collector *metrics.Collector

	renderTimeout time.Duration
	notifyTimeout time.Duration
	instance      string

	group  singleflight.Group
	notify sync.WaitGroup
}

// NewPipeline validates opts and creates a Pipeline.
func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	if opts.Renderer == nil {
		return nil, errors.New("pipeline requires a renderer")
	}
	if opts.Store == nil {
		return nil, errors.New("pipeline requires an artifact store")
	}
	if opts.Cache == nil {
		return nil, errors.New("pipeline requires a cache")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}
	if opts.RenderTimeout <= 0 {
		opts.RenderTimeout = DefaultRenderTimeout
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}

	return &Pipeline{
		renderer:      opts.Renderer,
		store:         opts.Store,
		cache:         opts.Cache,
		journal:       opts.Journal,
		adapter:       opts.Adapter,
		logger:        opts.Logger,
		collector:     opts.Collector,
		renderTimeout: opts.RenderTimeout,
		notifyTimeout: opts.NotifyTimeout,
		instance:      opts.Instance,
	}, nil
}

// Handle validates raw and makes sure its artifact exists, rendering it if
// needed. On success the artifact can be read with Open(outcome.Name).
// The returned Outcome is non-nil even on failure and carries the state
// the request reached.
func (p *Pipeline) Handle(ctx context.Context, raw string) (*Outcome, error) {
	out := &Outcome{State: types.StateReceived}
	p.collector.IncRequest()

	q, err := query.Decode(raw)
	if err != nil {
		p.collector.IncValidationFailure()
		out.State = types.StateFailed
		return out, err
	}
	out.Query = q
	out.State = types.StateValidated
	out.Key = types.KeyOf(raw)
	out.Name = artifact.Name(out.Key, p.renderer.Format())

	if p.lookup(ctx, out.Key, out.Name) {
		p.collector.IncCacheHit()
		out.Hit = true
		out.State = types.StateCacheHit
		return out, nil
	}

	p.collector.IncCacheMiss()
	p.logger.Debug("cache miss", map[string]any{"key": out.Key.String(), "state": types.StateCacheMiss})

	out.State = types.StateRendering
	if err := p.renderShared(ctx, out.Key, out.Name, raw); err != nil {
		out.State = types.StateFailed
		return out, err
	}
	out.State = types.StateRendered
	return out, nil
}

// lookup reports a hit only when the index has the key and the store still
// has the artifact. A stale index entry is dropped.
func (p *Pipeline) lookup(ctx context.Context, key types.CacheKey, name string) bool {
	if !p.cache.Has(key) {
		return false
	}

	exists, err := p.store.Exists(ctx, name)
	if err == nil && exists {
		return true
	}

	fields := map[string]any{"key": key.String(), "name": name}
	if err != nil {
		fields["error"] = err.Error()
	}
	p.logger.Warn("cached artifact missing, re-rendering", fields)
	p.cache.Delete(key)
	p.collector.IncArtifactMissing()
	return false
}

// renderShared collapses concurrent misses for the same key into one render.
// The render runs on a context detached from ctx so that a departing caller
// does not abort it for the others; ctx only bounds this caller's wait.
func (p *Pipeline) renderShared(ctx context.Context, key types.CacheKey, name, raw string) error {
	led := false
	ch := p.group.DoChan(string(key), func() (any, error) {
		led = true
		return nil, p.render(ctx, key, name, raw)
	})

	select {
	case res := <-ch:
		if res.Shared && !led {
			p.collector.IncRenderCollapsed()
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) render(parent context.Context, key types.CacheKey, name, raw string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), p.renderTimeout)
	defer cancel()

	p.collector.IncRenderStarted()
	start := time.Now()

	res, err := p.renderer.Render(ctx, raw, name)
	if err != nil {
		var te *types.Error
		stage := ""
		if errors.As(err, &te) {
			stage = string(te.Stage)
		}
		p.collector.IncRenderFailed(stage)
		p.logger.Error("render failed", map[string]any{
			"key":   key.String(),
			"stage": stage,
			"error": err.Error(),
		})
		p.completed(ctx, lode.RenderRecord{
			Key:        key.String(),
			Name:       name,
			Outcome:    lode.OutcomeFailure,
			Stage:      stage,
			Error:      err.Error(),
			DurationMs: time.Since(start).Milliseconds(),
		})
		return err
	}

	p.collector.IncRenderSucceeded()
	entry := types.Entry{Name: res.Name, Size: res.Bytes, CreatedAt: time.Now()}
	if evicted, ok := p.cache.Set(key, entry); ok {
		p.collector.IncCacheEviction()
		p.logger.Info("cache entry evicted", map[string]any{
			"key":     evicted.String(),
			"entries": p.cache.Len(),
		})
	}

	p.completed(ctx, lode.RenderRecord{
		Key:        key.String(),
		Name:       name,
		Outcome:    lode.OutcomeSuccess,
		Bytes:      res.Bytes,
		DurationMs: res.Duration.Milliseconds(),
	})
	return nil
}

// completed journals the record and publishes it in the background.
// Neither can fail the request.
func (p *Pipeline) completed(ctx context.Context, rec lode.RenderRecord) {
	rec.Instance = p.instance
	rec.At = time.Now()

	// The render context may already be past its deadline.
	ctx = context.WithoutCancel(ctx)

	if p.journal != nil {
		jctx, cancel := context.WithTimeout(ctx, p.notifyTimeout)
		err := p.journal.Record(jctx, rec)
		cancel()
		if err != nil {
			p.logger.Warn("failed to journal render", map[string]any{
				"key":   rec.Key,
				"error": err.Error(),
			})
		}
	}

	if p.adapter == nil {
		return
	}
	event := &adapter.RenderCompletedEvent{
		EventType:  adapter.EventTypeRenderCompleted,
		Version:    types.Version,
		Key:        rec.Key,
		Name:       rec.Name,
		Outcome:    rec.Outcome,
		Stage:      rec.Stage,
		Error:      rec.Error,
		Bytes:      rec.Bytes,
		DurationMs: rec.DurationMs,
		Instance:   rec.Instance,
		Timestamp:  rec.At.UTC().Format(time.RFC3339),
	}
	p.notify.Add(1)
	go func() {
		defer p.notify.Done()
		nctx, cancel := context.WithTimeout(ctx, p.notifyTimeout)
		defer cancel()
		if err := p.adapter.Publish(nctx, event); err != nil {
			p.logger.Warn("failed to publish render event", map[string]any{
				"key":   event.Key,
				"error": err.Error(),
			})
		}
	}()
}

// Forget drops key from the index after its artifact vanished between
// lookup and open, so the next Handle renders it again.
func (p *Pipeline) Forget(key types.CacheKey) {
	if p.cache.Delete(key) {
		p.collector.IncArtifactMissing()
	}
}

// Open streams a stored artifact.
func (p *Pipeline) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	rc, err := p.store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", name, err)
	}
	return rc, nil
}

// Format returns the image format of rendered artifacts.
func (p *Pipeline) Format() types.ImageFormat {
	return p.renderer.Format()
}

// CacheStats reports index occupancy.
type CacheStats struct {
	Entries  int `json:"entries"`
	Capacity int `json:"capacity"`
}

// CacheStats returns the current index occupancy.
func (p *Pipeline) CacheStats() CacheStats {
	return CacheStats{Entries: p.cache.Len(), Capacity: p.cache.Capacity()}
}

// Close waits for in-flight notifications.
func (p *Pipeline) Close() error {
	p.notify.Wait()
	return nil
}

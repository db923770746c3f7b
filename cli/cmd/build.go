package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/chartd/adapter"
	"github.com/justapithecus/chartd/adapter/redis"
	"github.com/justapithecus/chartd/adapter/webhook"
	"github.com/justapithecus/chartd/artifact"
	"github.com/justapithecus/chartd/cli/config"
	"github.com/justapithecus/chartd/iox"
	"github.com/justapithecus/chartd/lode"
	"github.com/justapithecus/chartd/log"
	"github.com/justapithecus/chartd/metrics"
	"github.com/justapithecus/chartd/runtime"
	"github.com/justapithecus/chartd/types"
)

// serviceName identifies chartd in logs and events.
const serviceName = "chartd"

// Flags shared by commands that build a renderer from config.
func renderFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{Name: "ui-url", Usage: "Chart UI base URL (overrides ui.base_url)"},
		&cli.StringFlag{Name: "storage-backend", Usage: "Artifact storage: disk, s3 or memory"},
		&cli.StringFlag{Name: "storage-path", Usage: "Artifact directory (disk) or bucket/prefix (s3)"},
		&cli.StringFlag{Name: "format-image", Usage: "Image format: png or jpeg"},
		&cli.StringFlag{Name: "browser-ws", Usage: "Connect to a running browser instead of launching one"},
		&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn, error"},
	}
}

// loadConfig reads --config (or defaults), applies flag overrides and
// validates the result.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("ui-url") {
		cfg.UI.BaseURL = c.String("ui-url")
	}
	if c.IsSet("storage-backend") {
		cfg.Storage.Backend = c.String("storage-backend")
	}
	if c.IsSet("storage-path") {
		cfg.Storage.Path = c.String("storage-path")
	}
	if c.IsSet("format-image") {
		cfg.Render.Format = c.String("format-image")
	}
	if c.IsSet("browser-ws") {
		cfg.Browser.WSEndpoint = c.String("browser-ws")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("listen") {
		cfg.Listen = c.String("listen")
	}
	if c.IsSet("cache-capacity") {
		cfg.Cache.Capacity = c.Int("cache-capacity")
	}
	if c.IsSet("workers") {
		cfg.Offload.Workers = c.Int("workers")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// newLogger creates the process logger with a fresh instance ID.
func newLogger(cfg *config.Config) (*log.Logger, string, error) {
	instance := uuid.NewString()
	logger, err := log.NewLogger(log.Meta{
		Service:    serviceName,
		InstanceID: instance,
		Version:    types.Version,
	}, cfg.Log.Level)
	if err != nil {
		return nil, "", err
	}
	return logger, instance, nil
}

func s3Config(cfg *config.Config) lode.S3Config {
	return lode.S3Config{
		Region:       cfg.Storage.Region,
		Endpoint:     cfg.Storage.Endpoint,
		UsePathStyle: cfg.Storage.S3PathStyle,
	}
}

// buildStore opens the artifact store named by cfg.Storage.
func buildStore(ctx context.Context, cfg *config.Config) (artifact.Store, error) {
	switch cfg.Storage.Backend {
	case "disk":
		return artifact.NewDiskStore(cfg.Storage.Path)
	case "memory":
		return lode.NewMemoryArtifactStore(), nil
	case "s3":
		factory, err := lode.NewFactory(ctx, "s3", cfg.Storage.Path, s3Config(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize s3 storage: %w", err)
		}
		return lode.NewArtifactStore(factory), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

// buildJournal opens the render journal. Returns nil when disabled.
func buildJournal(ctx context.Context, cfg *config.Config) (*lode.Journal, error) {
	if cfg.Journal.Backend == "" {
		return nil, nil
	}
	factory, err := lode.NewFactory(ctx, cfg.Journal.Backend, cfg.Journal.Path, s3Config(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize journal storage: %w", err)
	}
	return lode.NewJournal(factory)
}

// buildAdapter creates the completion event adapter. Returns nil when
// disabled.
func buildAdapter(cfg *config.Config) (adapter.Adapter, error) {
	ac := cfg.Adapter
	switch ac.Type {
	case "":
		return nil, nil
	case "redis":
		rc := redis.Config{
			URL:          ac.URL,
			Channel:      ac.Channel,
			Stream:       ac.Stream,
			StreamMaxLen: ac.StreamMaxLen,
			Timeout:      ac.Timeout.Duration,
			Retries:      redis.DefaultRetries,
		}
		if ac.Retries != nil {
			rc.Retries = *ac.Retries
		}
		a, err := redis.New(rc)
		if err != nil {
			return nil, err
		}
		return a, nil
	case "webhook":
		wc := webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Timeout: ac.Timeout.Duration,
			Retries: webhook.DefaultRetries,
		}
		if ac.Retries != nil {
			wc.Retries = *ac.Retries
		}
		a, err := webhook.New(wc)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown adapter type: %s", ac.Type)
	}
}

func browserConfig(cfg *config.Config) runtime.BrowserConfig {
	return runtime.BrowserConfig{
		Bin:           cfg.Browser.Bin,
		WSEndpoint:    cfg.Browser.WSEndpoint,
		Headless:      cfg.Browser.Headless,
		NoSandbox:     cfg.Browser.NoSandbox,
		LaunchTimeout: cfg.Browser.LaunchTimeout.Duration,
	}
}

func rendererConfig(cfg *config.Config) runtime.RendererConfig {
	format, _ := types.ParseImageFormat(cfg.Render.Format)
	return runtime.RendererConfig{
		UIBaseURL:     cfg.UI.BaseURL,
		UIPath:        cfg.UI.Path,
		Selector:      cfg.Render.Selector,
		ErrorSelector: cfg.Render.ErrorSelector,
		ReadyTimeout:  cfg.Render.ReadyTimeout.Duration,
		MaxSessions:   cfg.Render.MaxSessions,
		Format:        format,
		Quality:       cfg.Render.Quality,
	}
}

// stack is everything a render-capable command owns.
type stack struct {
	logger    *log.Logger
	instance  string
	collector *metrics.Collector
	store     artifact.Store
	engine    runtime.Engine
	renderer  *runtime.Renderer
	journal   *lode.Journal
	adapter   adapter.Adapter
}

// launch is swapped in tests.
var launch = func(ctx context.Context, cfg runtime.BrowserConfig) (runtime.Engine, error) {
	e, err := runtime.LaunchBrowser(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// buildStack wires storage, browser and renderer from cfg. On error every
// part built so far is closed.
func buildStack(ctx context.Context, cfg *config.Config) (_ *stack, err error) {
	s := &stack{}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if s.logger, s.instance, err = newLogger(cfg); err != nil {
		return nil, err
	}
	s.collector = metrics.NewCollector(cfg.Storage.Backend, s.instance)

	if s.store, err = buildStore(ctx, cfg); err != nil {
		return nil, err
	}
	if s.journal, err = buildJournal(ctx, cfg); err != nil {
		return nil, err
	}
	if s.adapter, err = buildAdapter(cfg); err != nil {
		return nil, err
	}
	if s.engine, err = launch(ctx, browserConfig(cfg)); err != nil {
		return nil, err
	}
	if s.renderer, err = runtime.NewRenderer(s.engine, s.store, rendererConfig(cfg), s.logger, s.collector); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the engine, adapter and journal in that order.
func (s *stack) Close() error {
	var closers []io.Closer
	if s.engine != nil {
		closers = append(closers, s.engine)
	}
	if s.adapter != nil {
		closers = append(closers, s.adapter)
	}
	if s.journal != nil {
		closers = append(closers, s.journal)
	}
	err := iox.CloseAll(closers...)
	if s.logger != nil {
		iox.DiscardErr(s.logger.Sync)
	}
	return err
}

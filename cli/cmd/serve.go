package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/chartd/cache"
	"github.com/justapithecus/chartd/offload"
	"github.com/justapithecus/chartd/server"
	"github.com/justapithecus/chartd/types"
)

// ServeCommand returns the serve command, which runs the chart API.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the chart render-and-cache HTTP service",
		Flags: append(renderFlags(),
			&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Usage: "Listen address (overrides listen)"},
			&cli.IntFlag{Name: "cache-capacity", Usage: "Cache index capacity (overrides cache.capacity)"},
			&cli.IntFlag{Name: "workers", Usage: "Offload workers, 0 for one per CPU (overrides offload.workers)"},
		),
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	pool := offload.New(cfg.Offload.Workers,
		offload.WithLogger(st.logger),
		offload.WithCollector(st.collector),
	)
	offload.RegisterBuiltins(pool)

	opts := server.PipelineOptions{
		Renderer:      st.renderer,
		Store:         st.store,
		Cache:         cache.NewFIFO[types.CacheKey, types.Entry](cfg.Cache.Capacity),
		Adapter:       st.adapter,
		Logger:        st.logger,
		Collector:     st.collector,
		RenderTimeout: cfg.Render.Timeout.Duration,
		Instance:      st.instance,
	}
	if st.journal != nil {
		opts.Journal = st.journal
	}

	pipeline, err := server.NewPipeline(opts)
	if err != nil {
		_ = pool.Close()
		_ = st.Close()
		return err
	}

	srv, err := server.New(server.Config{Addr: cfg.Listen}, pipeline, pool, st.logger, st.collector)
	if err != nil {
		_ = pipeline.Close()
		_ = pool.Close()
		_ = st.Close()
		return err
	}

	st.logger.Info("chartd starting", map[string]any{
		"listen":    cfg.Listen,
		"ui":        cfg.UI.BaseURL,
		"storage":   cfg.Storage.Backend,
		"journal":   cfg.Journal.Backend,
		"adapter":   cfg.Adapter.Type,
		"capacity":  cfg.Cache.Capacity,
		"workers":   pool.Workers(),
		"image_fmt": cfg.Render.Format,
	})

	runErr := srv.Run(ctx)

	// Shutdown order: wait for notifications, drain offload work, then
	// release browser, adapter and journal.
	closeErr := errors.Join(pipeline.Close(), pool.Close(), st.Close())
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if closeErr != nil {
		return fmt.Errorf("shutdown: %w", closeErr)
	}
	st.logger.Info("chartd stopped", nil)
	return nil
}

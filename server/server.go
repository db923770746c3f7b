package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/justapithecus/chartd/log"
	"github.com/justapithecus/chartd/metrics"
	"github.com/justapithecus/chartd/offload"
)

// DefaultShutdownTimeout bounds graceful shutdown of in-flight requests.
const DefaultShutdownTimeout = 15 * time.Second

// Config configures the HTTP server.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Server serves the chart API.
type Server struct {
	config    Config
	pipeline  *Pipeline
	pool      *offload.Pool
	logger    *log.Logger
	collector *metrics.Collector
	started   time.Time
	handler   http.Handler
}

// New creates a Server. logger and collector may be nil.
func New(cfg Config, pipeline *Pipeline, pool *offload.Pool, logger *log.Logger, collector *metrics.Collector) (*Server, error) {
	if pipeline == nil {
		return nil, errors.New("server requires a pipeline")
	}
	if pool == nil {
		return nil, errors.New("server requires an offload pool")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Server{
		config:    cfg,
		pipeline:  pipeline,
		pool:      pool,
		logger:    logger,
		collector: collector,
		started:   time.Now(),
	}
	h, err := s.routes()
	if err != nil {
		return nil, err
	}
	s.handler = h
	return s, nil
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address and serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends, then shuts down gracefully.
// Returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", map[string]any{"addr": ln.Addr().String()})
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", map[string]any{"timeout": s.config.ShutdownTimeout.String()})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

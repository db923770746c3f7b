package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/chartd/cli/config"
	"github.com/justapithecus/chartd/cli/render"
	"github.com/justapithecus/chartd/cli/tui"
	"github.com/justapithecus/chartd/lode"
	"github.com/justapithecus/chartd/server"
)

// statsTimeout bounds one stats read.
const statsTimeout = 30 * time.Second

// StatsCommand returns the stats command with subcommands.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show aggregated statistics (render journal, running server)",
		Subcommands: []*cli.Command{
			statsRendersCommand(),
			statsServerCommand(),
		},
	}
}

func statsRendersCommand() *cli.Command {
	return &cli.Command{
		Name:  "renders",
		Usage: "Aggregate the render journal",
		Flags: append(ReadOnlyFlags(),
			ConfigFlag,
			&cli.StringFlag{Name: "journal-backend", Usage: "Journal storage: fs or s3 (overrides journal.backend)"},
			&cli.StringFlag{Name: "journal-path", Usage: "Journal directory (fs) or bucket/prefix (s3)"},
			&cli.StringFlag{Name: "region", Usage: "AWS region for the s3 backend"},
			&cli.StringFlag{Name: "endpoint", Usage: "Custom S3 endpoint (R2, MinIO)"},
			&cli.BoolFlag{Name: "s3-path-style", Usage: "Use path-style S3 addressing"},
			&cli.StringFlag{Name: "day", Usage: "Restrict to one day (YYYY-MM-DD)"},
		),
		Action: statsRendersAction,
	}
}

func statsRendersAction(c *cli.Context) error {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		cfg = loaded
	}
	if c.IsSet("journal-backend") {
		cfg.Journal.Backend = c.String("journal-backend")
	}
	if c.IsSet("journal-path") {
		cfg.Journal.Path = c.String("journal-path")
	}
	if c.IsSet("region") {
		cfg.Storage.Region = c.String("region")
	}
	if c.IsSet("endpoint") {
		cfg.Storage.Endpoint = c.String("endpoint")
	}
	if c.IsSet("s3-path-style") {
		cfg.Storage.S3PathStyle = c.Bool("s3-path-style")
	}

	switch cfg.Journal.Backend {
	case "fs", "s3":
	case "":
		return cli.Exit("journal is not configured: set journal.backend or --journal-backend", 1)
	default:
		return cli.Exit(fmt.Sprintf("unsupported journal backend for reads: %s (must be fs or s3)", cfg.Journal.Backend), 1)
	}
	if cfg.Journal.Path == "" {
		return cli.Exit("--journal-path is required", 1)
	}

	day := c.String("day")
	if day != "" {
		if _, err := time.Parse("2006-01-02", day); err != nil {
			return cli.Exit(fmt.Sprintf("invalid --day %q (want YYYY-MM-DD)", day), 1)
		}
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	load := func() (any, error) {
		return readRenderStats(c.Context, cfg, day)
	}
	stats, err := load()
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsRenders, stats, tui.WithRefresh(load, 0))
	}
	return r.Render(stats)
}

func readRenderStats(parent context.Context, cfg *config.Config, day string) (*lode.RenderStats, error) {
	ctx, cancel := context.WithTimeout(parent, statsTimeout)
	defer cancel()

	factory, err := lode.NewFactory(ctx, cfg.Journal.Backend, cfg.Journal.Path, s3Config(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize journal reader: %w", err)
	}
	ds, err := lode.NewJournalDataset(factory)
	if err != nil {
		return nil, err
	}
	stats, err := lode.QueryRenderStats(ctx, ds, day)
	if err != nil {
		return nil, fmt.Errorf("failed to read render journal: %w", err)
	}
	return stats, nil
}

func statsServerCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Show live counters of a running chartd",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{Name: "server", Aliases: []string{"s"}, Usage: "chartd base URL", Value: "http://localhost:8080", EnvVars: []string{"CHARTD_SERVER"}},
			&cli.DurationFlag{Name: "watch", Usage: "TUI refresh interval (0 disables)", Value: 2 * time.Second},
		),
		Action: statsServerAction,
	}
}

func statsServerAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	base := c.String("server")
	client := &http.Client{Timeout: 10 * time.Second}
	load := func() (any, error) {
		return fetchServerStats(c.Context, client, base)
	}

	stats, err := load()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsServer, stats, tui.WithRefresh(load, c.Duration("watch")))
	}
	return r.Render(stats)
}

// fetchServerStats reads GET /api/v1/stats from a running server.
func fetchServerStats(ctx context.Context, client *http.Client, base string) (*server.StatsResponse, error) {
	endpoint := strings.TrimRight(base, "/") + "/api/v1/stats"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", base, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", endpoint, resp.Status)
	}

	var stats server.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("invalid stats response: %w", err)
	}
	return &stats, nil
}

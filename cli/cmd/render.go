package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/chartd/artifact"
	"github.com/justapithecus/chartd/cli/render"
	"github.com/justapithecus/chartd/query"
	"github.com/justapithecus/chartd/types"
)

// RenderResponse is the output of the render command.
type RenderResponse struct {
	Key        string `json:"key" yaml:"key"`
	Name       string `json:"name" yaml:"name"`
	Path       string `json:"path,omitempty" yaml:"path,omitempty"`
	URL        string `json:"url" yaml:"url"`
	Bytes      int64  `json:"bytes" yaml:"bytes"`
	DurationMs int64  `json:"duration_ms" yaml:"duration_ms"`
}

// RenderCommand returns the render command, a one-shot render that
// bypasses the cache index.
func RenderCommand() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Render one encoded chart query to the artifact store",
		ArgsUsage: "<query|->",
		Flags: append(renderFlags(),
			FormatFlag,
			NoColorFlag,
			TUIFlag,
			&cli.DurationFlag{Name: "timeout", Usage: "Overall render timeout", Value: 2 * time.Minute},
		),
		Action: renderAction,
	}
}

func renderAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for render command", 1)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	raw, err := readQuery(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if _, err := query.Decode(raw); err != nil {
		return cli.Exit(fmt.Sprintf("invalid query: %v", err), 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if t := c.Duration("timeout"); t < cfg.Render.ReadyTimeout.Duration {
		return cli.Exit(fmt.Sprintf("--timeout (%s) must be >= render.ready_timeout (%s)", t, cfg.Render.ReadyTimeout.Duration), 1)
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	st, err := buildStack(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer func() { _ = st.Close() }()

	key := types.KeyOf(raw)
	name := artifact.Name(key, st.renderer.Format())
	result, err := st.renderer.Render(ctx, raw, name)
	if err != nil {
		return cli.Exit(fmt.Sprintf("render failed: %v", err), 2)
	}

	resp := RenderResponse{
		Key:        key.String(),
		Name:       result.Name,
		URL:        st.renderer.ChartURL(raw),
		Bytes:      result.Bytes,
		DurationMs: result.Duration.Milliseconds(),
	}
	if disk, ok := st.store.(*artifact.DiskStore); ok {
		if path, err := disk.Path(name); err == nil {
			resp.Path = path
		}
	}
	return r.Render(resp)
}

// readQuery takes the query from the first argument, or stdin when the
// argument is "-" or missing and stdin is not a terminal.
func readQuery(c *cli.Context) (string, error) {
	arg := c.Args().First()
	if arg != "" && arg != "-" {
		return strings.TrimSpace(arg), nil
	}
	if arg == "" && isTerminal(os.Stdin) {
		return "", errors.New("query argument required (or pipe it on stdin)")
	}
	data, err := io.ReadAll(c.App.Reader)
	if err != nil {
		return "", fmt.Errorf("read query from stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

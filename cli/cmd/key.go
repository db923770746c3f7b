package cmd

import (
	"fmt"
	"net/url"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/chartd/artifact"
	"github.com/justapithecus/chartd/cli/render"
	"github.com/justapithecus/chartd/query"
	"github.com/justapithecus/chartd/types"
)

// KeyResponse is the output of the key command.
type KeyResponse struct {
	Key       string `json:"key" yaml:"key"`
	Name      string `json:"name" yaml:"name"`
	ChartType string `json:"chart_type" yaml:"chart_type"`
	Rows      int    `json:"rows" yaml:"rows"`
	Width     int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height    int    `json:"height,omitempty" yaml:"height,omitempty"`
	Path      string `json:"path" yaml:"path"`
}

// KeyCommand returns the key command. It validates a query and prints the
// cache key and artifact name it maps to, without rendering.
func KeyCommand() *cli.Command {
	return &cli.Command{
		Name:      "key",
		Usage:     "Validate an encoded chart query and print its cache key",
		ArgsUsage: "<query|->",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{Name: "format-image", Usage: "Image format: png or jpeg", Value: string(types.FormatPNG)},
		),
		Action: keyAction,
	}
}

func keyAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for key command", 1)
	}

	format, ok := types.ParseImageFormat(c.String("format-image"))
	if !ok {
		return cli.Exit(fmt.Sprintf("invalid image format: %q", c.String("format-image")), 1)
	}

	raw, err := readQuery(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	q, err := query.Decode(raw)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid query: %v", err), 1)
	}

	key := types.KeyOf(raw)
	resp := KeyResponse{
		Key:       key.String(),
		Name:      artifact.Name(key, format),
		ChartType: q.Chart.Type,
		Rows:      len(q.Chart.Data),
		Width:     q.Config.Width,
		Height:    q.Config.Height,
		Path:      "/api/v1/chart?query=" + url.QueryEscape(raw),
	}
	return r.Render(resp)
}

package tui

import (
	"fmt"
	"slices"
	"time"
)

// View types with an interactive rendering.
const (
	ViewStatsRenders = "stats_renders"
	ViewStatsServer  = "stats_server"
)

// RefreshFunc reloads the data shown by a view.
type RefreshFunc func() (any, error)

// Option configures a TUI run.
type Option func(*StatsModel)

// WithRefresh reloads the view every interval and on the refresh key.
func WithRefresh(fn RefreshFunc, interval time.Duration) Option {
	return func(m *StatsModel) {
		m.refresh = fn
		m.interval = interval
	}
}

// Run starts the TUI for viewType.
// Returns an error if the view type doesn't support TUI.
func Run(viewType string, data any, opts ...Option) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	return RunStatsTUI(viewType, data, opts...)
}

// IsTUISupported returns true if the view type supports TUI mode.
// Only read-only stats views do.
func IsTUISupported(viewType string) bool {
	return slices.Contains(SupportedTUIViews(), viewType)
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewStatsRenders, ViewStatsServer}
}

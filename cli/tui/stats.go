package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/chartd/lode"
	"github.com/justapithecus/chartd/server"
)

type tickMsg time.Time

type dataMsg struct {
	data any
	err  error
}

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	err      error
	updated  time.Time

	refresh  RefreshFunc
	interval time.Duration

	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any, opts ...Option) StatsModel {
	m := StatsModel{
		viewType: viewType,
		data:     data,
		updated:  time.Now(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	if m.refresh == nil || m.interval <= 0 {
		return nil
	}
	return m.tick()
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Refresh) && m.refresh != nil:
			return m, m.load()
		}

	case tickMsg:
		return m, tea.Batch(m.load(), m.tick())

	case dataMsg:
		m.err = msg.err
		if msg.err == nil {
			m.data = msg.data
			m.updated = time.Now()
		}
		return m, nil
	}

	return m, nil
}

func (m StatsModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m StatsModel) load() tea.Cmd {
	fn := m.refresh
	return func() tea.Msg {
		data, err := fn()
		return dataMsg{data: data, err: err}
	}
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewStatsRenders:
		content = m.renderStatsRenders()
	case ViewStatsServer:
		content = m.renderStatsServer()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	if m.err != nil {
		content += "\n\n" + ErrorStyle.Render("refresh failed: "+m.err.Error())
	}

	help := "Press q or Ctrl+C to quit"
	if m.refresh != nil {
		help = fmt.Sprintf("Press r to refresh, q to quit (updated %s)", m.updated.Format("15:04:05"))
	}
	return content + "\n" + HelpStyle.Render(help)
}

func (m StatsModel) renderStatsRenders() string {
	var data *lode.RenderStats
	switch v := m.data.(type) {
	case *lode.RenderStats:
		data = v
	case lode.RenderStats:
		data = &v
	}
	if data == nil {
		return "Invalid data type for stats_renders"
	}

	var b strings.Builder
	title := "Render Journal"
	if len(data.Days) == 1 {
		title += " " + data.Days[0]
	}
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Total", fmt.Sprint(data.Total), highlightColor),
		renderStatBox("Succeeded", fmt.Sprint(data.Succeeded), successColor),
		renderStatBox("Failed", fmt.Sprint(data.Failed), errorColor),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Bytes", formatBytes(data.Bytes), highlightColor),
		renderStatBox("Avg render", fmt.Sprintf("%dms", data.AvgDurationMs), warningColor),
		renderStatBox("Days", fmt.Sprint(len(data.Days)), mutedColor),
	))

	b.WriteString(renderStages(data.FailedByStage))
	return b.String()
}

func (m StatsModel) renderStatsServer() string {
	var data *server.StatsResponse
	switch v := m.data.(type) {
	case *server.StatsResponse:
		data = v
	case server.StatsResponse:
		data = &v
	}
	if data == nil {
		return "Invalid data type for stats_server"
	}
	snap := data.Metrics

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("chartd %s (up %s)", data.Version, data.Uptime)))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Requests", fmt.Sprint(snap.Requests), highlightColor),
		renderStatBox("Cache hits", fmt.Sprint(snap.CacheHits), successColor),
		renderStatBox("Cache misses", fmt.Sprint(snap.CacheMisses), warningColor),
		renderStatBox("Evictions", fmt.Sprint(snap.CacheEvictions), mutedColor),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Rendered", fmt.Sprint(snap.RendersSucceeded), successColor),
		renderStatBox("Failed", fmt.Sprint(snap.RendersFailed), errorColor),
		renderStatBox("Collapsed", fmt.Sprint(snap.RendersCollapsed), warningColor),
		renderStatBox("Sessions", fmt.Sprint(snap.OpenSessions), highlightColor),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Cache", fmt.Sprintf("%d/%d", data.Cache.Entries, data.Cache.Capacity), highlightColor),
		renderStatBox("Offload", fmt.Sprintf("%d pending", data.Offload.Pending), highlightColor),
		renderStatBox("Workers", fmt.Sprint(data.Offload.Workers), mutedColor),
		renderStatBox("Invalid", fmt.Sprint(snap.ValidationFailures), errorColor),
	))

	b.WriteString(renderStages(snap.FailedByStage))
	return b.String()
}

func renderStatBox(label, value string, color lipgloss.Color) string {
	valueStr := StatValueStyle.Foreground(color).Render(value)
	labelStr := StatLabelStyle.Render(label)
	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)
	return StatBoxStyle.BorderForeground(color).Render(content)
}

func renderStages(byStage map[string]int64) string {
	if len(byStage) == 0 {
		return ""
	}
	stages := make([]string, 0, len(byStage))
	for stage := range byStage {
		stages = append(stages, stage)
	}
	sort.Strings(stages)

	var b strings.Builder
	b.WriteString("\n\n")
	b.WriteString(LabelStyle.Render("Failed by stage"))
	for _, stage := range stages {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("  %s %s",
			LabelStyle.Render(stage),
			OutcomeStyle("failed").Render(fmt.Sprint(byStage[stage]))))
	}
	return b.String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any, opts ...Option) error {
	model := NewStatsModel(viewType, data, opts...)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}

package render

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{"json lowercase", "json", FormatJSON, false},
		{"json uppercase", "JSON", FormatJSON, false},
		{"table", "table", FormatTable, false},
		{"yaml", "yaml", FormatYAML, false},
		{"empty", "", "", false},
		{"invalid", "xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	_, err := ParseFormat("csv")
	if err == nil || !strings.Contains(err.Error(), "json, table, or yaml") {
		t.Errorf("error message should mention valid formats, got: %v", err)
	}
}

type inner struct {
	Hits   int64            `json:"hits"`
	Stages map[string]int64 `json:"stages"`
}

type outer struct {
	Version string        `json:"version"`
	Avg     float64       `json:"avg"`
	Took    time.Duration `json:"took"`
	At      time.Time     `json:"at"`
	Cache   inner         `json:"cache"`
	Hidden  string        `json:"-"`
	Rows    []int         `json:"rows"`
	Opt     *inner        `json:"opt"`
}

func TestRenderer_JSONAndYAML(t *testing.T) {
	data := map[string]string{"key": "value"}

	var j bytes.Buffer
	if err := NewRendererWithWriter(FormatJSON, false, &j).Render(data); err != nil {
		t.Fatalf("Render json: %v", err)
	}
	if !strings.Contains(j.String(), `"key": "value"`) {
		t.Errorf("JSON output missing expected content: %s", j.String())
	}

	var y bytes.Buffer
	if err := NewRendererWithWriter(FormatYAML, false, &y).Render(data); err != nil {
		t.Fatalf("Render yaml: %v", err)
	}
	if !strings.Contains(y.String(), "key: value") {
		t.Errorf("YAML output missing expected content: %s", y.String())
	}
}

func TestRenderer_TableFlattensStruct(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)

	data := outer{
		Version: "0.3.0",
		Avg:     12.345,
		Took:    1500 * time.Millisecond,
		At:      time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
		Cache:   inner{Hits: 3, Stages: map[string]int64{"wait": 2, "capture": 1}},
		Hidden:  "secret",
		Rows:    []int{1, 2},
	}
	if err := r.Render(&data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	for _, want := range []string{
		"version:", "0.3.0",
		"avg:", "12.35",
		"took:", "1.5s",
		"at:", "2026-10-18T12:00:00Z",
		"cache.hits:", "3",
		"cache.stages:", "capture=1, wait=2",
		"rows:", "[2 items]",
		"opt:",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("table output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "secret") {
		t.Errorf("json:\"-\" field should be skipped:\n%s", got)
	}
}

func TestRenderer_TableMapSorted(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)

	if err := r.Render(map[string]int{"b": 2, "a": 1, "c": 3}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "a:") || !strings.HasPrefix(lines[2], "c:") {
		t.Errorf("map rows not sorted: %q", lines)
	}
}

func TestRenderer_TableSlice(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)

	items := []inner{{Hits: 1}, {Hits: 2}}
	if err := r.Render(items); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %q", lines)
	}
	if !strings.Contains(lines[0], "hits") || !strings.Contains(lines[0], "stages") {
		t.Errorf("unexpected header %q", lines[0])
	}
}

func TestRenderer_TableEmpty(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)

	if err := r.Render([]inner{}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "(no results)") {
		t.Errorf("expected no results marker, got %q", buf.String())
	}

	buf.Reset()
	var nilPtr *outer
	if err := r.Render(nilPtr); err != nil {
		t.Fatalf("Render nil failed: %v", err)
	}
	if !strings.Contains(buf.String(), "(no results)") {
		t.Errorf("expected no results marker for nil, got %q", buf.String())
	}
}

func TestRenderer_TUIUnsupported(t *testing.T) {
	r := NewRendererWithWriter(FormatTable, true, &bytes.Buffer{})
	if err := r.RenderTUI("version", nil); err == nil {
		t.Error("expected error for unsupported TUI view")
	}
}

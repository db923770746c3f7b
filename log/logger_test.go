package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := newLoggerWithWriter(Meta{Service: "chartd", InstanceID: "i-1", Version: "0.3.0"}, zapcore.DebugLevel, &buf)

	l.Info("render complete", map[string]any{"key": "abc"})

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	entry := lines[0]
	if entry["service"] != "chartd" || entry["instance_id"] != "i-1" || entry["version"] != "0.3.0" {
		t.Errorf("missing context fields: %v", entry)
	}
	if entry["message"] != "render complete" || entry["level"] != "info" {
		t.Errorf("unexpected message/level: %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["key"] != "abc" {
		t.Errorf("unexpected fields: %v", entry["fields"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("timestamp missing")
	}
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := newLoggerWithWriter(Meta{Service: "chartd"}, zapcore.WarnLevel, &buf)

	l.Debug("hidden", nil)
	l.Info("hidden", nil)
	l.Warn("shown", nil)
	l.Error("shown", nil)

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines at warn level, got %d", len(lines))
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := newLoggerWithWriter(Meta{Service: "chartd"}, zapcore.DebugLevel, &buf).
		With(map[string]any{"request_id": "r-1"})

	l.Debug("state", map[string]any{"state": "validated"})

	lines := decodeLines(t, &buf)
	if lines[0]["request_id"] != "r-1" {
		t.Errorf("request_id missing: %v", lines[0])
	}
}

func TestLogger_WithOutput(t *testing.T) {
	var first, second bytes.Buffer
	l := newLoggerWithWriter(Meta{Service: "chartd"}, zapcore.InfoLevel, &first)
	l.WithOutput(&second).Info("redirected", nil)

	if first.Len() != 0 {
		t.Error("original writer should be untouched")
	}
	if !strings.Contains(second.String(), "redirected") {
		t.Errorf("redirected output missing: %s", second.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.Info("discarded", map[string]any{"k": "v"})
	l.Sugar().Infof("discarded %d", 1)
}

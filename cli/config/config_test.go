package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `listen: 127.0.0.1:9090

ui:
  base_url: https://charts.example.com
  path: /render-chart

render:
  selector: "#chart"
  error_selector: ".error"
  ready_timeout: 10s
  timeout: 1m
  max_sessions: 8
  format: jpeg
  quality: 75

cache:
  capacity: 500

offload:
  workers: 3

browser:
  bin: /usr/bin/chromium
  headless: false
  no_sandbox: true
  launch_timeout: 45s

storage:
  backend: s3
  path: my-bucket/charts
  region: us-east-1
  endpoint: https://s3.example.com
  s3_path_style: true

journal:
  backend: fs
  path: ./journal

adapter:
  type: webhook
  url: https://hooks.example.com/chartd
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 2

log:
  level: debug
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "listen", cfg.Listen, "127.0.0.1:9090")
	assertEqual(t, "ui.base_url", cfg.UI.BaseURL, "https://charts.example.com")
	assertEqual(t, "ui.path", cfg.UI.Path, "/render-chart")
	assertEqual(t, "render.selector", cfg.Render.Selector, "#chart")
	assertEqual(t, "render.error_selector", cfg.Render.ErrorSelector, ".error")
	assertEqual(t, "render.format", cfg.Render.Format, "jpeg")
	if cfg.Render.ReadyTimeout.Duration != 10*time.Second {
		t.Errorf("render.ready_timeout = %v", cfg.Render.ReadyTimeout.Duration)
	}
	if cfg.Render.Timeout.Duration != time.Minute {
		t.Errorf("render.timeout = %v", cfg.Render.Timeout.Duration)
	}
	if cfg.Render.MaxSessions != 8 || cfg.Render.Quality != 75 {
		t.Errorf("render limits = %d/%d", cfg.Render.MaxSessions, cfg.Render.Quality)
	}
	if cfg.Cache.Capacity != 500 {
		t.Errorf("cache.capacity = %d", cfg.Cache.Capacity)
	}
	if cfg.Offload.Workers != 3 {
		t.Errorf("offload.workers = %d", cfg.Offload.Workers)
	}
	assertEqual(t, "browser.bin", cfg.Browser.Bin, "/usr/bin/chromium")
	if cfg.Browser.Headless || !cfg.Browser.NoSandbox {
		t.Errorf("browser flags = headless:%v no_sandbox:%v", cfg.Browser.Headless, cfg.Browser.NoSandbox)
	}
	assertEqual(t, "storage.backend", cfg.Storage.Backend, "s3")
	assertEqual(t, "storage.path", cfg.Storage.Path, "my-bucket/charts")
	assertEqual(t, "storage.region", cfg.Storage.Region, "us-east-1")
	if !cfg.Storage.S3PathStyle {
		t.Error("expected storage.s3_path_style=true")
	}
	assertEqual(t, "journal.backend", cfg.Journal.Backend, "fs")
	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.headers", cfg.Adapter.Headers["Authorization"], "Bearer token123")
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 2 {
		t.Errorf("adapter.retries = %v", cfg.Adapter.Retries)
	}
	assertEqual(t, "log.level", cfg.Log.Level, "debug")

	if err := cfg.Validate(); err != nil {
		t.Errorf("full config should validate: %v", err)
	}
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeTemp(t, "cache:\n  capacity: 7\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	def := Defaults()
	if cfg.Cache.Capacity != 7 {
		t.Errorf("cache.capacity = %d, want 7", cfg.Cache.Capacity)
	}
	if cfg.Listen != def.Listen || cfg.Render.Selector != def.Render.Selector {
		t.Errorf("defaults lost: listen=%q selector=%q", cfg.Listen, cfg.Render.Selector)
	}
	if !cfg.Browser.Headless {
		t.Error("browser.headless default should survive")
	}
}

func TestLoad_EmptyAndCommentsOnly(t *testing.T) {
	for _, content := range []string{"", "   \n  \n", "# comment\n# another\n"} {
		cfg, err := Load(writeTemp(t, content))
		if err != nil {
			t.Fatalf("Load(%q) failed: %v", content, err)
		}
		if cfg.Listen != Defaults().Listen {
			t.Errorf("Load(%q) listen = %q", content, cfg.Listen)
		}
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeTemp(t, "listen: [unclosed\n"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	for _, content := range []string{
		"listen: :8080\nbogus_key: x\n",
		"storage:\n  backend: disk\n  unknown_field: bad\n",
	} {
		_, err := Load(writeTemp(t, content))
		if err == nil {
			t.Fatalf("expected error for %q", content)
		}
		if !strings.Contains(err.Error(), "bogus_key") && !strings.Contains(err.Error(), "unknown_field") {
			t.Errorf("error should mention the unknown key, got: %v", err)
		}
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("CHARTD_UI", "http://ui.internal:3000")
	yaml := "ui:\n  base_url: ${CHARTD_UI}\nlisten: ${CHARTD_LISTEN_UNSET:-:9999}\n"

	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "ui.base_url", cfg.UI.BaseURL, "http://ui.internal:3000")
	assertEqual(t, "listen", cfg.Listen, ":9999")
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	cfg, err := Load(writeTemp(t, "adapter:\n  type: redis\n  url: redis://localhost:6379\n  retries: 0\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 0 {
		t.Errorf("expected explicit 0 retries, got %v", cfg.Adapter.Retries)
	}

	cfg, err = Load(writeTemp(t, "adapter:\n  type: redis\n  url: redis://localhost:6379\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries != nil {
		t.Errorf("expected nil retries when omitted, got %d", *cfg.Adapter.Retries)
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		content string
		want    time.Duration
		wantErr bool
	}{
		{"render:\n  ready_timeout: 5m30s\n", 5*time.Minute + 30*time.Second, false},
		{"render:\n  ready_timeout: \"\"\n", 30 * time.Second, false},
		{"render:\n  ready_timeout: soon\n", 0, true},
		{"render:\n  ready_timeout: [1]\n", 0, true},
	}
	for _, tt := range tests {
		cfg, err := Load(writeTemp(t, tt.content))
		if (err != nil) != tt.wantErr {
			t.Errorf("Load(%q) error = %v, wantErr %v", tt.content, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && cfg.Render.ReadyTimeout.Duration != tt.want {
			t.Errorf("Load(%q) ready_timeout = %v, want %v", tt.content, cfg.Render.ReadyTimeout.Duration, tt.want)
		}
	}
}

func TestDefaults_Validate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no listen", func(c *Config) { c.Listen = "" }, "listen"},
		{"no ui", func(c *Config) { c.UI.BaseURL = "" }, "ui.base_url is required"},
		{"bad ui scheme", func(c *Config) { c.UI.BaseURL = "ftp://x" }, "http(s) URL"},
		{"bad format", func(c *Config) { c.Render.Format = "gif" }, "render.format"},
		{"bad quality", func(c *Config) { c.Render.Quality = 0 }, "render.quality"},
		{"no sessions", func(c *Config) { c.Render.MaxSessions = 0 }, "render.max_sessions"},
		{"zero ready timeout", func(c *Config) { c.Render.ReadyTimeout = Duration{} }, "ready_timeout"},
		{"timeout below ready timeout", func(c *Config) { c.Render.Timeout = Duration{5 * time.Second} }, "render.timeout"},
		{"negative timeout", func(c *Config) { c.Render.Timeout = Duration{-time.Second} }, "render.timeout"},
		{"zero capacity", func(c *Config) { c.Cache.Capacity = 0 }, "cache.capacity"},
		{"negative workers", func(c *Config) { c.Offload.Workers = -1 }, "offload.workers"},
		{"bad storage", func(c *Config) { c.Storage.Backend = "ftp" }, "storage.backend"},
		{"disk without path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"bad journal", func(c *Config) { c.Journal.Backend = "sql" }, "journal.backend"},
		{"journal without path", func(c *Config) { c.Journal.Backend = "fs" }, "journal.path"},
		{"bad adapter", func(c *Config) { c.Adapter.Type = "kafka" }, "adapter.type"},
		{"adapter without url", func(c *Config) { c.Adapter.Type = "redis" }, "adapter.url"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestValidate_ReportsAll(t *testing.T) {
	cfg := Defaults()
	cfg.Listen = ""
	cfg.Cache.Capacity = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "listen") || !strings.Contains(err.Error(), "cache.capacity") {
		t.Errorf("expected both problems reported, got %q", err.Error())
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chartd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}

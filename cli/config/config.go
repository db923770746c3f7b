package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/justapithecus/chartd/log"
	"github.com/justapithecus/chartd/types"
)

// Config represents a chartd.yaml configuration file.
// Load starts from Defaults, so omitted keys keep their default value.
// CLI flags always override config values.
type Config struct {
	Listen  string        `yaml:"listen"`
	UI      UIConfig      `yaml:"ui"`
	Render  RenderConfig  `yaml:"render"`
	Cache   CacheConfig   `yaml:"cache"`
	Offload OffloadConfig `yaml:"offload"`
	Browser BrowserConfig `yaml:"browser"`
	Storage StorageConfig `yaml:"storage"`
	Journal JournalConfig `yaml:"journal"`
	Adapter AdapterConfig `yaml:"adapter"`
	Log     LogConfig     `yaml:"log"`
}

// UIConfig locates the chart UI the renderer navigates to.
type UIConfig struct {
	BaseURL string `yaml:"base_url"`
	Path    string `yaml:"path"`
}

// RenderConfig tunes the render session manager.
type RenderConfig struct {
	Selector      string   `yaml:"selector"`
	ErrorSelector string   `yaml:"error_selector"`
	ReadyTimeout  Duration `yaml:"ready_timeout"`
	// Timeout caps a whole shared render, detached from any one request.
	Timeout     Duration `yaml:"timeout"`
	MaxSessions int      `yaml:"max_sessions"`
	Format      string   `yaml:"format"`
	Quality     int      `yaml:"quality"`
}

// CacheConfig sizes the content cache index.
type CacheConfig struct {
	Capacity int `yaml:"capacity"`
}

// OffloadConfig sizes the offload pool. Zero workers means one per CPU.
type OffloadConfig struct {
	Workers int `yaml:"workers"`
}

// BrowserConfig selects how the shared browser is obtained.
type BrowserConfig struct {
	Bin           string   `yaml:"bin"`
	WSEndpoint    string   `yaml:"ws_endpoint"`
	Headless      bool     `yaml:"headless"`
	NoSandbox     bool     `yaml:"no_sandbox"`
	LaunchTimeout Duration `yaml:"launch_timeout"`
}

// StorageConfig selects where artifacts are written.
type StorageConfig struct {
	// Backend is disk, s3 or memory.
	Backend string `yaml:"backend"`
	// Path is the output directory (disk) or bucket/prefix (s3).
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// JournalConfig enables the render journal. An empty backend disables it.
// S3 settings other than the path are shared with StorageConfig.
type JournalConfig struct {
	// Backend is fs, s3 or memory.
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// AdapterConfig configures render completion notifications.
type AdapterConfig struct {
	// Type is redis or webhook. Empty disables notifications.
	Type         string            `yaml:"type"`
	URL          string            `yaml:"url"`
	Channel      string            `yaml:"channel,omitempty"`
	Stream       string            `yaml:"stream,omitempty"`
	StreamMaxLen int64             `yaml:"stream_max_len,omitempty"`
	Headers      map[string]string `yaml:"headers,omitempty"`
	Timeout      Duration          `yaml:"timeout,omitempty"`
	Retries      *int              `yaml:"retries,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() *Config {
	return &Config{
		Listen: ":8080",
		UI: UIConfig{
			BaseURL: "http://localhost:3000",
			Path:    "/chart",
		},
		Render: RenderConfig{
			Selector:      ".page > #chart",
			ErrorSelector: ".page .error",
			ReadyTimeout:  Duration{30 * time.Second},
			Timeout:       Duration{2 * time.Minute},
			MaxSessions:   4,
			Format:        string(types.FormatPNG),
			Quality:       90,
		},
		Cache:   CacheConfig{Capacity: 100},
		Offload: OffloadConfig{Workers: 0},
		Browser: BrowserConfig{
			Headless:      true,
			LaunchTimeout: Duration{30 * time.Second},
		},
		Storage: StorageConfig{
			Backend: "disk",
			Path:    "./output",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Listen == "" {
		add("listen address is required")
	}
	if c.UI.BaseURL == "" {
		add("ui.base_url is required")
	} else if u, err := url.Parse(c.UI.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("ui.base_url must be an http(s) URL, got %q", c.UI.BaseURL)
	}

	if _, ok := types.ParseImageFormat(c.Render.Format); !ok {
		add("render.format must be png or jpeg, got %q", c.Render.Format)
	}
	if c.Render.Quality < 1 || c.Render.Quality > 100 {
		add("render.quality must be in 1..100, got %d", c.Render.Quality)
	}
	if c.Render.MaxSessions < 1 {
		add("render.max_sessions must be >= 1, got %d", c.Render.MaxSessions)
	}
	if c.Render.ReadyTimeout.Duration <= 0 {
		add("render.ready_timeout must be positive")
	}
	if c.Render.Timeout.Duration < 0 {
		add("render.timeout must not be negative")
	} else if t := c.Render.Timeout.Duration; t > 0 && t < c.Render.ReadyTimeout.Duration {
		add("render.timeout (%s) must be >= render.ready_timeout (%s)", t, c.Render.ReadyTimeout.Duration)
	}
	if c.Cache.Capacity < 1 {
		add("cache.capacity must be >= 1, got %d", c.Cache.Capacity)
	}
	if c.Offload.Workers < 0 {
		add("offload.workers must be >= 0, got %d", c.Offload.Workers)
	}

	switch c.Storage.Backend {
	case "disk", "s3":
		if c.Storage.Path == "" {
			add("storage.path is required for backend %q", c.Storage.Backend)
		}
	case "memory":
	default:
		add("storage.backend must be disk, s3 or memory, got %q", c.Storage.Backend)
	}

	switch c.Journal.Backend {
	case "":
	case "fs", "s3":
		if c.Journal.Path == "" {
			add("journal.path is required for backend %q", c.Journal.Backend)
		}
	case "memory":
	default:
		add("journal.backend must be fs, s3 or memory, got %q", c.Journal.Backend)
	}

	switch c.Adapter.Type {
	case "":
	case "redis", "webhook":
		if c.Adapter.URL == "" {
			add("adapter.url is required for adapter %q", c.Adapter.Type)
		}
		if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
			add("adapter.retries must be >= 0, got %d", *c.Adapter.Retries)
		}
	default:
		add("adapter.type must be redis or webhook, got %q", c.Adapter.Type)
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
// An empty string leaves the current value untouched.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", node.Line, err)
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration in time.Duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

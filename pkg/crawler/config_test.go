package crawler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adrg/xdg"

	crawlerrors "github.com/PentesterFlow/sitecrawl/internal/errors"
	"github.com/PentesterFlow/sitecrawl/internal/scope"
	"github.com/PentesterFlow/sitecrawl/internal/store"
)

// =============================================================================
// DefaultConfig Tests
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if config.MaxPages != 0 {
		t.Errorf("MaxPages = %d, want 0", config.MaxPages)
	}
	if config.State.HardCutoverPages != 1000 {
		t.Errorf("State.HardCutoverPages = %d, want 1000", config.State.HardCutoverPages)
	}
	if config.State.LatencyRatio != 20 {
		t.Errorf("State.LatencyRatio = %v, want 20", config.State.LatencyRatio)
	}
	if config.FlushInterval != time.Minute {
		t.Errorf("FlushInterval = %v, want 1m", config.FlushInterval)
	}
	if config.Store.Backend != store.BackendBolt {
		t.Errorf("Store.Backend = %q, want bolt", config.Store.Backend)
	}
	if len(config.Blacklist) != len(scope.DefaultBlacklist) {
		t.Errorf("Blacklist = %v", config.Blacklist)
	}
	if config.Screenshot.Enabled {
		t.Error("screenshots should be disabled by default")
	}

	config.Blacklist[0] = "changed"
	if scope.DefaultBlacklist[0] == "changed" {
		t.Error("DefaultConfig should copy the default blacklist")
	}
}

// =============================================================================
// Validate Tests
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing target", func(c *Config) { c.Target = "" }, true},
		{"relative target", func(c *Config) { c.Target = "/docs" }, true},
		{"negative max pages", func(c *Config) { c.MaxPages = -1 }, true},
		{"negative flush interval", func(c *Config) { c.FlushInterval = -time.Second }, true},
		{"negative cutover", func(c *Config) { c.State.HardCutoverPages = -1 }, true},
		{"negative ratio", func(c *Config) { c.State.LatencyRatio = -2 }, true},
		{"sqlite", func(c *Config) { c.Store.Backend = store.BackendSQLite }, false},
		{"redis with address", func(c *Config) {
			c.Store = store.Config{Backend: store.BackendRedis, Redis: store.RedisConfig{Address: "localhost:6379"}}
		}, false},
		{"redis without address", func(c *Config) { c.Store.Backend = store.BackendRedis }, true},
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongo" }, true},
		{"bad screenshot format", func(c *Config) {
			c.Screenshot.Enabled = true
			c.Screenshot.Format = "gif"
		}, true},
		{"disabled screenshot format ignored", func(c *Config) { c.Screenshot.Format = "gif" }, false},
		{"log level", func(c *Config) { c.LogLevel = "debug" }, false},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.Target = "https://example.com"
			tt.modify(config)

			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && crawlerrors.GetErrorType(err) != crawlerrors.Configuration {
				t.Errorf("error type = %v, want configuration", crawlerrors.GetErrorType(err))
			}
		})
	}
}

// =============================================================================
// Resolve Tests
// =============================================================================

func TestProjectDirFor(t *testing.T) {
	dir, err := ProjectDirFor("https://Example.com:8443/start")
	if err != nil {
		t.Fatalf("ProjectDirFor() error = %v", err)
	}
	want := filepath.Join(xdg.DataHome, AppName, "example.com_8443")
	if dir != want {
		t.Errorf("ProjectDirFor() = %q, want %q", dir, want)
	}
}

func TestConfig_Resolve(t *testing.T) {
	tests := []struct {
		name      string
		backend   string
		wantStore string
	}{
		{"bolt", store.BackendBolt, "crawl.db"},
		{"default backend", "", "crawl.db"},
		{"sqlite", store.BackendSQLite, "crawl.sqlite"},
		{"memory", store.BackendMemory, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.Target = "https://example.com"
			config.ProjectDir = "/data/example"
			config.Store.Backend = tt.backend

			if err := config.Resolve(); err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}

			wantPath := ""
			if tt.wantStore != "" {
				wantPath = filepath.Join("/data/example", tt.wantStore)
			}
			if config.Store.Path != wantPath {
				t.Errorf("Store.Path = %q, want %q", config.Store.Path, wantPath)
			}
			if config.Screenshot.Dir != filepath.Join("/data/example", "screenshots") {
				t.Errorf("Screenshot.Dir = %q", config.Screenshot.Dir)
			}
		})
	}
}

func TestConfig_ResolveKeepsExplicitPaths(t *testing.T) {
	config := DefaultConfig()
	config.Target = "https://example.com"
	config.Store.Path = "/tmp/custom.db"
	config.Screenshot.Dir = "/tmp/shots"

	if err := config.Resolve(); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if config.Store.Path != "/tmp/custom.db" || config.Screenshot.Dir != "/tmp/shots" {
		t.Errorf("explicit paths overwritten: %q, %q", config.Store.Path, config.Screenshot.Dir)
	}
	if !strings.HasPrefix(config.ProjectDir, xdg.DataHome) {
		t.Errorf("ProjectDir = %q, want under %q", config.ProjectDir, xdg.DataHome)
	}
}

func TestConfig_ResolveRedisPrefix(t *testing.T) {
	config := DefaultConfig()
	config.Target = "https://Example.com"
	config.ProjectDir = t.TempDir()
	config.Store = store.Config{Backend: store.BackendRedis, Redis: store.RedisConfig{Address: "localhost:6379"}}

	if err := config.Resolve(); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if config.Store.Redis.Prefix != "sitecrawl:example.com" {
		t.Errorf("Redis.Prefix = %q", config.Store.Redis.Prefix)
	}
}

// =============================================================================
// File Tests
// =============================================================================

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.yaml")
	content := `
target: https://example.com
max_pages: 25
blacklist: [logout, ".pdf"]
flush_interval: 30s
store:
  backend: sqlite
state:
  hard_cutover_pages: 50
  latency_ratio: 10
  probe_interval: 2m
fetch:
  requests_per_second: 3
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if config.Target != "https://example.com" || config.MaxPages != 25 {
		t.Errorf("Target = %q, MaxPages = %d", config.Target, config.MaxPages)
	}
	if len(config.Blacklist) != 2 || config.Blacklist[1] != ".pdf" {
		t.Errorf("Blacklist = %v", config.Blacklist)
	}
	if config.FlushInterval != 30*time.Second {
		t.Errorf("FlushInterval = %v, want 30s", config.FlushInterval)
	}
	if config.Store.Backend != store.BackendSQLite {
		t.Errorf("Store.Backend = %q", config.Store.Backend)
	}
	if config.State.HardCutoverPages != 50 || config.State.LatencyRatio != 10 || config.State.ProbeInterval != 2*time.Minute {
		t.Errorf("State = %+v", config.State)
	}
	if config.Fetch.RequestsPerSecond != 3 {
		t.Errorf("Fetch.RequestsPerSecond = %v", config.Fetch.RequestsPerSecond)
	}
	// Unset sections keep their defaults.
	if config.Fetch.Timeout != 15*time.Second {
		t.Errorf("Fetch.Timeout = %v, want default", config.Fetch.Timeout)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.json")
	content := `{"target": "https://example.com", "max_pages": 7, "store": {"backend": "memory"}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if config.MaxPages != 7 || config.Store.Backend != store.BackendMemory {
		t.Errorf("config = %+v", config)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("target: [unclosed"), 0644)

	for _, path := range []string{filepath.Join(dir, "missing.yaml"), bad} {
		_, err := LoadFromFile(path)
		if err == nil {
			t.Errorf("LoadFromFile(%s) should fail", filepath.Base(path))
			continue
		}
		if crawlerrors.GetErrorType(err) != crawlerrors.Configuration {
			t.Errorf("LoadFromFile(%s) error type = %v", filepath.Base(path), crawlerrors.GetErrorType(err))
		}
	}
}

func TestConfig_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	config := DefaultConfig()
	config.Target = "https://example.com"
	config.MaxPages = 12

	for _, name := range []string{"crawl.yaml", "crawl.json"} {
		path := filepath.Join(dir, name)
		if err := config.SaveToFile(path); err != nil {
			t.Fatalf("SaveToFile(%s) error = %v", name, err)
		}
		loaded, err := LoadFromFile(path)
		if err != nil {
			t.Fatalf("LoadFromFile(%s) error = %v", name, err)
		}
		if loaded.MaxPages != 12 || loaded.Target != config.Target {
			t.Errorf("%s: loaded %+v", name, loaded)
		}
	}
}

func TestConfig_Clone(t *testing.T) {
	config := DefaultConfig()
	config.Target = "https://example.com"
	config.Fetch.Headers = map[string]string{"X-Test": "1"}

	clone := config.Clone()
	clone.Fetch.Headers["X-Test"] = "2"
	clone.Blacklist = append(clone.Blacklist, "extra")

	if config.Fetch.Headers["X-Test"] != "1" {
		t.Error("Clone() should deep-copy headers")
	}
	if len(config.Blacklist) == len(clone.Blacklist) {
		t.Error("Clone() should deep-copy the blacklist")
	}
}

// =============================================================================
// Option and Status Tests
// =============================================================================

func TestOptions(t *testing.T) {
	c := &Crawler{config: DefaultConfig()}
	opts := []Option{
		WithTarget("https://example.com"),
		WithMaxPages(9),
		WithBlacklist("logout"),
		WithHardCutover(10),
		WithLatencyRatio(5),
		WithStartPersistent(true),
		WithFlushInterval(time.Second),
		WithRateLimit(2, 3),
		WithUserAgent("bot/1"),
		WithCustomHeaders(map[string]string{"X-A": "b"}),
		WithScreenshots("/shots"),
		WithVerbose(true),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			t.Fatalf("option error = %v", err)
		}
	}

	cfg := c.config
	if cfg.MaxPages != 9 || len(cfg.Blacklist) != 1 {
		t.Errorf("MaxPages = %d, Blacklist = %v", cfg.MaxPages, cfg.Blacklist)
	}
	if cfg.State.HardCutoverPages != 10 || cfg.State.LatencyRatio != 5 || !cfg.State.StartPersistent {
		t.Errorf("State = %+v", cfg.State)
	}
	if cfg.FlushInterval != time.Second {
		t.Errorf("FlushInterval = %v", cfg.FlushInterval)
	}
	if cfg.Fetch.RequestsPerSecond != 2 || cfg.Fetch.Burst != 3 {
		t.Errorf("Fetch rate = %v/%d", cfg.Fetch.RequestsPerSecond, cfg.Fetch.Burst)
	}
	if cfg.Fetch.UserAgent != "bot/1" || cfg.Screenshot.UserAgent != "bot/1" {
		t.Error("WithUserAgent should set both clients")
	}
	if cfg.Fetch.Headers["X-A"] != "b" || cfg.Screenshot.Headers["X-A"] != "b" {
		t.Error("WithCustomHeaders should set both clients")
	}
	if !cfg.Screenshot.Enabled || cfg.Screenshot.Dir != "/shots" {
		t.Errorf("Screenshot = %+v", cfg.Screenshot)
	}
	if !cfg.Verbose {
		t.Error("Verbose should be set")
	}
}

func TestStatus_Terminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{Idle, false},
		{Running, false},
		{Ending, false},
		{PageLimitReached, true},
		{FrontierExhausted, true},
		{AlreadyCrawling, true},
		{Cancelled, true},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("Terminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

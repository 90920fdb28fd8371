package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/sitecrawl/internal/batch"
	crawlerrors "github.com/PentesterFlow/sitecrawl/internal/errors"
	"github.com/PentesterFlow/sitecrawl/internal/fetch"
	"github.com/PentesterFlow/sitecrawl/internal/output"
	"github.com/PentesterFlow/sitecrawl/internal/scope"
	"github.com/PentesterFlow/sitecrawl/internal/screenshot"
	"github.com/PentesterFlow/sitecrawl/internal/state"
	"github.com/PentesterFlow/sitecrawl/internal/store"
)

// AppName names the application data directory.
const AppName = "sitecrawl"

// Config holds all crawler configuration.
type Config struct {
	// Target URL to crawl
	Target string `json:"target" yaml:"target"`

	// Maximum number of pages to fetch, 0 for no limit
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	// Substrings that exclude a link
	Blacklist []string `json:"blacklist" yaml:"blacklist"`

	// Directory for the lock marker, the store file and screenshots.
	// Defaults to $XDG_DATA_HOME/sitecrawl/<host>.
	ProjectDir string `json:"project_dir" yaml:"project_dir"`

	// Persistent store
	Store store.Config `json:"store" yaml:"store"`

	// Mode switch thresholds
	State state.Config `json:"state" yaml:"state"`

	// Time between opportunistic cache flushes
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`

	// HTTP client
	Fetch fetch.Config `json:"fetch" yaml:"fetch"`

	// Screenshot capture
	Screenshot screenshot.Config `json:"screenshot" yaml:"screenshot"`

	// Page and summary output
	Output output.Config `json:"output" yaml:"output"`

	// Log level (debug, info, warn, error)
	LogLevel string `json:"log_level" yaml:"log_level"`

	// Verbose logging
	Verbose bool `json:"verbose" yaml:"verbose"`

	// Debug mode
	Debug bool `json:"debug" yaml:"debug"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Blacklist:     append([]string(nil), scope.DefaultBlacklist...),
		Store:         store.Config{Backend: store.BackendBolt},
		State:         state.DefaultConfig(),
		FlushInterval: batch.DefaultInterval,
		Fetch:         fetch.DefaultConfig(),
		Screenshot:    screenshot.DefaultConfig(),
		Output: output.Config{
			Format: "jsonl",
		},
	}
}

// LoadFromFile loads configuration from a file (JSON or YAML).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, crawlerrors.NewConfigError("failed to read config file", err)
	}

	config := DefaultConfig()

	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, crawlerrors.NewConfigError("failed to parse config file", err)
		}
		return config, nil
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, crawlerrors.NewConfigError("failed to parse config file", err)
	}
	return config, nil
}

// SaveToFile saves configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Target == "" {
		return crawlerrors.NewConfigError("target URL is required", nil)
	}
	if !scope.IsValidURL(c.Target) {
		return crawlerrors.NewConfigError(fmt.Sprintf("target %q is not an http(s) URL", c.Target), nil)
	}
	if c.MaxPages < 0 {
		return crawlerrors.NewConfigError("max pages must not be negative", nil)
	}
	if c.FlushInterval < 0 {
		return crawlerrors.NewConfigError("flush interval must not be negative", nil)
	}
	if c.State.HardCutoverPages < 0 {
		return crawlerrors.NewConfigError("hard cutover pages must not be negative", nil)
	}
	if c.State.LatencyRatio < 0 {
		return crawlerrors.NewConfigError("latency ratio must not be negative", nil)
	}

	switch c.Store.Backend {
	case "", store.BackendBolt, store.BackendSQLite, store.BackendMemory:
	case store.BackendRedis:
		if c.Store.Redis.Address == "" {
			return crawlerrors.NewConfigError("redis store requires an address", nil)
		}
	default:
		return crawlerrors.NewConfigError(fmt.Sprintf("unknown store backend %q", c.Store.Backend), nil)
	}

	if c.Screenshot.Enabled {
		switch c.Screenshot.Format {
		case "", screenshot.FormatPNG, screenshot.FormatJPEG:
		default:
			return crawlerrors.NewConfigError(fmt.Sprintf("unsupported screenshot format %q", c.Screenshot.Format), nil)
		}
	}

	if c.LogLevel != "" {
		if _, err := parseLevel(c.LogLevel); err != nil {
			return crawlerrors.NewConfigError(fmt.Sprintf("invalid log level %q", c.LogLevel), err)
		}
	}

	return nil
}

// ProjectDirFor returns the default project directory of target.
func ProjectDirFor(target string) (string, error) {
	host, err := scope.ExtractHost(target)
	if err != nil {
		return "", err
	}
	host = strings.ReplaceAll(strings.ToLower(host), ":", "_")
	return filepath.Join(xdg.DataHome, AppName, host), nil
}

// Resolve fills in the paths derived from the target. It expects a valid
// configuration.
func (c *Config) Resolve() error {
	if c.ProjectDir == "" {
		dir, err := ProjectDirFor(c.Target)
		if err != nil {
			return crawlerrors.NewConfigError("cannot derive project directory", err)
		}
		c.ProjectDir = dir
	}

	if c.Store.Backend == "" {
		c.Store.Backend = store.BackendBolt
	}
	if c.Store.Path == "" {
		switch c.Store.Backend {
		case store.BackendBolt:
			c.Store.Path = filepath.Join(c.ProjectDir, "crawl.db")
		case store.BackendSQLite:
			c.Store.Path = filepath.Join(c.ProjectDir, "crawl.sqlite")
		}
	}
	if c.Store.Backend == store.BackendRedis && c.Store.Redis.Prefix == "" {
		host, _ := scope.ExtractHost(c.Target)
		c.Store.Redis.Prefix = AppName + ":" + strings.ToLower(host)
	}

	if c.Screenshot.Dir == "" {
		c.Screenshot.Dir = filepath.Join(c.ProjectDir, "screenshots")
	}
	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := json.Marshal(c)
	clone := &Config{}
	json.Unmarshal(data, clone)
	return clone
}

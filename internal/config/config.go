// Package config handles spacedump configuration from YAML files and flags.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level spacedump configuration. It is built once at
// startup and passed by pointer into discovery, the export machine, and
// the orchestrator. Nothing mutates it after load.
type Config struct {
	// Space is the target space reference: a full space URL or a bare key.
	Space string `yaml:"space"`

	// OutputDir is the destination root for exported PDFs, the history
	// ledger, and diagnostic output.
	OutputDir string `yaml:"output_dir"`

	// SessionFile is where the authenticated session cookies are read from
	// and written back to.
	SessionFile string `yaml:"session_file"`

	Browser   BrowserConfig   `yaml:"browser"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Export    ExportConfig    `yaml:"export"`

	Logger *slog.Logger `yaml:"-"`
}

// BrowserConfig controls the Chrome session.
type BrowserConfig struct {
	// Remote is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	Remote string `yaml:"remote"`

	// Mode is "headless" or "headful". Headful is for the manual login
	// bootstrap run.
	Mode string `yaml:"mode"`
}

// DiscoveryConfig selects and tunes the page enumeration strategy.
type DiscoveryConfig struct {
	// Strategy is "api" (listing REST pagination) or "scroll"
	// (navigate the listing view and scrape anchors).
	Strategy string `yaml:"strategy"`

	// PageSize is the listing API page size. Default: 50.
	PageSize int `yaml:"page_size"`

	// MaxScrolls bounds the scroll strategy so a broken infinite-scroll
	// UI cannot hang discovery. Default: 50.
	MaxScrolls int `yaml:"max_scrolls"`
}

// ExportConfig tunes the per-page export state machine.
type ExportConfig struct {
	// Timeout is the per-UI-action ceiling (element lookup, click,
	// navigation settle). Default: 10s.
	Timeout time.Duration `yaml:"timeout"`

	// ProcessingTimeout is how long to wait for server-side PDF
	// generation before giving up on the attempt. Default: 60s.
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`

	// DownloadTimeout bounds the download capture once the ready control
	// has been activated. Default: 60s.
	DownloadTimeout time.Duration `yaml:"download_timeout"`

	// RetryOnError enables bounded per-page retry. Default: true.
	RetryOnError bool `yaml:"retry_on_error"`

	// MaxRetries is the number of additional attempts after the first.
	// Default: 3.
	MaxRetries int `yaml:"max_retries"`

	// Cooldown separates attempts of the same page. Default: 5s.
	Cooldown time.Duration `yaml:"cooldown"`

	// Pacing is the fixed delay after every page, success or failure,
	// to stay under the remote service's rate-limit defenses. Default: 3s.
	Pacing time.Duration `yaml:"pacing"`

	// Direct enables the undocumented direct-endpoint download before the
	// UI click-through. Off by default: the endpoint is faster but has
	// not been verified across service releases.
	Direct bool `yaml:"direct"`
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Config{}
	// Pre-seed toggles whose default is "on" so that an absent key does
	// not silently disable them.
	cfg.Export.RetryOnError = true

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values. Safe to call more than once.
func (c *Config) ApplyDefaults() {
	if c.OutputDir == "" {
		c.OutputDir = "exports"
	}
	if c.SessionFile == "" {
		c.SessionFile = "session.json"
	}
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Discovery.Strategy == "" {
		c.Discovery.Strategy = "api"
	}
	if c.Discovery.PageSize <= 0 {
		c.Discovery.PageSize = 50
	}
	if c.Discovery.MaxScrolls <= 0 {
		c.Discovery.MaxScrolls = 50
	}
	if c.Export.Timeout <= 0 {
		c.Export.Timeout = 10 * time.Second
	}
	if c.Export.ProcessingTimeout <= 0 {
		c.Export.ProcessingTimeout = 60 * time.Second
	}
	if c.Export.DownloadTimeout <= 0 {
		c.Export.DownloadTimeout = 60 * time.Second
	}
	if c.Export.MaxRetries <= 0 {
		c.Export.MaxRetries = 3
	}
	if c.Export.Cooldown <= 0 {
		c.Export.Cooldown = 5 * time.Second
	}
	if c.Export.Pacing <= 0 {
		c.Export.Pacing = 3 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate checks that the configuration is runnable.
func (c *Config) Validate() error {
	if c.Space == "" {
		return fmt.Errorf("config: space reference is required")
	}
	switch c.Discovery.Strategy {
	case "api", "scroll":
	default:
		return fmt.Errorf("config: unknown discovery strategy %q", c.Discovery.Strategy)
	}
	switch c.Browser.Mode {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: unknown browser mode %q", c.Browser.Mode)
	}
	return nil
}

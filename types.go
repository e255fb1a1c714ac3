package spacedump

import (
	"github.com/hazyhaar/spacedump/internal/browser"
	"github.com/hazyhaar/spacedump/internal/config"
	"github.com/hazyhaar/spacedump/internal/discover"
	"github.com/hazyhaar/spacedump/internal/export"
)

// Config is the top-level configuration. Re-exported from internal.
type Config = config.Config

// PageRecord identifies one page of a space.
type PageRecord = discover.PageRecord

// Space is the resolved space metadata.
type Space = discover.Space

// Outcome is the per-page export result.
type Outcome = export.Outcome

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// Errors callers branch on.
var (
	ErrAuthentication     = discover.ErrAuthentication
	ErrSpaceKeyResolution = discover.ErrSpaceKeyResolution
	ErrNoSession          = browser.ErrNoSession
)

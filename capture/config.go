package capture

import (
	"github.com/hazyhaar/pagesnap/capture/internal/config"
)

// Config is the top-level pagesnap configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls how Chromium is found and launched.
type BrowserConfig = config.BrowserConfig

// HTTPConfig controls the HTTP surface.
type HTTPConfig = config.HTTPConfig

// JournalConfig enables the SQLite capture journal.
type JournalConfig = config.JournalConfig

// Lifecycle modes.
const (
	ModeCached  = config.ModeCached
	ModePerCall = config.ModePerCall
)

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// LoadConfig reads path (may be empty) and overlays the process environment.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path, nil)
}

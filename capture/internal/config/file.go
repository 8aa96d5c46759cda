// CLAUDE:SUMMARY Defines pagesnap config structs, parses YAML files, overlays environment variables, applies defaults.
// Package config handles pagesnap configuration from YAML files and the
// process environment.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/mstoykov/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/pagesnap/capture/internal/browser"
)

// Lifecycle modes.
const (
	ModeCached  = "cached"   // one browser and one page reused across captures
	ModePerCall = "per-call" // fresh browser per capture, closed afterwards
)

// Config is the top-level pagesnap configuration.
type Config struct {
	Mode              string        `yaml:"mode"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
	Browser           BrowserConfig `yaml:"browser"`
	HTTP              HTTPConfig    `yaml:"http"`
	Journal           JournalConfig `yaml:"journal"`

	// unboundedNav records an explicit zero timeout so defaults keep it.
	unboundedNav bool
}

// BrowserConfig controls how Chromium is found and launched.
type BrowserConfig struct {
	Host          string   `yaml:"host"` // local | serverless | "" (detect)
	Remote        string   `yaml:"remote"`
	ChromiumDir   string   `yaml:"chromium_dir"`
	UnpackDir     string   `yaml:"unpack_dir"`
	ChromeBin     string   `yaml:"chrome_bin"`
	AllowDownload bool     `yaml:"allow_download"`
	NoStealth     bool     `yaml:"no_stealth"`
	Headful       bool     `yaml:"headful"`
	ExtraFlags    []string `yaml:"extra_flags"`
}

// HTTPConfig controls the HTTP surface.
type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	CacheControl   string   `yaml:"cache_control"`
	AllowPrivate   bool     `yaml:"allow_private"` // also lifts the in-browser request filter
	RateLimit      float64  `yaml:"rate_limit"`    // requests per second per client, 0 = off
	RateBurst      int      `yaml:"rate_burst"`
	TokenHash      string   `yaml:"token_hash"`      // bcrypt hash of the bearer token
	TrustedProxies []string `yaml:"trusted_proxies"` // CIDRs/IPs whose X-Forwarded-For is believed
}

// JournalConfig enables the SQLite capture journal.
type JournalConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// envOverlay lists the variables that override file values. Pointer fields
// stay nil when the variable is unset.
type envOverlay struct {
	Mode              *string        `envconfig:"PAGESNAP_MODE"`
	NavigationTimeout *time.Duration `envconfig:"PAGESNAP_NAV_TIMEOUT"`
	MaxConcurrent     *int           `envconfig:"PAGESNAP_MAX_CONCURRENT"`
	Host              *string        `envconfig:"PAGESNAP_HOST"`
	Remote            *string        `envconfig:"PAGESNAP_REMOTE_URL"`
	ChromiumDir       *string        `envconfig:"PAGESNAP_CHROMIUM_DIR"`
	UnpackDir         *string        `envconfig:"PAGESNAP_UNPACK_DIR"`
	ChromeBin         *string        `envconfig:"PAGESNAP_CHROME_BIN"`
	AllowDownload     *bool          `envconfig:"PAGESNAP_ALLOW_DOWNLOAD"`
	Addr              *string        `envconfig:"PAGESNAP_ADDR"`
	Port              *string        `envconfig:"PORT"`
	AllowPrivate      *bool          `envconfig:"PAGESNAP_ALLOW_PRIVATE"`
	TokenHash         *string        `envconfig:"PAGESNAP_TOKEN_HASH"`
	TrustedProxies    *[]string      `envconfig:"PAGESNAP_TRUSTED_PROXIES"`
	JournalPath       *string        `envconfig:"PAGESNAP_JOURNAL"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads a YAML configuration file. Environment overrides are not
// applied; see Load.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var raw struct {
		NavigationTimeout *time.Duration `yaml:"navigation_timeout"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.unboundedNav = raw.NavigationTimeout != nil && *raw.NavigationTimeout == 0
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads path (if non-empty) and overlays the environment seen through
// lookup (os.LookupEnv when nil).
func Load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		c, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var env envOverlay
	if err := envconfig.Process("", &env, lookup); err != nil {
		return fmt.Errorf("config: env: %w", err)
	}

	setString(&c.Mode, env.Mode)
	if env.NavigationTimeout != nil {
		c.NavigationTimeout = *env.NavigationTimeout
		c.unboundedNav = *env.NavigationTimeout == 0
	}
	if env.MaxConcurrent != nil {
		c.MaxConcurrent = *env.MaxConcurrent
	}
	setString(&c.Browser.Host, env.Host)
	setString(&c.Browser.Remote, env.Remote)
	setString(&c.Browser.ChromiumDir, env.ChromiumDir)
	setString(&c.Browser.UnpackDir, env.UnpackDir)
	setString(&c.Browser.ChromeBin, env.ChromeBin)
	if env.AllowDownload != nil {
		c.Browser.AllowDownload = *env.AllowDownload
	}
	if env.Port != nil && *env.Port != "" {
		c.HTTP.Addr = ":" + strings.TrimPrefix(*env.Port, ":")
	}
	setString(&c.HTTP.Addr, env.Addr)
	if env.AllowPrivate != nil {
		c.HTTP.AllowPrivate = *env.AllowPrivate
	}
	setString(&c.HTTP.TokenHash, env.TokenHash)
	if env.TrustedProxies != nil {
		c.HTTP.TrustedProxies = *env.TrustedProxies
	}
	setString(&c.Journal.Path, env.JournalPath)

	c.applyDefaults()
	return c.Validate()
}

func setString(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

// UnboundedNavigation reports whether navigation has no timeout.
func (c *Config) UnboundedNavigation() bool {
	return c.unboundedNav
}

// SetUnboundedNavigation disables the navigation timeout.
func (c *Config) SetUnboundedNavigation() {
	c.unboundedNav = true
	c.NavigationTimeout = 0
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeCached, ModePerCall:
	default:
		return fmt.Errorf("config: unknown mode %q (want %s or %s)", c.Mode, ModeCached, ModePerCall)
	}
	if c.Browser.Host != "" {
		if _, err := browser.ParseHost(c.Browser.Host); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if c.NavigationTimeout < 0 {
		return fmt.Errorf("config: negative navigation timeout")
	}
	for _, p := range c.HTTP.TrustedProxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			return fmt.Errorf("config: trusted proxy %q is neither an IP nor a CIDR", p)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeCached
	}
	if c.NavigationTimeout <= 0 && !c.unboundedNav {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 2
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8090"
	}
	if c.HTTP.CacheControl == "" {
		c.HTTP.CacheControl = "public, immutable, no-transform, s-maxage=86400, max-age=86400"
	}
	if c.HTTP.RateLimit > 0 && c.HTTP.RateBurst <= 0 {
		c.HTTP.RateBurst = int(c.HTTP.RateLimit) + 1
	}
	if c.Journal.RetentionDays <= 0 {
		c.Journal.RetentionDays = 30
	}
}

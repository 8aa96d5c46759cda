// CLAUDE:SUMMARY Driver abstractions (Launcher, Browser, Page) and the immutable launch configuration they consume.
// Package browser resolves how Chromium is launched on the current host and
// wraps Rod behind small Launcher/Browser/Page interfaces so the capture
// service can own the lifecycle without depending on Rod directly.
package browser

import (
	"context"
	"strings"
)

// DeviceScaleFactor is applied to every viewport. A 1280x720 viewport
// rasterises to a 2560x1440 PNG.
const DeviceScaleFactor = 2

// Default viewport dimensions used when a request leaves them unset.
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

// UserAgent is the desktop Chrome UA set on every page opened by the cache.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Flag is a single Chromium command-line switch without the leading dashes.
type Flag struct {
	Name   string
	Values []string
}

// String renders the flag as it appears on the command line.
func (f Flag) String() string {
	if len(f.Values) == 0 {
		return "--" + f.Name
	}
	return "--" + f.Name + "=" + strings.Join(f.Values, ",")
}

// LaunchConfig is the outcome of environment resolution. Build one with
// Resolve; it is not modified afterwards.
type LaunchConfig struct {
	Host           Host
	Headless       bool
	Flags          []Flag
	ExecutablePath string

	// RemoteURL, when set, makes the launcher connect to an existing
	// Chrome DevTools endpoint instead of spawning a process.
	RemoteURL string

	// Leakless keeps Rod's guard process that kills Chrome if we die.
	// Disabled on serverless hosts where /tmp is the only writable path.
	Leakless bool
}

// HasFlag reports whether the configuration carries the named flag.
func (c LaunchConfig) HasFlag(name string) bool {
	for _, f := range c.Flags {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Viewport is the visible page area used for rendering and capture.
type Viewport struct {
	Width       int
	Height      int
	ScaleFactor float64
}

// Launcher starts (or connects to) a browser from a LaunchConfig.
type Launcher interface {
	Launch(ctx context.Context, cfg LaunchConfig) (Browser, error)
}

// Browser is a running browser process.
type Browser interface {
	// NewPage opens a blank tab.
	NewPage(ctx context.Context) (Page, error)
	// Alive reports whether the browser still answers DevTools calls.
	Alive(ctx context.Context) bool
	// Close terminates the browser and releases its resources.
	Close() error
}

// Page is a single browser tab.
type Page interface {
	SetUserAgent(ctx context.Context, ua string) error
	SetViewport(ctx context.Context, vp Viewport) error
	// Navigate loads url and returns once the network is almost idle.
	// A context deadline surfaces as context.DeadlineExceeded.
	Navigate(ctx context.Context, url string) error
	// Screenshot captures the visible viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	IsClosed() bool
	Close() error
}

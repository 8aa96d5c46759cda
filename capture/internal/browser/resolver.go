// CLAUDE:SUMMARY Chooses serverless vs local launch strategy from environment signals and builds the LaunchConfig.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mstoykov/envconfig"
)

// Host identifies where the process runs, which drives binary lookup and
// the Chromium flag set.
type Host int

const (
	HostLocal      Host = iota // developer machine, full Chrome install
	HostServerless             // constrained function host, bundled minimal Chromium
)

func (h Host) String() string {
	switch h {
	case HostServerless:
		return "serverless"
	default:
		return "local"
	}
}

// ParseHost maps a host name to a Host. Accepted: local, dev, serverless,
// lambda, vercel (case-insensitive). Config validation and PAGESNAP_HOST
// both go through it.
func ParseHost(s string) (Host, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "dev":
		return HostLocal, nil
	case "serverless", "lambda", "vercel":
		return HostServerless, nil
	}
	return HostLocal, fmt.Errorf("browser: unknown host %q", s)
}

// ErrBinaryNotFound is returned when no Chromium executable can be located.
var ErrBinaryNotFound = errors.New("browser: chromium binary not found")

// Signals are the ambient environment markers consulted by DetectHost.
type Signals struct {
	VercelEnv    string `envconfig:"VERCEL_ENV"`
	LambdaName   string `envconfig:"AWS_LAMBDA_FUNCTION_NAME"`
	Netlify      string `envconfig:"NETLIFY"`
	Dev          bool   `envconfig:"PAGESNAP_DEV"`
	ExplicitHost string `envconfig:"PAGESNAP_HOST"`
}

// LoadSignals reads Signals through lookup. A nil lookup reads the process
// environment.
func LoadSignals(lookup func(string) (string, bool)) (Signals, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var s Signals
	if err := envconfig.Process("", &s, lookup); err != nil {
		return Signals{}, fmt.Errorf("browser: env signals: %w", err)
	}
	if s.ExplicitHost != "" {
		if _, err := ParseHost(s.ExplicitHost); err != nil {
			return Signals{}, fmt.Errorf("browser: env signals: PAGESNAP_HOST: %w", err)
		}
	}
	return s, nil
}

// DetectHost picks the host kind. An explicit PAGESNAP_HOST wins, then the
// development flag, then any platform marker. LoadSignals has already
// rejected an unknown explicit host.
func DetectHost(s Signals) Host {
	if s.ExplicitHost != "" {
		if h, err := ParseHost(s.ExplicitHost); err == nil {
			return h
		}
	}
	if s.Dev {
		return HostLocal
	}
	if s.VercelEnv != "" || s.LambdaName != "" || s.Netlify != "" {
		return HostServerless
	}
	return HostLocal
}

// BinaryProvider locates a Chromium executable. Lookups may unpack or
// download, so they take a context.
type BinaryProvider interface {
	ExecutablePath(ctx context.Context) (string, error)
}

// ResolveOptions tweak Resolve beyond the host defaults.
type ResolveOptions struct {
	RemoteURL  string
	Headful    bool
	ExtraFlags []Flag
}

// Resolve builds the LaunchConfig for host. When opts.RemoteURL is set no
// binary is looked up.
func Resolve(ctx context.Context, host Host, provider BinaryProvider, opts ResolveOptions) (LaunchConfig, error) {
	cfg := LaunchConfig{
		Host:     host,
		Headless: !opts.Headful,
		Leakless: host == HostLocal,
	}

	switch host {
	case HostServerless:
		cfg.Flags = serverlessFlags()
	default:
		cfg.Flags = localFlags()
	}
	cfg.Flags = mergeFlags(cfg.Flags, opts.ExtraFlags)

	if opts.RemoteURL != "" {
		cfg.RemoteURL = opts.RemoteURL
		return cfg, nil
	}

	if provider == nil {
		return LaunchConfig{}, fmt.Errorf("browser: resolve %s: %w", host, ErrBinaryNotFound)
	}
	path, err := provider.ExecutablePath(ctx)
	if err != nil {
		return LaunchConfig{}, fmt.Errorf("browser: resolve %s: %w", host, err)
	}
	cfg.ExecutablePath = path
	return cfg, nil
}

func localFlags() []Flag {
	return []Flag{
		{Name: "no-sandbox"},
		{Name: "disable-setuid-sandbox"},
		{Name: "disable-blink-features", Values: []string{"AutomationControlled"}},
	}
}

// serverlessFlags is the union of the switches needed on function hosts:
// no sandbox, no GPU, /dev/shm is tiny, and a single process keeps memory
// under the function limit.
func serverlessFlags() []Flag {
	return []Flag{
		{Name: "no-sandbox"},
		{Name: "disable-setuid-sandbox"},
		{Name: "disable-dev-shm-usage"},
		{Name: "disable-gpu"},
		{Name: "single-process"},
		{Name: "no-zygote"},
		{Name: "hide-scrollbars"},
		{Name: "mute-audio"},
		{Name: "disable-blink-features", Values: []string{"AutomationControlled"}},
	}
}

// mergeFlags appends extra to base; an extra flag with the same name
// replaces the base entry in place.
func mergeFlags(base, extra []Flag) []Flag {
	out := make([]Flag, len(base))
	copy(out, base)
	for _, e := range extra {
		replaced := false
		for i := range out {
			if out[i].Name == e.Name {
				out[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, e)
		}
	}
	return out
}

// ParseFlag turns "--name=a,b" or "name" into a Flag.
func ParseFlag(s string) Flag {
	s = strings.TrimLeft(strings.TrimSpace(s), "-")
	name, val, ok := strings.Cut(s, "=")
	if !ok || val == "" {
		return Flag{Name: name}
	}
	return Flag{Name: name, Values: strings.Split(val, ",")}
}

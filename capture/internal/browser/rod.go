// CLAUDE:SUMMARY Rod-backed Launcher/Browser/Page: launch or remote connect, stealth tabs, per-request filtering, network-idle navigation, PNG capture.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// livenessTimeout bounds liveness checks so a wedged Chrome cannot stall them.
const livenessTimeout = 3 * time.Second

// filterTimeout bounds one RequestFilter call, DNS included.
const filterTimeout = 5 * time.Second

// RequestFilter vets every request a page issues: the top-level document,
// redirect hops, subresources and websockets. A non-nil error blocks the
// request with net::ERR_BLOCKED_BY_CLIENT.
type RequestFilter func(ctx context.Context, u *url.URL) error

// RodLauncher launches Chrome through Rod's launcher, or connects to a
// remote DevTools endpoint when the config carries one.
type RodLauncher struct {
	// Stealth opens pages through go-rod/stealth to mask automation.
	Stealth bool
	// Filter, when set, intercepts each page request through the Fetch
	// domain. Nil lets everything through.
	Filter RequestFilter
	Logger *slog.Logger
}

// NewRodLauncher returns a launcher with stealth enabled.
func NewRodLauncher(logger *slog.Logger) *RodLauncher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RodLauncher{Stealth: true, Logger: logger}
}

// Launch implements Launcher.
func (r *RodLauncher) Launch(ctx context.Context, cfg LaunchConfig) (Browser, error) {
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}

	var (
		wsURL string
		lnch  *launcher.Launcher
	)

	if cfg.RemoteURL != "" {
		u, err := launcher.ResolveURL(cfg.RemoteURL)
		if err != nil {
			return nil, fmt.Errorf("browser: resolve remote %s: %w", cfg.RemoteURL, err)
		}
		wsURL = u
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		// The process outlives this call, so the launcher is not bound to ctx.
		l := launcher.New().
			Headless(cfg.Headless).
			Leakless(cfg.Leakless)
		if cfg.ExecutablePath != "" {
			l = l.Bin(cfg.ExecutablePath)
		}
		for _, f := range cfg.Flags {
			if f.Name == "no-sandbox" {
				l = l.NoSandbox(true)
				continue
			}
			l = l.Set(flags.Flag(f.Name), f.Values...)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		lnch = l
		log.Info("browser: launched chrome", "host", cfg.Host, "bin", cfg.ExecutablePath, "flags", len(cfg.Flags))
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Kill()
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	return &rodBrowser{
		browser: b,
		lnch:    lnch,
		stealth: r.Stealth,
		filter:  r.Filter,
		logger:  log,
	}, nil
}

type rodBrowser struct {
	browser *rod.Browser
	lnch    *launcher.Launcher
	stealth bool
	filter  RequestFilter
	logger  *slog.Logger

	once     sync.Once
	closeErr error
}

func (b *rodBrowser) NewPage(ctx context.Context) (Page, error) {
	var (
		page *rod.Page
		err  error
	)
	bc := b.browser.Context(ctx)
	if b.stealth {
		page, err = stealth.Page(bc)
	} else {
		page, err = bc.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	// Drop the request context so later calls are bound only by their own.
	p := &rodPage{page: page.Context(context.Background())}
	if b.filter != nil {
		p.router, err = b.guard(p.page)
		if err != nil {
			if cerr := p.page.Close(); cerr != nil {
				b.logger.Warn("browser: close tab after failure", "error", cerr)
			}
			return nil, fmt.Errorf("browser: request filter: %w", err)
		}
	}
	return p, nil
}

// guard routes every request of page through the filter.
func (b *rodBrowser) guard(page *rod.Page) (*rod.HijackRouter, error) {
	router := page.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		u := h.Request.URL()
		ctx, cancel := context.WithTimeout(context.Background(), filterTimeout)
		defer cancel()
		if err := b.filter(ctx, u); err != nil {
			b.logger.Warn("browser: request blocked", "url", u.Redacted(), "error", err)
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return nil, err
	}
	go router.Run()
	return router, nil
}

func (b *rodBrowser) Alive(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, livenessTimeout)
	defer cancel()
	_, err := b.browser.Context(ctx).Version()
	return err == nil
}

func (b *rodBrowser) Close() error {
	b.once.Do(func() {
		b.closeErr = b.browser.Close()
		if b.lnch != nil {
			b.lnch.Cleanup()
		}
	})
	return b.closeErr
}

type rodPage struct {
	page   *rod.Page
	router *rod.HijackRouter

	mu     sync.Mutex
	closed bool
}

func (p *rodPage) SetUserAgent(ctx context.Context, ua string) error {
	return p.page.Context(ctx).SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua})
}

func (p *rodPage) SetViewport(ctx context.Context, vp Viewport) error {
	return p.page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: vp.ScaleFactor,
		Mobile:            false,
	})
}

func (p *rodPage) Navigate(ctx context.Context, target string) error {
	navCtx, cancel := context.WithCancel(ctx)
	defer cancel() // ends whichever wait is still subscribed
	pg := p.page.Context(navCtx)

	// Subscribe before navigating or the events can be missed. A
	// fragment-only change stays in the same document and never reaches
	// network idle, so either event completes the navigation.
	idle := pg.WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
	sameDoc := pg.WaitEvent(&proto.PageNavigatedWithinDocument{})
	if err := pg.Navigate(target); err != nil {
		return err
	}

	done := make(chan struct{}, 2)
	go func() { idle(); done <- struct{}{} }()
	go func() { sameDoc(); done <- struct{}{} }()
	<-done
	return ctx.Err()
}

func (p *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (p *rodPage) IsClosed() bool {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return true
	}
	// The tab may have been closed or crashed behind our back.
	if _, err := p.page.Timeout(livenessTimeout).Info(); err != nil {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		return true
	}
	return false
}

func (p *rodPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.router != nil {
		_ = p.router.Stop() // fails only once the tab is already gone
	}
	return p.page.Close()
}

// CLAUDE:SUMMARY Screenshot capture service: lazily launched browser/page cache guarded by a mutex, per-call mode, classified errors.
// Package capture takes viewport screenshots of web pages with a headless
// Chromium. A Service owns the browser lifecycle: in cached mode it keeps
// one browser and one page alive across captures, in per-call mode it
// launches a browser for every capture and closes it afterwards.
//
// The Chromium binary is located once per launch from the hosting
// environment (bundled minimal Chromium on serverless hosts, a local
// install otherwise), see Config.Browser.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hazyhaar/pagesnap/capture/internal/browser"
	"github.com/hazyhaar/pagesnap/horosafe"
	"github.com/hazyhaar/pagesnap/idgen"
	"github.com/hazyhaar/pagesnap/kit"
	"github.com/hazyhaar/pagesnap/observability"
)

// Request asks for a screenshot of URL. Width and Height <= 0 fall back to
// 1280x720.
type Request struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Result is a captured screenshot. The PNG is Width*Scale by Height*Scale
// pixels.
type Result struct {
	ID       string        `json:"id"`
	URL      string        `json:"url"`
	PNG      []byte        `json:"-"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Scale    float64       `json:"scale"`
	Duration time.Duration `json:"duration"`
}

// Recorder receives one event per capture attempt.
type Recorder interface {
	RecordCapture(ctx context.Context, e observability.CaptureEvent)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithLauncher replaces the Rod launcher.
func WithLauncher(l browser.Launcher) Option {
	return func(s *Service) { s.launcher = l }
}

// WithProvider replaces the host-derived binary provider.
func WithProvider(p browser.BinaryProvider) Option {
	return func(s *Service) { s.provider = p }
}

// WithHost forces the host kind instead of detecting it.
func WithHost(h browser.Host) Option {
	return func(s *Service) { s.host = h; s.hostSet = true }
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRecorder attaches a capture journal.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithIDGenerator sets the capture ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(s *Service) { s.newID = gen }
}

// Service captures screenshots. It is safe for concurrent use.
type Service struct {
	cfg      Config
	host     browser.Host
	hostSet  bool
	provider browser.BinaryProvider
	launcher browser.Launcher
	metrics  *Metrics
	recorder Recorder
	newID    idgen.Generator
	logger   *slog.Logger
	sem      *semaphore.Weighted

	// mu guards the cached handles and is held for a whole cached capture:
	// one page serves one capture at a time.
	mu      sync.Mutex
	browser browser.Browser
	page    browser.Page
	closed  bool
}

// New creates a Service. No browser is launched until the first capture.
func New(cfg *Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:    *cfg,
		newID:  idgen.CaptureID,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}

	if !s.hostSet {
		h, err := s.detectHost()
		if err != nil {
			return nil, err
		}
		s.host = h
	}
	if s.provider == nil {
		s.provider = s.defaultProvider()
	}
	if s.launcher == nil {
		rl := browser.NewRodLauncher(s.logger)
		rl.Stealth = !cfg.Browser.NoStealth
		if !cfg.HTTP.AllowPrivate {
			rl.Filter = requestFilter(net.DefaultResolver)
		}
		s.launcher = rl
	}
	s.sem = semaphore.NewWeighted(int64(max(cfg.MaxConcurrent, 1)))

	s.logger.Info("capture: service ready",
		"mode", s.cfg.Mode, "host", s.host, "nav_timeout", s.cfg.NavigationTimeout)
	return s, nil
}

// requestFilter keeps the browser itself off private addresses: redirect
// hops and subresources are checked the same way client URLs are.
func requestFilter(r horosafe.Resolver) browser.RequestFilter {
	return func(ctx context.Context, u *url.URL) error {
		return horosafe.CheckRequestURL(ctx, r, u)
	}
}

func (s *Service) detectHost() (browser.Host, error) {
	if s.cfg.Browser.Host != "" {
		return browser.ParseHost(s.cfg.Browser.Host)
	}
	sig, err := browser.LoadSignals(nil)
	if err != nil {
		return browser.HostLocal, err
	}
	return browser.DetectHost(sig), nil
}

func (s *Service) defaultProvider() browser.BinaryProvider {
	if s.host == browser.HostServerless {
		return &browser.BundledProvider{
			Dir:       s.cfg.Browser.ChromiumDir,
			UnpackDir: s.cfg.Browser.UnpackDir,
			Logger:    s.logger,
		}
	}
	return &browser.LocalProvider{
		Path:          s.cfg.Browser.ChromeBin,
		AllowDownload: s.cfg.Browser.AllowDownload,
		Logger:        s.logger,
	}
}

// Host reports the hosting environment the service resolved.
func (s *Service) Host() browser.Host { return s.host }

// Mode reports the lifecycle mode.
func (s *Service) Mode() string { return s.cfg.Mode }

// Screenshot returns the PNG bytes of target at width x height (0 = default).
func (s *Service) Screenshot(ctx context.Context, target string, width, height int) ([]byte, error) {
	res, err := s.Capture(ctx, Request{URL: target, Width: width, Height: height})
	if err != nil {
		return nil, err
	}
	return res.PNG, nil
}

// Capture navigates to req.URL and returns a viewport screenshot.
func (s *Service) Capture(ctx context.Context, req Request) (*Result, error) {
	vp := viewportFor(req)
	start := time.Now()

	var (
		png []byte
		err error
	)
	if s.cfg.Mode == ModePerCall {
		png, err = s.capturePerCall(ctx, req.URL, vp)
	} else {
		png, err = s.captureCached(ctx, req.URL, vp)
	}

	res := &Result{
		ID:       s.newID(),
		URL:      req.URL,
		PNG:      png,
		Width:    vp.Width,
		Height:   vp.Height,
		Scale:    vp.ScaleFactor,
		Duration: time.Since(start),
	}
	s.observe(ctx, res, err)

	if err != nil {
		s.logger.Error("capture: failed",
			"id", res.ID, "url", req.URL, "outcome", Outcome(err), "error", err)
		return nil, err
	}
	s.logger.Info("capture: done",
		"id", res.ID, "url", req.URL, "width", vp.Width, "height", vp.Height,
		"bytes", len(png), "elapsed", res.Duration)
	return res, nil
}

func (s *Service) observe(ctx context.Context, res *Result, err error) {
	outcome := Outcome(err)
	s.metrics.observeCapture(outcome, res.Duration)
	if s.recorder == nil {
		return
	}
	e := observability.CaptureEvent{
		ID:       res.ID,
		URL:      res.URL,
		Width:    res.Width,
		Height:   res.Height,
		Scale:    res.Scale,
		Bytes:    len(res.PNG),
		Duration: res.Duration,
		Outcome:  outcome,
		TraceID:  kit.GetTraceID(ctx),
	}
	if err != nil {
		e.Error = err.Error()
	}
	s.recorder.RecordCapture(context.WithoutCancel(ctx), e)
}

func viewportFor(req Request) browser.Viewport {
	vp := browser.Viewport{
		Width:       req.Width,
		Height:      req.Height,
		ScaleFactor: browser.DeviceScaleFactor,
	}
	if vp.Width <= 0 {
		vp.Width = browser.DefaultWidth
	}
	if vp.Height <= 0 {
		vp.Height = browser.DefaultHeight
	}
	return vp
}

// --- cached mode ---

func (s *Service) captureCached(ctx context.Context, target string, vp browser.Viewport) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, &Error{Op: "acquire", URL: target, Kind: ErrClosed}
	}

	page, err := s.acquirePageLocked(ctx)
	if err != nil {
		return nil, err
	}

	png, err := s.shoot(ctx, s.browser, page, target, vp)
	if err != nil {
		s.invalidateLocked(err)
		return nil, err
	}
	return png, nil
}

// acquirePageLocked returns the cached page if still open, otherwise opens
// one on the cached (or freshly launched) browser.
func (s *Service) acquirePageLocked(ctx context.Context) (browser.Page, error) {
	if s.page != nil && !s.page.IsClosed() {
		s.metrics.reused()
		return s.page, nil
	}
	s.page = nil

	b, err := s.acquireBrowserLocked(ctx)
	if err != nil {
		return nil, err
	}

	page, err := s.openPage(ctx, b)
	if err != nil {
		if errors.Is(err, ErrBrowserCrashed) {
			s.dropBrowserLocked()
		}
		return nil, err
	}
	s.page = page
	return page, nil
}

func (s *Service) acquireBrowserLocked(ctx context.Context) (browser.Browser, error) {
	if s.browser != nil {
		if s.browser.Alive(ctx) {
			return s.browser, nil
		}
		s.logger.Warn("capture: cached browser is gone, relaunching")
		s.dropBrowserLocked()
	}

	b, err := s.launch(ctx)
	if err != nil {
		return nil, err
	}
	s.browser = b
	return b, nil
}

// invalidateLocked drops whatever a failed capture may have left degraded:
// the page always, the browser too when it stopped answering.
func (s *Service) invalidateLocked(err error) {
	if s.page != nil {
		if cerr := s.page.Close(); cerr != nil {
			s.logger.Warn("capture: close page after failure", "error", cerr)
		}
		s.page = nil
	}
	if errors.Is(err, ErrBrowserCrashed) {
		s.dropBrowserLocked()
	}
}

func (s *Service) dropBrowserLocked() {
	if s.browser == nil {
		return
	}
	if err := s.browser.Close(); err != nil {
		s.logger.Warn("capture: close browser", "error", err)
	}
	s.browser = nil
	s.page = nil
}

// --- per-call mode ---

func (s *Service) capturePerCall(ctx context.Context, target string, vp browser.Viewport) ([]byte, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, &Error{Op: "acquire", URL: target, Kind: ErrClosed}
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		kind := ErrLaunch
		if isTimeout(err) {
			kind = ErrTimeout
		}
		return nil, &Error{Op: "acquire", URL: target, Kind: kind, Err: err}
	}
	defer s.sem.Release(1)

	b, err := s.launch(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			s.logger.Warn("capture: close browser", "error", cerr)
		}
	}()

	page, err := s.openPage(ctx, b)
	if err != nil {
		return nil, err
	}
	return s.shoot(ctx, b, page, target, vp)
}

// --- shared steps ---

func (s *Service) launch(ctx context.Context) (browser.Browser, error) {
	var extra []browser.Flag
	for _, f := range s.cfg.Browser.ExtraFlags {
		if strings.TrimSpace(f) != "" {
			extra = append(extra, browser.ParseFlag(f))
		}
	}
	lc, err := browser.Resolve(ctx, s.host, s.provider, browser.ResolveOptions{
		RemoteURL:  s.cfg.Browser.Remote,
		Headful:    s.cfg.Browser.Headful,
		ExtraFlags: extra,
	})
	if err != nil {
		kind := ErrLaunch
		if errors.Is(err, ErrBinaryNotFound) {
			kind = ErrBinaryNotFound
		}
		return nil, &Error{Op: "resolve", Kind: kind, Err: err}
	}

	b, err := s.launcher.Launch(ctx, lc)
	if err != nil {
		return nil, &Error{Op: "launch", Kind: ErrLaunch, Err: err}
	}
	s.metrics.launched()
	s.logger.Debug("capture: browser launched", "host", lc.Host, "remote", lc.RemoteURL != "")
	return b, nil
}

func (s *Service) openPage(ctx context.Context, b browser.Browser) (browser.Page, error) {
	page, err := b.NewPage(ctx)
	if err != nil {
		return nil, s.classify(ctx, b, "page", "", ErrLaunch, err)
	}
	if err := page.SetUserAgent(ctx, browser.UserAgent); err != nil {
		if cerr := page.Close(); cerr != nil {
			s.logger.Warn("capture: close page after failure", "error", cerr)
		}
		return nil, s.classify(ctx, b, "page", "", ErrLaunch, err)
	}
	return page, nil
}

// shoot sets the viewport before navigating so layout-dependent pages
// render at the final size, then captures the visible area.
func (s *Service) shoot(ctx context.Context, b browser.Browser, page browser.Page, target string, vp browser.Viewport) ([]byte, error) {
	if err := page.SetViewport(ctx, vp); err != nil {
		return nil, s.classify(ctx, b, "viewport", target, ErrNavigation, err)
	}

	navCtx := ctx
	if s.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, s.cfg.NavigationTimeout)
		defer cancel()
	}
	if err := page.Navigate(navCtx, target); err != nil {
		return nil, s.classify(ctx, b, "navigate", target, ErrNavigation, err)
	}

	png, err := page.Screenshot(ctx)
	if err != nil {
		return nil, s.classify(ctx, b, "screenshot", target, ErrCapture, err)
	}
	if len(png) == 0 {
		return nil, &Error{Op: "screenshot", URL: target, Kind: ErrCapture, Err: errors.New("empty image")}
	}
	return png, nil
}

// classify picks the error kind: deadline → timeout, unresponsive browser
// → crash, otherwise the step's own kind.
func (s *Service) classify(ctx context.Context, b browser.Browser, op, target string, kind, err error) error {
	switch {
	case isTimeout(err):
		kind = ErrTimeout
	case b != nil && !b.Alive(context.WithoutCancel(ctx)):
		kind = ErrBrowserCrashed
	}
	return &Error{Op: op, URL: target, Kind: kind, Err: err}
}

// Cleanup closes the cached page and browser and forgets them. It is safe
// to call at any time, including when nothing is cached; the next capture
// launches a fresh browser.
func (s *Service) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupLocked()
}

func (s *Service) cleanupLocked() error {
	var errs []error
	if s.page != nil {
		if !s.page.IsClosed() {
			if err := s.page.Close(); err != nil {
				s.logger.Warn("capture: cleanup page", "error", err)
				errs = append(errs, fmt.Errorf("capture: close page: %w", err))
			}
		}
		s.page = nil
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			s.logger.Warn("capture: cleanup browser", "error", err)
			errs = append(errs, fmt.Errorf("capture: close browser: %w", err))
		}
		s.browser = nil
	}
	return errors.Join(errs...)
}

// Close releases cached handles and rejects further captures.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.cleanupLocked()
}

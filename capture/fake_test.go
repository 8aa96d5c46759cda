package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/pagesnap/capture/internal/browser"
	"github.com/hazyhaar/pagesnap/observability"
)

// fakeLauncher records launches and hands out fakeBrowsers whose pages
// render a blank PNG of the viewport size times the scale factor.
type fakeLauncher struct {
	mu       sync.Mutex
	launches int
	configs  []browser.LaunchConfig
	browsers []*fakeBrowser
	err      error

	// navigate, when set, replaces the default successful navigation.
	navigate func(ctx context.Context, b *fakeBrowser, url string) error
	// uaErr and pageCloseErr are returned by every page's SetUserAgent
	// and Close.
	uaErr        error
	pageCloseErr error

	active    atomic.Int32 // browsers currently open
	maxActive atomic.Int32
}

func (l *fakeLauncher) Launch(_ context.Context, cfg browser.LaunchConfig) (browser.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	l.configs = append(l.configs, cfg)
	if l.err != nil {
		return nil, l.err
	}
	b := &fakeBrowser{l: l, alive: true}
	l.browsers = append(l.browsers, b)
	n := l.active.Add(1)
	for {
		m := l.maxActive.Load()
		if n <= m || l.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	return b, nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

func (l *fakeLauncher) browser(i int) *fakeBrowser {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.browsers[i]
}

type fakeBrowser struct {
	l *fakeLauncher

	mu     sync.Mutex
	alive  bool
	closed int
	pages  []*fakePage
}

func (b *fakeBrowser) NewPage(context.Context) (browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.alive {
		return nil, errors.New("target closed")
	}
	p := &fakePage{b: b}
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *fakeBrowser) Alive(context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.alive && b.closed == 0
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed == 0 {
		b.l.active.Add(-1)
	}
	b.closed++
	return nil
}

func (b *fakeBrowser) kill() {
	b.mu.Lock()
	b.alive = false
	b.mu.Unlock()
}

func (b *fakeBrowser) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed > 0
}

func (b *fakeBrowser) pageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pages)
}

func (b *fakeBrowser) page(i int) *fakePage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pages[i]
}

type fakePage struct {
	b *fakeBrowser

	mu     sync.Mutex
	calls  []string
	ua     string
	vp     browser.Viewport
	closed bool
	busy   bool
}

func (p *fakePage) record(c string) {
	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()
}

func (p *fakePage) SetUserAgent(_ context.Context, ua string) error {
	p.record("ua")
	p.mu.Lock()
	p.ua = ua
	p.mu.Unlock()
	return p.b.l.uaErr
}

func (p *fakePage) SetViewport(_ context.Context, vp browser.Viewport) error {
	p.record("viewport")
	p.mu.Lock()
	p.vp = vp
	p.mu.Unlock()
	return nil
}

var errOverlap = errors.New("page used by two captures at once")

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.record("navigate " + url)
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return errOverlap
	}
	p.busy = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.busy = false
		p.mu.Unlock()
	}()
	if nav := p.b.l.navigate; nav != nil {
		return nav(ctx, p.b, url)
	}
	return nil
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) {
	p.record("screenshot")
	p.mu.Lock()
	vp := p.vp
	p.mu.Unlock()
	img := image.NewGray(image.Rect(0, 0,
		int(float64(vp.Width)*vp.ScaleFactor), int(float64(vp.Height)*vp.ScaleFactor)))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IsClosed also reports pages of a dead browser, as a real DevTools query would.
func (p *fakePage) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed || !p.b.Alive(context.Background())
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.b.l.pageCloseErr
}

func (p *fakePage) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePage) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type fakeProvider struct {
	path string
	err  error
}

func (f fakeProvider) ExecutablePath(context.Context) (string, error) {
	return f.path, f.err
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []observability.CaptureEvent
}

func (r *fakeRecorder) RecordCapture(_ context.Context, e observability.CaptureEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

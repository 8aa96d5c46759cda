// CLAUDE:SUMMARY chi HTTP surface: GET /api/screenshot returns PNG, plus /healthz, /metrics and the capture journal.
package capture

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/pagesnap/horosafe"
	"github.com/hazyhaar/pagesnap/kit"
	"github.com/hazyhaar/pagesnap/observability"
	"github.com/hazyhaar/pagesnap/shield"
)

// Journal is the read side of the capture journal.
type Journal interface {
	Recent(ctx context.Context, limit int) ([]observability.CaptureEvent, error)
}

// HandlerOptions wires the optional parts of the HTTP surface.
type HandlerOptions struct {
	// Middleware is applied to every route, in order (see shield.DefaultStack).
	Middleware []func(http.Handler) http.Handler
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	// Journal serves /api/captures when set.
	Journal Journal
	// MCP serves the streamable MCP transport on /mcp when set.
	MCP      *mcp.Server
	Resolver horosafe.Resolver
	Logger   *slog.Logger
}

type httpAPI struct {
	svc          *Service
	cfg          HTTPConfig
	opts         HandlerOptions
	screenshotEP kit.Endpoint
	logger       *slog.Logger
}

// NewHandler returns the HTTP API for svc.
func NewHandler(svc *Service, cfg HTTPConfig, opts HandlerOptions) http.Handler {
	api := &httpAPI{
		svc:    svc,
		cfg:    cfg,
		opts:   opts,
		logger: opts.Logger,
	}
	if api.logger == nil {
		api.logger = slog.Default()
	}
	api.screenshotEP = kit.Chain(Validate(cfg.AllowPrivate, opts.Resolver))(svc.Endpoint())

	r := chi.NewRouter()
	for _, mw := range opts.Middleware {
		r.Use(mw)
	}
	r.Get("/healthz", api.handleHealth)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if opts.MCP != nil {
		srv := opts.MCP
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/screenshot", api.handleScreenshot)
		if opts.Journal != nil {
			r.Get("/captures", api.handleCaptures)
		}
	})
	return r
}

func (api *httpAPI) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := Request{URL: q.Get("url")}
	var err error
	if req.Width, err = dimParam(q.Get("width")); err != nil {
		writeError(w, r, http.StatusBadRequest, "width: "+err.Error(), "invalid")
		return
	}
	if req.Height, err = dimParam(q.Get("height")); err != nil {
		writeError(w, r, http.StatusBadRequest, "height: "+err.Error(), "invalid")
		return
	}
	if req.URL == "" {
		writeError(w, r, http.StatusBadRequest, "url parameter is required", "invalid")
		return
	}

	resp, err := api.screenshotEP(r.Context(), req)
	if err != nil {
		status := StatusCode(err)
		if status >= 500 {
			shield.GetLogger(r.Context()).Error("capture: http request failed", "url", req.URL, "error", err)
		}
		writeError(w, r, status, PublicMessage(err), Outcome(err))
		return
	}
	res := resp.(*Result)

	h := w.Header()
	h.Set("Content-Type", "image/png")
	h.Set("Content-Length", strconv.Itoa(len(res.PNG)))
	h.Set("X-Capture-ID", res.ID)
	if api.cfg.CacheControl != "" {
		h.Set("Cache-Control", api.cfg.CacheControl)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(res.PNG)
}

// dimParam parses an optional dimension. Absent → 0 (default); present
// values must be positive integers, bounds are checked by Validate.
func dimParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("not an integer")
	}
	if n < 1 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}

func (api *httpAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"mode":   api.svc.Mode(),
		"host":   api.svc.Host().String(),
	})
}

func (api *httpAPI) handleCaptures(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 500 {
			writeError(w, r, http.StatusBadRequest, "limit must be within 1..500", "invalid")
			return
		}
		limit = n
	}
	events, err := api.opts.Journal.Recent(r.Context(), limit)
	if err != nil {
		shield.GetLogger(r.Context()).Error("capture: journal read", "error", err)
		writeError(w, r, http.StatusInternalServerError, "journal unavailable", "error")
		return
	}
	if events == nil {
		events = []observability.CaptureEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"captures": events})
}

// StatusCode maps a capture error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrNavigation):
		return http.StatusBadGateway
	case errors.Is(err, ErrBinaryNotFound), errors.Is(err, ErrLaunch),
		errors.Is(err, ErrBrowserCrashed), errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// PublicMessage is the error text shown to clients. Rejected requests keep
// their reason; server-side failures are reduced to their outcome so binary
// paths and browser output stay in the log.
func PublicMessage(err error) string {
	if StatusCode(err) >= 500 {
		return "capture failed: " + Outcome(err)
	}
	return err.Error()
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg, outcome string) {
	writeJSON(w, status, map[string]any{
		"error":    msg,
		"outcome":  outcome,
		"trace_id": kit.GetTraceID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Server wraps http.Server with the timeouts a capture needs: the write
// timeout must outlast a navigation.
func Server(addr string, h http.Handler, navTimeout time.Duration) *http.Server {
	write := navTimeout + 30*time.Second
	if navTimeout <= 0 {
		write = 0
	}
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      write,
		IdleTimeout:       120 * time.Second,
	}
}

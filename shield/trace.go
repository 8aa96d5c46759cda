package shield

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/hazyhaar/pagesnap/idgen"
	"github.com/hazyhaar/pagesnap/kit"
)

// Upstream trace IDs are accepted only when they look like one.
var validTraceID = regexp.MustCompile(`^[A-Za-z0-9_-]{4,64}$`)

// TraceID assigns a trace ID to each request (reusing a well-formed incoming
// X-Trace-ID) and injects it into the context, the response headers and a
// per-request structured logger stored under LoggerKey.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if !validTraceID.MatchString(traceID) {
			traceID = idgen.TraceID()
		}

		ip := ExtractIP(r)
		ctx := kit.WithTraceID(r.Context(), traceID)
		ctx = kit.WithRemoteAddr(ctx, ip)
		w.Header().Set("X-Trace-ID", traceID)

		logger := slog.Default().With(
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", ip,
		)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Debug("request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

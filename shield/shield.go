// CLAUDE:SUMMARY HTTP middleware for the pagesnap API: client IP behind trusted proxies, security headers, HEAD handling, trace IDs, per-IP rate limit, bearer token.
// Package shield provides the HTTP middleware placed in front of the
// screenshot API.
//
// Usage:
//
//	r := chi.NewRouter()
//	stack, rl := shield.DefaultStack(shield.StackConfig{RatePerSecond: 2, Burst: 3})
//	rl.StartGC(time.Minute, done)
//	for _, mw := range stack {
//	    r.Use(mw)
//	}
package shield

import (
	"net/http"
	"net/netip"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// StackConfig selects the optional parts of DefaultStack.
type StackConfig struct {
	// RatePerSecond <= 0 disables rate limiting.
	RatePerSecond float64
	Burst         int
	// TokenHash is a bcrypt hash of the bearer token. Empty disables auth.
	TokenHash string
	// Exempt path prefixes skip rate limiting and auth (health, metrics).
	Exempt []string
	// TrustedProxies may set X-Forwarded-For. Empty means the TCP peer is
	// the client.
	TrustedProxies []netip.Prefix
}

// DefaultStack returns the standard middleware stack, ordered:
// HeadToGet → RealIP → SecurityHeaders → TraceID → RateLimiter → BearerAuth.
// The returned RateLimiter (nil when disabled) lets callers run StartGC.
func DefaultStack(cfg StackConfig) ([]func(http.Handler) http.Handler, *RateLimiter) {
	stack := []func(http.Handler) http.Handler{
		HeadToGet,
		RealIP(cfg.TrustedProxies),
		SecurityHeaders(DefaultHeaders()),
		TraceID,
	}
	var rl *RateLimiter
	if cfg.RatePerSecond > 0 {
		rl = NewRateLimiter(cfg.RatePerSecond, cfg.Burst, cfg.Exempt...)
		stack = append(stack, rl.Middleware)
	}
	if cfg.TokenHash != "" {
		stack = append(stack, BearerAuth(cfg.TokenHash, cfg.Exempt...))
	}
	return stack, rl
}

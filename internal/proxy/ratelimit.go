// Package proxy implements the HTTP proxy server.
package proxy

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter wraps golang.org/x/time/rate.Limiter with the allowed/denied
// counters the /metrics surface reports. The cascade's own per-tier retry
// and EWMA throttling (internal/cascade, internal/ewma) already absorb
// upstream 429s; this limiter guards the proxy's own client-facing surfaces
// per spec §4.1.
type RateLimiter struct {
	limiter *rate.Limiter

	allowed int64
	denied  int64
}

// NewRateLimiter creates a new rate limiter.
// requests: number of requests allowed per window
// window: time window in seconds
// burst: additional burst capacity
func NewRateLimiter(requests, window, burst int) *RateLimiter {
	if window <= 0 {
		window = 1
	}
	return NewRateLimiterFromRPS(float64(requests)/float64(window), burst)
}

// NewRateLimiterFromRPS builds a limiter directly from a requests-per-second
// rate, matching config.Config's RateLimitRequestsPerSec/RateLimitBurst
// fields (spec §4.1 carries no "window" concept, unlike CLASP's historical
// requests-per-window knobs).
func NewRateLimiterFromRPS(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// limitedPaths are the client-facing surfaces spec §6 names; the admin/ops
// endpoints (/health, /metrics, /v1/presets, /v1/models, /v1/latencies,
// /v1/usage) are never gated.
func isLimitedPath(path string) bool {
	switch path {
	case "/v1/messages", "/v1/chat/completions", "/v1/responses":
		return true
	}
	return strings.HasPrefix(path, "/preset/")
}

// Allow checks if a request should be allowed.
func (rl *RateLimiter) Allow() bool {
	if rl.limiter.Allow() {
		atomic.AddInt64(&rl.allowed, 1)
		return true
	}
	atomic.AddInt64(&rl.denied, 1)
	return false
}

// Stats returns rate limiter statistics.
func (rl *RateLimiter) Stats() (allowed, denied int64) {
	return atomic.LoadInt64(&rl.allowed), atomic.LoadInt64(&rl.denied)
}

// WaitTime returns the duration until the next request would be allowed.
func (rl *RateLimiter) WaitTime() time.Duration {
	r := rl.limiter.Reserve()
	delay := r.Delay()
	r.Cancel()
	return delay
}

// RateLimitMiddleware creates a middleware that enforces rate limiting.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip rate limiting for non-API endpoints
			if !isLimitedPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow() {
				writeRateLimitError(w, limiter.WaitTime())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeRateLimitError writes an Anthropic-formatted rate limit error.
func writeRateLimitError(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", retryAfter.String())
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"type": "error",
		"error": map[string]string{
			"type":    "rate_limit_error",
			"message": "Request rate limit exceeded. Please slow down your requests.",
		},
	})
}

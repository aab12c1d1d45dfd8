package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
)

// KeyFunc picks the rate limit bucket for a request.
type KeyFunc func(r *http.Request) string

// RateLimitConfig configures the rate limiting middleware
type RateLimitConfig struct {
	// Rate is the number of requests allowed per Interval.
	Rate     int
	Burst    int
	Interval time.Duration
	// Key defaults to ClientIP.
	Key KeyFunc
}

// RateLimiter limits requests per caller using a fortify token bucket.
type RateLimiter struct {
	limiter ratelimit.RateLimiter
	key     KeyFunc
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Rate <= 0 {
		cfg.Rate = 20
	}
	if cfg.Burst < cfg.Rate {
		cfg.Burst = cfg.Rate
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Key == nil {
		cfg.Key = ClientIP
	}
	return &RateLimiter{
		limiter: ratelimit.New(&ratelimit.Config{
			Rate:     cfg.Rate,
			Burst:    cfg.Burst,
			Interval: cfg.Interval,
		}),
		key: cfg.Key,
	}
}

// Handler rejects requests over the limit with 429
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.key(r)
		if !rl.limiter.Allow(r.Context(), key) {
			slog.Warn("rate limit exceeded",
				"key", key,
				"path", r.URL.Path,
				"correlation_id", GetCorrelationID(r.Context()),
			)

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":"RATE_LIMITED","message":"too many requests, please try again later"}}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Close releases the limiter's resources
func (rl *RateLimiter) Close() error {
	return rl.limiter.Close()
}

// ClientIP extracts the client IP address from the request
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package middleware

import (
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	defaultLimiterCacheSize = 10000
	limiterIdleTTL          = 10 * time.Minute
)

// RateLimiter hands out a token bucket per client IP. Idle buckets expire
// from the cache.
type RateLimiter struct {
	limiters *expirable.LRU[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
}

// NewRateLimiter allows perSecond requests per IP with the given burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](defaultLimiterCacheSize, nil, limiterIdleTTL),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow reports whether ip may make a request now.
func (rl *RateLimiter) Allow(ip string) bool {
	lim, ok := rl.limiters.Get(ip)
	if !ok {
		lim = rate.NewLimiter(rl.rate, rl.burst)
	}
	// Re-adding refreshes the idle TTL.
	rl.limiters.Add(ip, lim)
	return lim.Allow()
}

// RateLimit rejects requests over the per-IP rate with 429.
func RateLimit(perSecond float64, burst int) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(perSecond, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// chi's RealIP middleware rewrites RemoteAddr from X-Real-Ip.
			if !limiter.Allow(r.RemoteAddr) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

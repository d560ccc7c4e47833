package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

// Rate is a token bucket refill rate and capacity.
type Rate struct {
	PerSecond float64
	Burst     int
}

// RateLimitConfig throttles each client IP with two buckets: one for reads
// (GET and HEAD) and one for writes. A client posting line items in bulk
// cannot exhaust the budget it needs to look up CPT codes.
type RateLimitConfig struct {
	Reads  Rate
	Writes Rate
	// ExemptRoutes are echo route paths (e.g. "/health") never throttled.
	ExemptRoutes []string
	// IdleTTL drops the buckets of clients not seen for this long. Zero keeps
	// them forever.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Reads:        Rate{PerSecond: 100, Burst: 200},
		Writes:       Rate{PerSecond: 20, Burst: 40},
		ExemptRoutes: []string{"/health", "/health/db"},
		IdleTTL:      10 * time.Minute,
	}
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// limiter holds one bucket per key, all sharing a single Rate.
type limiter struct {
	rate Rate
	ttl  time.Duration
	now  func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newLimiter(rate Rate, ttl time.Duration, now func() time.Time) *limiter {
	return &limiter{
		rate:      rate,
		ttl:       ttl,
		now:       now,
		buckets:   make(map[string]*bucket),
		lastSweep: now(),
	}
}

// take spends one token from key's bucket. It returns the whole tokens left
// and, when the request is refused, the seconds until a token is available.
func (l *limiter) take(key string) (remaining, retryAfter int, allowed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.rate.Burst), seen: now}
		l.buckets[key] = b
	}
	b.tokens = math.Min(float64(l.rate.Burst), b.tokens+now.Sub(b.seen).Seconds()*l.rate.PerSecond)
	b.seen = now

	if b.tokens >= 1 {
		b.tokens--
		return int(b.tokens), 0, true
	}
	if l.rate.PerSecond <= 0 {
		return 0, 1, false
	}
	return 0, int(math.Ceil((1 - b.tokens) / l.rate.PerSecond)), false
}

// sweep evicts idle buckets at most once per ttl. An evicted client starts
// again with a full bucket, which is what it would have refilled to anyway.
func (l *limiter) sweep(now time.Time) {
	if l.ttl <= 0 || now.Sub(l.lastSweep) < l.ttl {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.seen) >= l.ttl {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// RateLimit throttles clients per remote IP, with reads and writes budgeted
// separately.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimit(cfg, time.Now)
}

func rateLimit(cfg RateLimitConfig, now func() time.Time) echo.MiddlewareFunc {
	reads := newLimiter(cfg.Reads, cfg.IdleTTL, now)
	writes := newLimiter(cfg.Writes, cfg.IdleTTL, now)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if lo.Contains(cfg.ExemptRoutes, c.Path()) {
				return next(c)
			}

			l := lo.Ternary(isRead(c.Request().Method), reads, writes)
			remaining, retryAfter, allowed := l.take(c.RealIP())

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.FormatFloat(l.rate.PerSecond, 'f', -1, 64))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !allowed {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const defaultBucketTTL = 10 * time.Minute

// IPRateLimiter keeps one token bucket per client IP. Buckets for clients
// that stay quiet for the TTL are dropped.
type IPRateLimiter struct {
	mu      sync.Mutex
	buckets *cache.Cache
	limit   rate.Limit
	burst   int
	allow   map[string]bool
}

func NewIPRateLimiter(perSecond float64, burst int, whitelist ...string) *IPRateLimiter {
	return newIPRateLimiter(perSecond, burst, defaultBucketTTL, whitelist...)
}

func newIPRateLimiter(perSecond float64, burst int, ttl time.Duration, whitelist ...string) *IPRateLimiter {
	allow := make(map[string]bool, len(whitelist))
	for _, ip := range whitelist {
		allow[ip] = true
	}
	return &IPRateLimiter{
		buckets: cache.New(ttl, ttl),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		allow:   allow,
	}
}

// limiter returns the bucket for ip and pushes its expiry forward.
func (l *IPRateLimiter) limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.buckets.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
	}
	l.buckets.SetDefault(ip, limiter)
	return limiter.(*rate.Limiter)
}

// Handler rejects requests over the per-IP budget with 429.
func (l *IPRateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := c.IP()
		if l.allow[ip] {
			return c.Next()
		}
		if !l.limiter(ip).Allow() {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many requests")
		}
		return c.Next()
	}
}

// Package middleware provides HTTP middleware for the cadence API.
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// maxBuckets is the maximum number of tracked IPs to prevent memory exhaustion.
const maxBuckets = 100_000

// RateLimiter implements a token bucket rate limiter per client IP.
type RateLimiter struct {
	buckets map[string]*bucket
	mu      sync.Mutex
	rate    float64
	burst   float64
	message string
}

// bucket represents a per-IP token bucket for rate limiting.
type bucket struct {
	tokens   float64
	lastFill time.Time
}

func (b *bucket) allow(now time.Time, rate, burst float64) bool {
	b.tokens += now.Sub(b.lastFill).Seconds() * rate
	if b.tokens > burst {
		b.tokens = burst
	}
	b.lastFill = now

	if b.tokens >= 1 {
		b.tokens--

		return true
	}

	return false
}

// NewRateLimiter creates a RateLimiter with the given requests per second and burst size.
// It starts a background goroutine to evict stale buckets, which stops when ctx is cancelled.
func NewRateLimiter(ctx context.Context, ratePerSec float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    ratePerSec,
		burst:   float64(burst),
		message: "rate limit exceeded",
	}
	go rl.startCleanup(ctx)

	return rl
}

// NewPerMinuteLimiter allows perMinute requests per client per minute, all
// of which may arrive at once, and rejects the excess with message.
func NewPerMinuteLimiter(ctx context.Context, perMinute int, message string) *RateLimiter {
	rl := NewRateLimiter(ctx, float64(perMinute)/60, perMinute)
	if message != "" {
		rl.message = message
	}

	return rl
}

// startCleanup periodically evicts stale rate-limit buckets.
func (rl *RateLimiter) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	const maxAge = 10 * time.Minute

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for ip, b := range rl.buckets {
				if now.Sub(b.lastFill) > maxAge {
					delete(rl.buckets, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Handler returns Gin middleware that applies rate limiting per client IP.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// c.ClientIP() is safe from X-Forwarded-For spoofing because
		// SetTrustedProxies(nil) in router.go disables proxy header trust.
		ip := c.ClientIP()
		now := time.Now()

		rl.mu.Lock()
		b, ok := rl.buckets[ip]
		if !ok {
			// Reject new IPs when bucket table is full to prevent memory exhaustion.
			if len(rl.buckets) >= maxBuckets {
				rl.mu.Unlock()
				respondError(c, http.StatusTooManyRequests, codeRateLimited, "too many clients")

				return
			}

			b = &bucket{tokens: rl.burst, lastFill: now}
			rl.buckets[ip] = b
		}

		allowed := b.allow(now, rl.rate, rl.burst)
		rl.mu.Unlock()

		if !allowed {
			respondError(c, http.StatusTooManyRequests, codeRateLimited, rl.message)

			return
		}

		c.Next()
	}
}

package middleware

import (
	"sync"
	"time"

	"socialdm/backend/internal/apperr"
	"socialdm/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// IPRateLimiter hands out one token bucket per client IP.
type IPRateLimiter struct {
	mu    sync.Mutex
	ips   map[string]*rateLimiterEntry
	r     rate.Limit
	burst int
	idle  time.Duration
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter creates a limiter of r requests per second with the given burst.
func NewIPRateLimiter(r rate.Limit, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:   make(map[string]*rateLimiterEntry),
		r:     r,
		burst: burst,
		idle:  3 * time.Minute,
	}
}

// GetLimiter returns the limiter for ip, creating it on first use.
func (rl *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, ok := rl.ips[ip]
	if !ok {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(rl.r, rl.burst)}
		rl.ips[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// Cleanup forgets IPs idle for longer than the idle window.
func (rl *IPRateLimiter) Cleanup(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for ip, e := range rl.ips {
		if now.Sub(e.lastSeen) > rl.idle {
			delete(rl.ips, ip)
			removed++
		}
	}
	return removed
}

// RunCleanup sweeps idle entries every interval until stop is closed.
func (rl *IPRateLimiter) RunCleanup(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			rl.Cleanup(now)
		case <-stop:
			return
		}
	}
}

// RateLimit rejects requests over the per-IP budget with 429.
func RateLimit(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.GetLimiter(ip).Allow() {
			logger.Warn().
				Str("ip", ip).
				Str("path", c.Request.URL.Path).
				Msg("rate limit exceeded")
			_ = c.Error(apperr.RateLimited("too many requests, slow down"))
			c.Abort()
			return
		}
		c.Next()
	}
}

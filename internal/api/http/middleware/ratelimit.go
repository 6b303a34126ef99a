package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL      = 15 * time.Minute
	limiterCleanupEvery = 2 * time.Minute
)

// RateLimiter hands out one token bucket per client. Authenticated clients
// are keyed by user id, everything else by client IP, so one caller cannot
// starve the allocator for everyone behind the same NAT.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rps     rate.Limit
	burst   int
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		entries: make(map[string]*limiterEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

func (r *RateLimiter) get(key string) *rate.Limiter {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if ent, ok := r.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(r.rps, r.burst)
	r.entries[key] = &limiterEntry{lim: lim, lastSeen: now}
	return lim
}

func (r *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-limiterIdleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	for key, ent := range r.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(r.entries, key)
		}
	}
}

// StartJanitor evicts idle buckets until the context is canceled.
func (r *RateLimiter) StartJanitor(ctx context.Context) {
	t := time.NewTicker(limiterCleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				r.cleanup()
			}
		}
	}()
}

// Middleware rejects requests that exceed the per-client budget with 429.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString("user_id")
		if key == "" {
			key = c.ClientIP()
		}

		if !r.get(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
				"code":  "rate_limited",
			})
			return
		}
		c.Next()
	}
}

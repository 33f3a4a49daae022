package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// rateLimiter is a per-user fixed-window counter for the REST gateway.
type rateLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	counters map[string]int
	reset    time.Time
}

func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{
		limit:    limit,
		window:   time.Minute,
		counters: make(map[string]int),
		reset:    time.Now().Add(time.Minute),
	}
}

func (r *rateLimiter) allow(key string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.After(r.reset) {
		r.counters = make(map[string]int)
		r.reset = now.Add(r.window)
	}
	r.counters[key]++
	return r.counters[key] <= r.limit
}

// RateLimitMiddleware rejects callers that exceed limit requests per minute.
// Keyed by verified user id, so it runs after AuthMiddleware.
func RateLimitMiddleware(limit int) gin.HandlerFunc {
	rl := newRateLimiter(limit)
	return func(c *gin.Context) {
		identity, ok := identityFromContext(c)
		if !ok {
			c.Next()
			return
		}
		if !rl.allow(identity.ID) {
			c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}

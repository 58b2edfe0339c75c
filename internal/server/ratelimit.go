package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pourhouselabs/barback/internal/metrics"
	"golang.org/x/time/rate"
)

// defaultRatePerMinute is the preview/commit budget per caller. The limiter
// is the primary backpressure for the pipeline; correctness does not depend
// on it.
const defaultRatePerMinute = 10

type rateLimiter struct {
	perMinute int
	mu        sync.Mutex
	buckets   map[string]*rate.Limiter
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		perMinute: perMinute,
		buckets:   make(map[string]*rate.Limiter),
	}
}

func (l *rateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
		l.buckets[key] = bucket
	}
	return bucket.Allow()
}

// rateLimit gates the mutating admin endpoints per authenticated caller.
func (h *httpHandler) rateLimit(c *gin.Context) {
	caller := c.GetString(userIDContextKey)
	if !h.limiter.allow(caller) {
		metrics.ObserveThrottled()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
		return
	}
	c.Next()
}

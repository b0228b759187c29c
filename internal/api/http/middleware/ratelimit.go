package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/dtroode/accessgate/internal/apierror"
	"github.com/dtroode/accessgate/internal/clock"
	"github.com/dtroode/accessgate/internal/metrics"
)

const limiterIdleTTL = 5 * time.Minute

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimit is a token bucket per client IP.
type RateLimit struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	clock     clock.Clock
	metrics   *metrics.Metrics
}

// NewRateLimit creates a limiter allowing rps requests per second with burst
// per client. m may be nil.
func NewRateLimit(rps float64, burst int, clk clock.Clock, m *metrics.Metrics) *RateLimit {
	return &RateLimit{
		buckets:   make(map[string]*bucket),
		limit:     rate.Limit(rps),
		burst:     burst,
		lastSweep: clk.Now(),
		clock:     clk,
		metrics:   m,
	}
}

// HandleHTTP rejects the request with 429 when the client is over its limit.
func (r *RateLimit) HandleHTTP(c *gin.Context) {
	if !r.allow(c.ClientIP()) {
		if r.metrics != nil {
			r.metrics.RateLimited.Inc()
		}
		abortWithError(c, apierror.NewErrRateLimited())
		return
	}
	c.Next()
}

func (r *RateLimit) allow(ip string) bool {
	if ip == "" {
		ip = "unknown"
	}
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) > limiterIdleTTL {
		for k, b := range r.buckets {
			if now.Sub(b.seen) > limiterIdleTTL {
				delete(r.buckets, k)
			}
		}
		r.lastSweep = now
	}

	b, ok := r.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(r.limit, r.burst)}
		r.buckets[ip] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

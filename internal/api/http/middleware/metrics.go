package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dtroode/accessgate/internal/metrics"
)

// Metrics records request counts and latencies per route template.
type Metrics struct {
	metrics *metrics.Metrics
}

// NewMetrics creates a new Metrics middleware.
func NewMetrics(m *metrics.Metrics) *Metrics {
	return &Metrics{metrics: m}
}

// HandleHTTP instruments the request.
func (m *Metrics) HandleHTTP(c *gin.Context) {
	m.metrics.HTTPInFlight.Inc()
	defer m.metrics.HTTPInFlight.Dec()

	start := time.Now()
	c.Next()

	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	status := strconv.Itoa(c.Writer.Status())

	m.metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	m.metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
}

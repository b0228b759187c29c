package middleware

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/dtroode/accessgate/internal/logger"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewRequestID returns a lexicographically sortable request identifier.
func NewRequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// RequestID returns the id assigned to the request by Logging.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Logging assigns request ids and logs each request.
type Logging struct {
	logger *logger.Logger
}

// NewLogging creates a new Logging middleware.
func NewLogging(logger *logger.Logger) *Logging {
	return &Logging{logger: logger}
}

// HandleHTTP logs method, route, status and duration. A client supplied
// request id is kept when it is a valid ULID.
func (l *Logging) HandleHTTP(c *gin.Context) {
	start := time.Now()

	requestID := c.GetHeader(RequestIDHeader)
	if _, err := ulid.ParseStrict(requestID); err != nil {
		requestID = NewRequestID()
	}
	c.Set(requestIDKey, requestID)
	c.Header(RequestIDHeader, requestID)

	c.Next()

	status := c.Writer.Status()
	args := []any{
		"request_id", requestID,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
	}

	switch {
	case status >= 500:
		l.logger.Error("HTTP request failed", args...)
	case status >= 400:
		l.logger.Warn("HTTP request rejected", args...)
	default:
		l.logger.Info("HTTP request completed", args...)
	}
}

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dtroode/accessgate/internal/logger"
)

const healthTimeout = 2 * time.Second

// Pinger reports storage reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health serves the liveness probe.
type Health struct {
	pinger Pinger
	logger *logger.Logger
}

// NewHealth creates a health handler. pinger may be nil for in-memory stores.
func NewHealth(pinger Pinger, logger *logger.Logger) *Health {
	return &Health{pinger: pinger, logger: logger}
}

func (h *Health) Check(c *gin.Context) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		if err := h.pinger.Ping(ctx); err != nil {
			h.logger.Error("Health: storage unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

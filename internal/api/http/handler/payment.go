package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dtroode/accessgate/internal/apierror"
	"github.com/dtroode/accessgate/internal/logger"
	"github.com/dtroode/accessgate/internal/model"
	"github.com/dtroode/accessgate/internal/session"
)

const (
	SignatureHeader    = "X-Signature"
	maxWebhookBodySize = 1 << 20
)

// PaymentService defines payment operations exposed over HTTP.
type PaymentService interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) (model.EventOutcome, error)
	ConfirmCharge(ctx context.Context, userID uuid.UUID, chargeID string) (model.EventOutcome, error)
}

// SessionRefresher rebuilds the session of an authenticated principal.
type SessionRefresher interface {
	WhoAmI(ctx context.Context, userID uuid.UUID) (*session.Response, error)
}

// Payment handles payment confirmation and the processor webhook.
type Payment struct {
	service        PaymentService
	sessions       SessionRefresher
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewPayment creates a new Payment handler instance.
func NewPayment(
	service PaymentService,
	sessions SessionRefresher,
	contextManager model.ContextManager,
	logger *logger.Logger,
) *Payment {
	return &Payment{
		service:        service,
		sessions:       sessions,
		contextManager: contextManager,
		logger:         logger,
	}
}

// Webhook ingests a signed payment event. Replays are acknowledged with 200.
func (h *Payment) Webhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			badRequest(c, "payload too large")
			return
		}
		badRequest(c, "failed to read body")
		return
	}

	outcome, err := h.service.HandleWebhook(c.Request.Context(), body, c.GetHeader(SignatureHeader))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": outcome})
}

type confirmRequest struct {
	ChargeID string `json:"charge_id" binding:"required"`
}

// Confirm checks a charge with the processor and returns the refreshed session.
func (h *Payment) Confirm(c *gin.Context) {
	userID, ok := h.contextManager.GetUserIDFromContext(c.Request.Context())
	if !ok {
		writeError(c, h.logger, apierror.NewErrMissingAuthorizationToken())
		return
	}

	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "charge_id is required")
		return
	}

	if _, err := h.service.ConfirmCharge(c.Request.Context(), userID, req.ChargeID); err != nil {
		writeError(c, h.logger, err)
		return
	}

	resp, err := h.sessions.WhoAmI(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp.Payload())
}

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dtroode/accessgate/internal/logger"
	"github.com/dtroode/accessgate/internal/model"
)

// InvitationService defines invitation administration.
type InvitationService interface {
	Create(ctx context.Context, email string, expiresAt *time.Time) (model.Invitation, error)
}

// Invitation handles the admin invitation routes.
type Invitation struct {
	service InvitationService
	logger  *logger.Logger
}

// NewInvitation creates a new Invitation handler instance.
func NewInvitation(service InvitationService, logger *logger.Logger) *Invitation {
	return &Invitation{service: service, logger: logger}
}

type createInvitationRequest struct {
	Email     string     `json:"email" binding:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
	Permanent bool       `json:"permanent"`
}

type invitationResponse struct {
	Email      string     `json:"email"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
	RedeemedAt *time.Time `json:"redeemed_at"`
}

// Create adds or extends an invitation. Without expires_at the default
// lifetime applies; permanent invitations never expire.
func (h *Invitation) Create(c *gin.Context) {
	var req createInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email is required")
		return
	}

	expiresAt := req.ExpiresAt
	if req.Permanent {
		farFuture := model.FarFuture
		expiresAt = &farFuture
	}

	inv, err := h.service.Create(c.Request.Context(), req.Email, expiresAt)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.logger.Info("Invitation handler: invitation stored", "email", inv.Email)

	c.JSON(http.StatusCreated, invitationResponse{
		Email:      inv.Email,
		ExpiresAt:  inv.ExpiresAt,
		CreatedAt:  inv.CreatedAt,
		RedeemedAt: inv.RedeemedAt,
	})
}

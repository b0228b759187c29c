package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dtroode/accessgate/internal/apierror"
	"github.com/dtroode/accessgate/internal/logger"
	"github.com/dtroode/accessgate/internal/model"
)

// TokenService resolves user ID from bearer tokens.
type TokenService interface {
	GetUserID(ctx context.Context, token string) (uuid.UUID, error)
}

// Authenticate validates bearer tokens and injects user ID into the request context.
type Authenticate struct {
	tokenService   TokenService
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewAuthenticate creates a new Authenticate middleware instance.
func NewAuthenticate(tokenService TokenService, contextManager model.ContextManager, logger *logger.Logger) *Authenticate {
	return &Authenticate{tokenService: tokenService, contextManager: contextManager, logger: logger}
}

// HandleHTTP rejects requests without a valid bearer token.
func (m *Authenticate) HandleHTTP(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		abortWithError(c, apierror.NewErrMissingAuthorizationToken())
		return
	}

	userID, err := m.tokenService.GetUserID(c.Request.Context(), strings.TrimSpace(token))
	if err != nil || userID == uuid.Nil {
		m.logger.Debug("HTTP authenticate: token rejected",
			"path", c.FullPath())
		if err == nil {
			err = model.ErrUnauthorized
		}
		abortWithError(c, apierror.FromError(err))
		return
	}

	c.Request = c.Request.WithContext(m.contextManager.SetUserIDToContext(c.Request.Context(), userID))
	c.Next()
}

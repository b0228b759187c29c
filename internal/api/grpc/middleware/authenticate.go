package middleware

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dtroode/accessgate/internal/apierror"
	"github.com/dtroode/accessgate/internal/logger"
	"github.com/dtroode/accessgate/internal/model"
)

// TokenService resolves user ID from bearer tokens.
type TokenService interface {
	GetUserID(ctx context.Context, token string) (uuid.UUID, error)
}

// Authenticate validates bearer tokens and injects user ID into context.
type Authenticate struct {
	tokenService   TokenService
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewAuthenticate creates a new Authenticate middleware instance.
func NewAuthenticate(tokenService TokenService, contextManager model.ContextManager, logger *logger.Logger) *Authenticate {
	return &Authenticate{tokenService: tokenService, contextManager: contextManager, logger: logger}
}

// AuthFunc parses Authorization header, validates token and returns a context with user ID.
func (m *Authenticate) AuthFunc(ctx context.Context) (context.Context, error) {
	var tokenString string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if authHeaders := md.Get("authorization"); len(authHeaders) > 0 {
			if token, found := strings.CutPrefix(authHeaders[0], "Bearer "); found {
				tokenString = strings.TrimSpace(token)
			}
		}
	}

	userID, authErr := m.authenticateUser(ctx, tokenString)
	if authErr != nil {
		m.logger.Debug("gRPC authenticate: token rejected",
			"reason", authErr.Message)
		return nil, status.Error(authErr.GRPCCode, authErr.Message)
	}

	return m.contextManager.SetUserIDToContext(ctx, userID), nil
}

func (m *Authenticate) authenticateUser(ctx context.Context, tokenString string) (uuid.UUID, *apierror.APIError) {
	if tokenString == "" {
		return uuid.Nil, apierror.NewErrMissingAuthorizationToken()
	}

	userID, err := m.tokenService.GetUserID(ctx, tokenString)
	if err != nil {
		return uuid.Nil, apierror.FromError(err)
	}

	if userID == uuid.Nil {
		return uuid.Nil, apierror.NewErrInvalidAuthorizationToken()
	}

	return userID, nil
}

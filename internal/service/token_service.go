package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/dtroode/accessgate/internal/logger"
	"github.com/dtroode/accessgate/internal/model"
)

// TokenService resolves principals from bearer tokens for the transports.
type TokenService struct {
	manager model.TokenManager
	logger  *logger.Logger
}

func NewTokenService(manager model.TokenManager, logger *logger.Logger) *TokenService {
	return &TokenService{manager: manager, logger: logger}
}

// GetUserID validates token and returns its principal id.
func (s *TokenService) GetUserID(ctx context.Context, token string) (uuid.UUID, error) {
	userID, err := s.manager.Validate(token)
	if err != nil {
		s.logger.Debug("Token service: token rejected",
			"error", err.Error())
		return uuid.Nil, err
	}
	return userID, nil
}

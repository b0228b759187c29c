package model

import (
	"time"

	"github.com/google/uuid"
)

// TokenManager issues and validates stateless session tokens.
type TokenManager interface {
	Issue(userID uuid.UUID, ttl time.Duration) (string, error)
	// Validate returns ErrTokenExpired, ErrTokenBadSignature or
	// ErrTokenMalformed on failure.
	Validate(token string) (uuid.UUID, error)
}

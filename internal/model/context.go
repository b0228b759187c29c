package model

import (
	"context"

	"github.com/google/uuid"
)

// ContextManager carries the authenticated principal id through a request
// context. Each transport provides its own implementation.
type ContextManager interface {
	SetUserIDToContext(ctx context.Context, userID uuid.UUID) context.Context
	GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool)
}

package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dtroode/accessgate/internal/api/grpc/sessionv1"
	"github.com/dtroode/accessgate/internal/logger"
	"github.com/dtroode/accessgate/internal/model"
	"github.com/dtroode/accessgate/internal/session"
)

// SessionService rebuilds session responses for authenticated callers.
type SessionService interface {
	WhoAmI(ctx context.Context, userID uuid.UUID) (*session.Response, error)
}

// Session handles the accessgate.v1.Session service for internal callers.
type Session struct {
	sessionService SessionService
	contextManager model.ContextManager
	logger         *logger.Logger
}

var _ sessionv1.SessionServer = (*Session)(nil)

// NewSession creates a new Session handler.
func NewSession(sessionService SessionService, contextManager model.ContextManager, logger *logger.Logger) *Session {
	return &Session{
		sessionService: sessionService,
		contextManager: contextManager,
		logger:         logger,
	}
}

// WhoAmI returns the unified session response with an empty token.
func (h *Session) WhoAmI(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	resp, err := h.load(ctx)
	if err != nil {
		return nil, err
	}
	return toStruct(resp.Payload())
}

type entitlementView struct {
	Allowed     bool                `json:"allowed"`
	PaymentUser session.PaymentView `json:"payment_user"`
}

// CheckEntitlement reports whether the caller may use the product now.
func (h *Session) CheckEntitlement(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	resp, err := h.load(ctx)
	if err != nil {
		return nil, err
	}

	h.logger.Debug("Session handler: entitlement checked",
		"user_id", resp.User().ID,
		"allowed", resp.Allowed())

	return toStruct(entitlementView{
		Allowed:     resp.Allowed(),
		PaymentUser: resp.Payload().PaymentUser,
	})
}

func (h *Session) load(ctx context.Context) (*session.Response, error) {
	userID, ok := h.contextManager.GetUserIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing authorization token")
	}

	resp, err := h.sessionService.WhoAmI(ctx, userID)
	if err != nil {
		h.logger.Warn("Session handler: failed to load session",
			"user_id", userID,
			"error", err.Error())
		return nil, handleError(err)
	}
	return resp, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, handleError(fmt.Errorf("failed to marshal session: %w", err))
	}

	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, handleError(fmt.Errorf("failed to convert session: %w", err))
	}
	return out, nil
}

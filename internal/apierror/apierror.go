// Package apierror maps domain failures onto the error body and status codes
// exposed by the HTTP and gRPC transports.
package apierror

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/dtroode/accessgate/internal/model"
)

// Error codes returned in the "error" field of failure bodies.
const (
	CodeUnauthorized       = "unauthorized"
	CodeInvalidCredentials = "invalid_credentials"
	CodeDuplicateEmail     = "duplicate_email"
	CodePaymentDisabled    = "payment_disabled"
	CodeExchangeFailed     = "oauth_exchange_failed"
	CodeUnknownProvider    = "unknown_provider"
	CodeWebhookUnverified  = "webhook_unverified"
	CodeBadRequest         = "bad_request"
	CodeNotFound           = "not_found"
	CodeNotConfigured      = "not_configured"
	CodeRateLimited        = "rate_limited"
	CodeInternal           = "internal"
)

// APIError is a transport-facing error with a stable code.
type APIError struct {
	Code       string
	Message    string
	HTTPStatus int
	GRPCCode   codes.Code
}

func (e *APIError) Error() string {
	return e.Message
}

// Body is the JSON failure shape.
type Body struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Body returns the JSON failure body for e.
func (e *APIError) Body() Body {
	return Body{Error: e.Code, Message: e.Message}
}

func NewErrMissingAuthorizationToken() *APIError {
	return &APIError{Code: CodeUnauthorized, Message: "missing authorization token", HTTPStatus: http.StatusUnauthorized, GRPCCode: codes.Unauthenticated}
}

func NewErrInvalidAuthorizationToken() *APIError {
	return &APIError{Code: CodeUnauthorized, Message: "invalid authorization token", HTTPStatus: http.StatusUnauthorized, GRPCCode: codes.Unauthenticated}
}

func NewErrExpiredAuthorizationToken() *APIError {
	return &APIError{Code: CodeUnauthorized, Message: "authorization token expired", HTTPStatus: http.StatusUnauthorized, GRPCCode: codes.Unauthenticated}
}

func NewErrInvalidCredentials() *APIError {
	return &APIError{Code: CodeInvalidCredentials, Message: "invalid email or password", HTTPStatus: http.StatusUnauthorized, GRPCCode: codes.Unauthenticated}
}

func NewErrDuplicateEmail() *APIError {
	return &APIError{Code: CodeDuplicateEmail, Message: "email is already registered", HTTPStatus: http.StatusConflict, GRPCCode: codes.AlreadyExists}
}

func NewErrPaymentDisabled() *APIError {
	return &APIError{Code: CodePaymentDisabled, Message: "registration requires an invitation", HTTPStatus: http.StatusForbidden, GRPCCode: codes.PermissionDenied}
}

func NewErrExchangeFailed() *APIError {
	return &APIError{Code: CodeExchangeFailed, Message: "identity provider exchange failed", HTTPStatus: http.StatusBadGateway, GRPCCode: codes.Unavailable}
}

func NewErrUnknownProvider() *APIError {
	return &APIError{Code: CodeUnknownProvider, Message: "unknown identity provider", HTTPStatus: http.StatusNotFound, GRPCCode: codes.NotFound}
}

func NewErrWebhookUnverified() *APIError {
	return &APIError{Code: CodeWebhookUnverified, Message: "webhook signature verification failed", HTTPStatus: http.StatusBadRequest, GRPCCode: codes.InvalidArgument}
}

func NewErrBadRequest(message string) *APIError {
	return &APIError{Code: CodeBadRequest, Message: message, HTTPStatus: http.StatusBadRequest, GRPCCode: codes.InvalidArgument}
}

func NewErrNotFound() *APIError {
	return &APIError{Code: CodeNotFound, Message: "not found", HTTPStatus: http.StatusNotFound, GRPCCode: codes.NotFound}
}

func NewErrNotConfigured() *APIError {
	return &APIError{Code: CodeNotConfigured, Message: "payment processor is not configured", HTTPStatus: http.StatusServiceUnavailable, GRPCCode: codes.Unavailable}
}

func NewErrRateLimited() *APIError {
	return &APIError{Code: CodeRateLimited, Message: "too many requests", HTTPStatus: http.StatusTooManyRequests, GRPCCode: codes.ResourceExhausted}
}

func NewErrInternal() *APIError {
	return &APIError{Code: CodeInternal, Message: "internal server error", HTTPStatus: http.StatusInternalServerError, GRPCCode: codes.Internal}
}

// FromError maps err onto an APIError. Unknown errors become internal errors
// so storage details never reach clients.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, model.ErrTokenExpired):
		return NewErrExpiredAuthorizationToken()
	case errors.Is(err, model.ErrTokenMalformed),
		errors.Is(err, model.ErrTokenBadSignature),
		errors.Is(err, model.ErrUnauthorized):
		return NewErrInvalidAuthorizationToken()
	case errors.Is(err, model.ErrInvalidCredentials),
		errors.Is(err, model.ErrNoSuchPrincipal),
		errors.Is(err, model.ErrBadPassword):
		return NewErrInvalidCredentials()
	case errors.Is(err, model.ErrDuplicateEmail):
		return NewErrDuplicateEmail()
	case errors.Is(err, model.ErrPaymentDisabled),
		errors.Is(err, model.ErrInvitationRequired):
		return NewErrPaymentDisabled()
	case errors.Is(err, model.ErrUnknownProvider) && !errors.Is(err, model.ErrExchangeFailed):
		return NewErrUnknownProvider()
	case errors.Is(err, model.ErrExchangeFailed),
		errors.Is(err, model.ErrIdentityTaken):
		return NewErrExchangeFailed()
	case errors.Is(err, model.ErrWebhookUnverified):
		return NewErrWebhookUnverified()
	case errors.Is(err, model.ErrUnknownEventType):
		return NewErrBadRequest("unknown payment event type")
	case errors.Is(err, model.ErrChargeNotPaid):
		return NewErrBadRequest("charge is not paid")
	case errors.Is(err, model.ErrPaymentNotConfigured):
		return NewErrNotConfigured()
	case errors.Is(err, model.ErrNotFound):
		return NewErrNotFound()
	default:
		return NewErrInternal()
	}
}

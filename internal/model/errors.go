package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("not found")

	ErrDuplicateEmail       = errors.New("email is already registered")
	ErrIdentityTaken        = errors.New("external identity is bound to another user")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrNoSuchPrincipal      = errors.New("no such principal")
	ErrBadPassword          = errors.New("bad password")
	ErrPaymentDisabled      = errors.New("payment is disabled and no valid invitation exists")
	ErrInvitationRequired   = errors.New("valid invitation required")
	ErrExchangeFailed       = errors.New("oauth exchange failed")
	ErrUnknownProvider      = errors.New("unknown oauth provider")
	ErrWebhookUnverified    = errors.New("webhook signature verification failed")
	ErrUnknownEventType     = errors.New("unknown payment event type")
	ErrPaymentNotConfigured = errors.New("payment processor is not configured")
	ErrChargeNotPaid        = errors.New("charge is not paid")

	ErrTokenExpired      = errors.New("token expired")
	ErrTokenMalformed    = errors.New("token malformed")
	ErrTokenBadSignature = errors.New("token signature invalid")
	ErrUnauthorized      = errors.New("unauthorized")
)

// ErrNoInviteAndPaymentDisabled is returned by the OAuth path for a first-seen
// identity when no invitation is available and payment is disabled.
var ErrNoInviteAndPaymentDisabled = fmt.Errorf("no invitation for first-seen identity: %w", ErrPaymentDisabled)

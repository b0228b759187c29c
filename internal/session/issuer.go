// Package session builds unified session responses for every sign-in path.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/accessgate/internal/clock"
	"github.com/dtroode/accessgate/internal/entitlement"
	"github.com/dtroode/accessgate/internal/logger"
	"github.com/dtroode/accessgate/internal/metrics"
	"github.com/dtroode/accessgate/internal/model"
)

// Issuer loads a principal's invitation and payment state, computes the
// entitlement and mints a session token.
type Issuer struct {
	users       model.UserStore
	invitations model.InvitationStore
	payments    model.PaymentStore
	tokens      model.TokenManager
	clock       clock.Clock
	ttl         time.Duration
	metrics     *metrics.Metrics
	logger      *logger.Logger
}

// NewIssuer creates a session issuer. m may be nil.
func NewIssuer(
	users model.UserStore,
	invitations model.InvitationStore,
	payments model.PaymentStore,
	tokens model.TokenManager,
	clk clock.Clock,
	ttl time.Duration,
	m *metrics.Metrics,
	logger *logger.Logger,
) *Issuer {
	return &Issuer{
		users:       users,
		invitations: invitations,
		payments:    payments,
		tokens:      tokens,
		clock:       clk,
		ttl:         ttl,
		metrics:     m,
		logger:      logger,
	}
}

// Issue builds a response carrying a freshly minted token. It is used after
// registration, login and OAuth callback.
func (i *Issuer) Issue(ctx context.Context, userID uuid.UUID) (*Response, error) {
	return i.build(ctx, userID, true)
}

// Refresh builds a response with an empty token for callers that already
// hold a valid one.
func (i *Issuer) Refresh(ctx context.Context, userID uuid.UUID) (*Response, error) {
	return i.build(ctx, userID, false)
}

func (i *Issuer) build(ctx context.Context, userID uuid.UUID, mint bool) (*Response, error) {
	user, err := i.users.GetByID(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("failed to get user: %w", model.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var inv *model.Invitation
	invitation, err := i.invitations.GetRedeemedByEmail(ctx, user.Email)
	switch {
	case err == nil:
		inv = &invitation
	case !errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	var pay *model.PaymentRecord
	record, err := i.payments.GetByUserID(ctx, user.ID)
	switch {
	case err == nil:
		pay = &record
	case !errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("failed to get payment record: %w", err)
	}

	now := i.clock.Now()
	ent := entitlement.Compute(now, inv, pay)

	var token string
	if mint {
		token, err = i.tokens.Issue(user.ID, i.ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to issue token: %w", err)
		}
	}

	if i.metrics != nil {
		i.metrics.SessionsIssued.WithLabelValues(strconv.FormatBool(ent.PaymentRequired)).Inc()
	}

	i.logger.Debug("Session issuer: session built",
		"user_id", user.ID,
		"minted", mint,
		"payment_required", ent.PaymentRequired,
		"payment_status", ent.PaymentStatus)

	return &Response{
		token:       token,
		user:        user,
		entitlement: ent,
		computedAt:  now,
	}, nil
}

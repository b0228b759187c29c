package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/dtroode/accessgate/internal/apierror"
	"github.com/dtroode/accessgate/internal/clock"
	"github.com/dtroode/accessgate/internal/logger"
	"github.com/dtroode/accessgate/internal/model"
)

// Invitation administers the invitation allow-list.
type Invitation struct {
	invitationStore model.InvitationStore
	userStore       model.UserStore
	clock           clock.Clock
	defaultTTL      time.Duration
	logger          *logger.Logger
}

func NewInvitation(
	invitationStore model.InvitationStore,
	userStore model.UserStore,
	clk clock.Clock,
	defaultTTL time.Duration,
	logger *logger.Logger,
) *Invitation {
	return &Invitation{
		invitationStore: invitationStore,
		userStore:       userStore,
		clock:           clk,
		defaultTTL:      defaultTTL,
		logger:          logger,
	}
}

// Create upserts an invitation for email expiring at expiresAt, or after the
// default TTL when nil. An invitation for an already registered email is
// redeemed by that principal immediately.
func (s *Invitation) Create(ctx context.Context, email string, expiresAt *time.Time) (model.Invitation, error) {
	email = model.NormalizeEmail(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return model.Invitation{}, apierror.NewErrBadRequest("invalid email")
	}

	now := s.clock.Now()
	expiry := now.Add(s.defaultTTL)
	if expiresAt != nil {
		expiry = expiresAt.UTC()
	}
	if !expiry.After(now) {
		return model.Invitation{}, apierror.NewErrBadRequest("expires_at must be in the future")
	}

	inv, err := s.invitationStore.Upsert(ctx, model.Invitation{
		Email:     email,
		ExpiresAt: expiry,
		CreatedAt: now,
	})
	if err != nil {
		return model.Invitation{}, fmt.Errorf("failed to upsert invitation: %w", err)
	}

	s.logger.Info("Invitation service: invitation saved",
		"email", email,
		"expires_at", expiry)

	if inv.RedeemedAt != nil {
		return inv, nil
	}

	user, err := s.userStore.GetByEmail(ctx, email)
	if errors.Is(err, model.ErrNotFound) {
		return inv, nil
	}
	if err != nil {
		return model.Invitation{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	redeemed, err := s.invitationStore.Redeem(ctx, email, user.ID, now)
	if err != nil {
		return model.Invitation{}, fmt.Errorf("failed to redeem invitation: %w", err)
	}
	if redeemed {
		s.logger.Info("Invitation service: invitation redeemed by existing user",
			"email", email,
			"user_id", user.ID)
	}

	return s.invitationStore.GetByEmail(ctx, email)
}

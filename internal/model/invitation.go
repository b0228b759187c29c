package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// FarFuture stands in for "valid forever" so expiry comparisons stay uniform.
var FarFuture = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// InvitationStore defines persistence operations for invitations.
type InvitationStore interface {
	GetByEmail(ctx context.Context, email string) (Invitation, error)
	// GetRedeemedByEmail returns the invitation only if it has been redeemed.
	GetRedeemedByEmail(ctx context.Context, email string) (Invitation, error)
	Upsert(ctx context.Context, invitation Invitation) (Invitation, error)
	// Redeem marks a live, unredeemed invitation as used by userID.
	Redeem(ctx context.Context, email string, userID uuid.UUID, now time.Time) (bool, error)
}

// Invitation is an allow-list record exempting an email from payment.
type Invitation struct {
	Email      string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	RedeemedAt *time.Time
	RedeemedBy *uuid.UUID
}

// Redeemable reports whether the invitation can still be claimed at now.
func (i Invitation) Redeemable(now time.Time) bool {
	return i.RedeemedAt == nil && i.ExpiresAt.After(now)
}

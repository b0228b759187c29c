// Package entitlement decides whether a principal may reach gated
// functionality. It is the only place that combines invitation and payment
// state; every caller must go through Compute.
package entitlement

import (
	"time"

	"github.com/dtroode/accessgate/internal/model"
)

// Entitlement is the derived, non-persisted access decision for a principal.
type Entitlement struct {
	PaymentRequired bool
	HasValidInvite  bool
	PaymentStatus   model.PaymentStatus
	// AccessExpiresAt is nil when the principal has no access.
	AccessExpiresAt *time.Time
}

// Compute derives the Entitlement at now. inv is the invitation redeemed by
// the principal, pay its payment record; either may be nil. Compute is total
// and deterministic.
//
// An invitation counts regardless of its own expiry: expiry only limits
// redemption, it does not revoke an invitation already redeemed.
func Compute(now time.Time, inv *model.Invitation, pay *model.PaymentRecord) Entitlement {
	hasInvite := inv != nil
	paymentActive := pay != nil &&
		pay.Status == model.PaymentStatusActive &&
		pay.SubscriptionEndAt.After(now)

	var expiresAt *time.Time
	if hasInvite {
		expiresAt = later(expiresAt, model.FarFuture)
	}
	if paymentActive {
		expiresAt = later(expiresAt, pay.SubscriptionEndAt)
	}

	return Entitlement{
		PaymentRequired: !hasInvite && !paymentActive,
		HasValidInvite:  hasInvite,
		PaymentStatus:   effectiveStatus(now, pay),
		AccessExpiresAt: expiresAt,
	}
}

// Allowed reports whether the entitlement grants access at now.
func (e Entitlement) Allowed(now time.Time) bool {
	return !e.PaymentRequired && e.AccessExpiresAt != nil && e.AccessExpiresAt.After(now)
}

// effectiveStatus reports an active record past its end as expired.
func effectiveStatus(now time.Time, pay *model.PaymentRecord) model.PaymentStatus {
	if pay == nil || !pay.Status.Valid() {
		return model.PaymentStatusNone
	}
	if pay.Status == model.PaymentStatusActive && !pay.SubscriptionEndAt.After(now) {
		return model.PaymentStatusExpired
	}
	return pay.Status
}

func later(cur *time.Time, candidate time.Time) *time.Time {
	if cur == nil || candidate.After(*cur) {
		t := candidate
		return &t
	}
	return cur
}

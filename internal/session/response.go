package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/accessgate/internal/entitlement"
	"github.com/dtroode/accessgate/internal/model"
)

// Response is the unified session response. Only Issuer can build one, so
// every entry point returns the same shape computed the same way.
type Response struct {
	token       string
	user        model.User
	entitlement entitlement.Entitlement
	computedAt  time.Time
}

// Token returns the minted session token, empty for refresh responses.
func (r *Response) Token() string { return r.token }

// User returns the principal the response was built for.
func (r *Response) User() model.User { return r.user }

// Entitlement returns the entitlement computed for the principal.
func (r *Response) Entitlement() entitlement.Entitlement { return r.entitlement }

// Allowed reports whether the principal was entitled when the response was built.
func (r *Response) Allowed() bool { return r.entitlement.Allowed(r.computedAt) }

// Payload returns the wire form of the response. Credential material other
// than the session token never appears in it.
func (r *Response) Payload() Payload {
	return Payload{
		AuthToken: r.token,
		AuthUser: UserView{
			ID:        r.user.ID,
			Email:     r.user.Email,
			CreatedAt: r.user.CreatedAt,
			UpdatedAt: r.user.UpdatedAt,
		},
		PaymentUser: PaymentView{
			PaymentRequired: r.entitlement.PaymentRequired,
			PaymentStatus:   r.entitlement.PaymentStatus,
			HasValidInvite:  r.entitlement.HasValidInvite,
			AccessExpiresAt: r.entitlement.AccessExpiresAt,
		},
	}
}

func (r *Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Payload())
}

// Payload is the JSON shape of a session response as seen by clients.
type Payload struct {
	AuthToken   string      `json:"auth_token"`
	AuthUser    UserView    `json:"auth_user"`
	PaymentUser PaymentView `json:"payment_user"`
}

// UserView is the public projection of a principal.
type UserView struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PaymentView is the public projection of an entitlement.
type PaymentView struct {
	PaymentRequired bool                `json:"payment_required"`
	PaymentStatus   model.PaymentStatus `json:"payment_status"`
	HasValidInvite  bool                `json:"has_valid_invite"`
	AccessExpiresAt *time.Time          `json:"access_expires_at"`
}

// Allowed reports whether the view grants access at now.
func (v PaymentView) Allowed(now time.Time) bool {
	return !v.PaymentRequired && v.AccessExpiresAt != nil && v.AccessExpiresAt.After(now)
}

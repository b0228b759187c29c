package model

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserStore defines persistence operations for principals.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	GetByIdentity(ctx context.Context, provider, subject string) (User, error)
	LinkIdentity(ctx context.Context, identity ExternalIdentity) error
}

// SignupStore creates principals together with their credentials and
// invitation redemption in a single unit of work.
type SignupStore interface {
	Register(ctx context.Context, signup Signup) (Registration, error)
}

// User represents a stored principal with its local credential.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword reports whether the principal has a local credential.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

// ExternalIdentity binds a provider subject to a principal.
type ExternalIdentity struct {
	Provider  string
	Subject   string
	UserID    uuid.UUID
	CreatedAt time.Time
}

// Signup describes a principal to create.
type Signup struct {
	User     User
	Identity *ExternalIdentity
	// RequireInvitation aborts the signup with ErrInvitationRequired when
	// no redeemable invitation exists for the email.
	RequireInvitation bool
	Now               time.Time
}

// Registration is the result of a committed signup.
type Registration struct {
	User               User
	InvitationRedeemed bool
}

// NormalizeEmail returns the canonical form used for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

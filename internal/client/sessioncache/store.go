package sessioncache

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/accessgate/internal/session"
)

// Credentials is the durable half of a client session. The token and the
// principal are always written and cleared together.
type Credentials struct {
	Token string           `json:"auth_token"`
	User  session.UserView `json:"auth_user"`
}

// Snapshot is the ephemeral half of a client session. UserID names the
// principal the entitlement was fetched for; a snapshot is only used while
// that principal is the one signed in.
type Snapshot struct {
	UserID    uuid.UUID           `json:"user_id"`
	Payment   session.PaymentView `json:"payment_user"`
	FetchedAt time.Time           `json:"fetched_at"`
}

// DurableStore keeps credentials across restarts. Load returns nil, nil when
// signed out.
type DurableStore interface {
	LoadCredentials(ctx context.Context) (*Credentials, error)
	SaveCredentials(ctx context.Context, creds Credentials) error
	ClearCredentials(ctx context.Context) error
}

// EphemeralStore keeps the last entitlement snapshot. Load returns nil, nil
// when there is none.
type EphemeralStore interface {
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	ClearSnapshot(ctx context.Context) error
}

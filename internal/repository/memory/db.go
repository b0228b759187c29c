// Package memory provides process-local implementations of the model stores.
// It backs tests and the development mode that runs without a database.
package memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dtroode/accessgate/internal/model"
)

// DB is the shared state behind the memory repositories. One mutex guards
// every table so multi-table operations stay atomic.
type DB struct {
	mu sync.RWMutex

	users       map[uuid.UUID]model.User
	emails      map[string]uuid.UUID
	identities  map[identityKey]model.ExternalIdentity
	invitations map[string]model.Invitation
	payments    map[uuid.UUID]model.PaymentRecord
	events      map[string]model.PaymentEvent
}

type identityKey struct {
	provider string
	subject  string
}

// NewDB creates an empty memory database.
func NewDB() *DB {
	return &DB{
		users:       make(map[uuid.UUID]model.User),
		emails:      make(map[string]uuid.UUID),
		identities:  make(map[identityKey]model.ExternalIdentity),
		invitations: make(map[string]model.Invitation),
		payments:    make(map[uuid.UUID]model.PaymentRecord),
		events:      make(map[string]model.PaymentEvent),
	}
}

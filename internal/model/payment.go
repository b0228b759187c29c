package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus enumerates payment record states.
type PaymentStatus string

const (
	PaymentStatusNone    PaymentStatus = "none"
	PaymentStatusActive  PaymentStatus = "active"
	PaymentStatusExpired PaymentStatus = "expired"
	PaymentStatusRevoked PaymentStatus = "revoked"
)

// Valid reports whether s is a known status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusNone, PaymentStatusActive, PaymentStatusExpired, PaymentStatusRevoked:
		return true
	}
	return false
}

// PaymentStore defines persistence operations for payment records.
type PaymentStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (PaymentRecord, error)
	// ApplyEvent records the event id and, unless the event is a duplicate
	// or older than the last applied event, upserts the payment record.
	ApplyEvent(ctx context.Context, event PaymentEvent) (EventOutcome, error)
}

// PaymentRecord is the durable payment state of a principal.
type PaymentRecord struct {
	UserID            uuid.UUID
	Status            PaymentStatus
	SubscriptionEndAt time.Time
	LastEventID       string
	LastEventAt       time.Time
	UpdatedAt         time.Time
}

// PaymentEventType enumerates provider notifications.
type PaymentEventType string

const (
	EventPaymentSucceeded      PaymentEventType = "payment.succeeded"
	EventSubscriptionRenewed   PaymentEventType = "subscription.renewed"
	EventSubscriptionCanceled  PaymentEventType = "subscription.canceled"
	EventSubscriptionExpired   PaymentEventType = "subscription.expired"
	EventOneTimePaymentConfirm PaymentEventType = "charge.confirmed"
)

// PaymentEvent is a verified provider notification mapped to its target state.
type PaymentEvent struct {
	ID                string
	UserID            uuid.UUID
	Type              PaymentEventType
	Status            PaymentStatus
	SubscriptionEndAt time.Time
	OccurredAt        time.Time
	ReceivedAt        time.Time
}

// EventOutcome describes what ApplyEvent did with an event.
type EventOutcome string

const (
	OutcomeApplied   EventOutcome = "applied"
	OutcomeDuplicate EventOutcome = "duplicate"
	OutcomeStale     EventOutcome = "stale"
)

// Supersedes reports whether event is newer than the last event applied to
// current. Ordering is by provider timestamp, then by event id.
func Supersedes(current *PaymentRecord, event PaymentEvent) bool {
	if current == nil || current.LastEventID == "" {
		return true
	}
	if event.OccurredAt.Equal(current.LastEventAt) {
		return event.ID > current.LastEventID
	}
	return event.OccurredAt.After(current.LastEventAt)
}

// NextRecord returns the record produced by applying event.
func NextRecord(event PaymentEvent) PaymentRecord {
	return PaymentRecord{
		UserID:            event.UserID,
		Status:            event.Status,
		SubscriptionEndAt: event.SubscriptionEndAt,
		LastEventID:       event.ID,
		LastEventAt:       event.OccurredAt,
		UpdatedAt:         event.ReceivedAt,
	}
}

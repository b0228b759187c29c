package payment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/accessgate/internal/model"
)

// Event is the webhook body sent by the payment provider.
type Event struct {
	ID                string     `json:"id"`
	Type              string     `json:"type"`
	UserID            string     `json:"user_id"`
	SubscriptionEndAt *time.Time `json:"subscription_end_at,omitempty"`
	OccurredAt        time.Time  `json:"occurred_at"`
}

// DecodeEvent parses a verified webhook body and maps it to the payment
// record state it targets.
func DecodeEvent(body []byte, receivedAt time.Time) (model.PaymentEvent, error) {
	var raw Event
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.PaymentEvent{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return raw.toModel(receivedAt)
}

func (e Event) toModel(receivedAt time.Time) (model.PaymentEvent, error) {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return model.PaymentEvent{}, fmt.Errorf("event id is empty")
	}
	userID, err := uuid.Parse(e.UserID)
	if err != nil {
		return model.PaymentEvent{}, fmt.Errorf("invalid user_id: %w", err)
	}
	if e.OccurredAt.IsZero() {
		return model.PaymentEvent{}, fmt.Errorf("occurred_at is required")
	}

	typ := model.PaymentEventType(e.Type)
	status, err := StatusFor(typ)
	if err != nil {
		return model.PaymentEvent{}, err
	}

	var endAt time.Time
	switch {
	case e.SubscriptionEndAt != nil:
		endAt = e.SubscriptionEndAt.UTC()
	case status == model.PaymentStatusActive:
		return model.PaymentEvent{}, fmt.Errorf("subscription_end_at is required for %s", typ)
	default:
		endAt = e.OccurredAt.UTC()
	}

	return model.PaymentEvent{
		ID:                id,
		UserID:            userID,
		Type:              typ,
		Status:            status,
		SubscriptionEndAt: endAt,
		OccurredAt:        e.OccurredAt.UTC(),
		ReceivedAt:        receivedAt,
	}, nil
}

// StatusFor maps an event type to the payment status it sets.
func StatusFor(typ model.PaymentEventType) (model.PaymentStatus, error) {
	switch typ {
	case model.EventPaymentSucceeded, model.EventSubscriptionRenewed, model.EventOneTimePaymentConfirm:
		return model.PaymentStatusActive, nil
	case model.EventSubscriptionCanceled:
		return model.PaymentStatusRevoked, nil
	case model.EventSubscriptionExpired:
		return model.PaymentStatusExpired, nil
	default:
		return "", fmt.Errorf("%w: %q", model.ErrUnknownEventType, typ)
	}
}

// ChargeEventID is the event id recorded for a confirmed one-time charge, so
// repeated confirmations of the same charge deduplicate like webhooks.
func ChargeEventID(chargeID string) string {
	return "charge:" + chargeID
}

// ArchiveKey is the object key of a raw event body, partitioned by the day
// the event was received.
func ArchiveKey(event model.PaymentEvent) string {
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, event.ID)
	return fmt.Sprintf("payment-events/%s/%s.json", event.ReceivedAt.UTC().Format("2006/01/02"), id)
}

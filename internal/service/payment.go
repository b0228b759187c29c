package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dtroode/accessgate/internal/apierror"
	"github.com/dtroode/accessgate/internal/clock"
	"github.com/dtroode/accessgate/internal/logger"
	"github.com/dtroode/accessgate/internal/metrics"
	"github.com/dtroode/accessgate/internal/model"
	"github.com/dtroode/accessgate/internal/payment"
)

// ChargeGetter reads one-time charges from the payment processor.
type ChargeGetter interface {
	GetCharge(ctx context.Context, chargeID string) (payment.Charge, error)
}

// Payment ingests provider events into payment records. It never computes
// entitlement; clients see the change on their next session call.
type Payment struct {
	paymentStore model.PaymentStore
	processor    ChargeGetter
	archive      model.Storage
	secret       []byte
	clock        clock.Clock
	metrics      *metrics.Metrics
	logger       *logger.Logger
}

// NewPayment creates the payment ingestor. processor, archive and m may be nil.
func NewPayment(
	paymentStore model.PaymentStore,
	processor ChargeGetter,
	archive model.Storage,
	webhookSecret string,
	clk clock.Clock,
	m *metrics.Metrics,
	logger *logger.Logger,
) *Payment {
	return &Payment{
		paymentStore: paymentStore,
		processor:    processor,
		archive:      archive,
		secret:       []byte(webhookSecret),
		clock:        clk,
		metrics:      m,
		logger:       logger,
	}
}

// HandleWebhook authenticates, decodes and applies a provider notification.
// Unverified bodies are rejected before decoding.
func (s *Payment) HandleWebhook(ctx context.Context, body []byte, signature string) (model.EventOutcome, error) {
	if err := payment.VerifySignature(s.secret, body, signature); err != nil {
		s.logger.Warn("Payment ingestor: webhook rejected",
			"error", err.Error())
		return "", err
	}

	event, err := payment.DecodeEvent(body, s.clock.Now())
	if err != nil {
		s.logger.Warn("Payment ingestor: invalid event",
			"error", err.Error())
		if errors.Is(err, model.ErrUnknownEventType) {
			return "", err
		}
		return "", apierror.NewErrBadRequest("invalid payment event")
	}

	outcome, err := s.apply(ctx, event)
	if err != nil {
		return "", err
	}

	s.archiveEvent(ctx, event, body)
	return outcome, nil
}

// ConfirmCharge records a paid one-time charge owned by userID through the
// same idempotent path as webhooks.
func (s *Payment) ConfirmCharge(ctx context.Context, userID uuid.UUID, chargeID string) (model.EventOutcome, error) {
	if s.processor == nil {
		return "", model.ErrPaymentNotConfigured
	}
	if chargeID == "" {
		return "", apierror.NewErrBadRequest("charge_id is required")
	}

	charge, err := s.processor.GetCharge(ctx, chargeID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrPaymentNotConfigured) {
			return "", err
		}
		return "", fmt.Errorf("failed to get charge: %w", err)
	}
	// Charges of other principals look absent.
	if charge.UserID != userID.String() {
		return "", model.ErrNotFound
	}
	if !charge.Paid() {
		return "", model.ErrChargeNotPaid
	}

	now := s.clock.Now()
	occurredAt := charge.PaidAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	return s.apply(ctx, model.PaymentEvent{
		ID:                payment.ChargeEventID(charge.ID),
		UserID:            userID,
		Type:              model.EventOneTimePaymentConfirm,
		Status:            model.PaymentStatusActive,
		SubscriptionEndAt: charge.AccessUntil.UTC(),
		OccurredAt:        occurredAt.UTC(),
		ReceivedAt:        now,
	})
}

func (s *Payment) apply(ctx context.Context, event model.PaymentEvent) (model.EventOutcome, error) {
	outcome, err := s.paymentStore.ApplyEvent(ctx, event)
	if err != nil {
		s.logger.Error("Payment ingestor: failed to apply event",
			"event_id", event.ID,
			"user_id", event.UserID,
			"error", err.Error())
		return "", fmt.Errorf("failed to apply payment event: %w", err)
	}

	if s.metrics != nil {
		s.metrics.PaymentEvents.WithLabelValues(string(event.Type), string(outcome)).Inc()
	}

	s.logger.Info("Payment ingestor: event processed",
		"event_id", event.ID,
		"type", event.Type,
		"user_id", event.UserID,
		"status", event.Status,
		"outcome", outcome)

	return outcome, nil
}

// archiveEvent stores the raw body once per event id. Failures are logged
// and do not affect the acknowledgement.
func (s *Payment) archiveEvent(ctx context.Context, event model.PaymentEvent, body []byte) {
	if s.archive == nil {
		return
	}

	key := payment.ArchiveKey(event)
	exists, err := s.archive.Exists(ctx, key)
	if err != nil {
		s.logger.Error("Payment ingestor: failed to check archive",
			"key", key,
			"error", err.Error())
		return
	}
	if exists {
		return
	}

	if err := s.archive.Upload(ctx, key, bytes.NewReader(body)); err != nil {
		s.logger.Error("Payment ingestor: failed to archive event",
			"key", key,
			"error", err.Error())
	}
}

package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dtroode/accessgate/internal/model"
)

// PaymentStore is a mock type for the model.PaymentStore type.
type PaymentStore struct {
	mock.Mock
}

func (m *PaymentStore) GetByUserID(ctx context.Context, userID uuid.UUID) (model.PaymentRecord, error) {
	ret := m.Called(ctx, userID)
	return ret.Get(0).(model.PaymentRecord), ret.Error(1)
}

func (m *PaymentStore) ApplyEvent(ctx context.Context, event model.PaymentEvent) (model.EventOutcome, error) {
	ret := m.Called(ctx, event)
	return ret.Get(0).(model.EventOutcome), ret.Error(1)
}

// NewPaymentStore creates a PaymentStore mock that asserts its expectations on cleanup.
func NewPaymentStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *PaymentStore {
	m := &PaymentStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

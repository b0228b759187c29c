package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dtroode/accessgate/internal/model"
)

// InvitationStore is a mock type for the model.InvitationStore type.
type InvitationStore struct {
	mock.Mock
}

func (m *InvitationStore) GetByEmail(ctx context.Context, email string) (model.Invitation, error) {
	ret := m.Called(ctx, email)
	return ret.Get(0).(model.Invitation), ret.Error(1)
}

func (m *InvitationStore) GetRedeemedByEmail(ctx context.Context, email string) (model.Invitation, error) {
	ret := m.Called(ctx, email)
	return ret.Get(0).(model.Invitation), ret.Error(1)
}

func (m *InvitationStore) Upsert(ctx context.Context, invitation model.Invitation) (model.Invitation, error) {
	ret := m.Called(ctx, invitation)
	return ret.Get(0).(model.Invitation), ret.Error(1)
}

func (m *InvitationStore) Redeem(ctx context.Context, email string, userID uuid.UUID, now time.Time) (bool, error) {
	ret := m.Called(ctx, email, userID, now)
	return ret.Bool(0), ret.Error(1)
}

// NewInvitationStore creates an InvitationStore mock that asserts its expectations on cleanup.
func NewInvitationStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *InvitationStore {
	m := &InvitationStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

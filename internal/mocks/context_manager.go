package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// ContextManager is a mock type for the model.ContextManager type.
type ContextManager struct {
	mock.Mock
}

func (m *ContextManager) SetUserIDToContext(ctx context.Context, userID uuid.UUID) context.Context {
	ret := m.Called(ctx, userID)
	return ret.Get(0).(context.Context)
}

func (m *ContextManager) GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	ret := m.Called(ctx)
	return ret.Get(0).(uuid.UUID), ret.Bool(1)
}

// NewContextManager creates a ContextManager mock that asserts its expectations on cleanup.
func NewContextManager(t interface {
	mock.TestingT
	Cleanup(func())
}) *ContextManager {
	m := &ContextManager{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

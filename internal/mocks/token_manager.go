package mocks

import (
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// TokenManager is a mock type for the model.TokenManager type.
type TokenManager struct {
	mock.Mock
}

func (m *TokenManager) Issue(userID uuid.UUID, ttl time.Duration) (string, error) {
	ret := m.Called(userID, ttl)
	return ret.String(0), ret.Error(1)
}

func (m *TokenManager) Validate(token string) (uuid.UUID, error) {
	ret := m.Called(token)
	return ret.Get(0).(uuid.UUID), ret.Error(1)
}

// NewTokenManager creates a TokenManager mock that asserts its expectations on cleanup.
func NewTokenManager(t interface {
	mock.TestingT
	Cleanup(func())
}) *TokenManager {
	m := &TokenManager{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

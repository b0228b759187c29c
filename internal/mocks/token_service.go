package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// TokenService is a mock type for the middleware TokenService type.
type TokenService struct {
	mock.Mock
}

func (m *TokenService) GetUserID(ctx context.Context, token string) (uuid.UUID, error) {
	ret := m.Called(ctx, token)
	return ret.Get(0).(uuid.UUID), ret.Error(1)
}

// NewTokenService creates a TokenService mock that asserts its expectations on cleanup.
func NewTokenService(t interface {
	mock.TestingT
	Cleanup(func())
}) *TokenService {
	m := &TokenService{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

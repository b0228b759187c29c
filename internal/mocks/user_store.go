package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dtroode/accessgate/internal/model"
)

// UserStore is a mock type for the model.UserStore type.
type UserStore struct {
	mock.Mock
}

func (m *UserStore) GetByEmail(ctx context.Context, email string) (model.User, error) {
	ret := m.Called(ctx, email)
	return ret.Get(0).(model.User), ret.Error(1)
}

func (m *UserStore) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	ret := m.Called(ctx, id)
	return ret.Get(0).(model.User), ret.Error(1)
}

func (m *UserStore) GetByIdentity(ctx context.Context, provider, subject string) (model.User, error) {
	ret := m.Called(ctx, provider, subject)
	return ret.Get(0).(model.User), ret.Error(1)
}

func (m *UserStore) LinkIdentity(ctx context.Context, identity model.ExternalIdentity) error {
	ret := m.Called(ctx, identity)
	return ret.Error(0)
}

// NewUserStore creates a UserStore mock that asserts its expectations on cleanup.
func NewUserStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *UserStore {
	m := &UserStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// SignupStore is a mock type for the model.SignupStore type.
type SignupStore struct {
	mock.Mock
}

func (m *SignupStore) Register(ctx context.Context, signup model.Signup) (model.Registration, error) {
	ret := m.Called(ctx, signup)
	return ret.Get(0).(model.Registration), ret.Error(1)
}

// NewSignupStore creates a SignupStore mock that asserts its expectations on cleanup.
func NewSignupStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *SignupStore {
	m := &SignupStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

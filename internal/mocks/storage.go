package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// Storage is a mock type for the model.Storage type.
type Storage struct {
	mock.Mock
}

func (m *Storage) Upload(ctx context.Context, key string, reader io.Reader) error {
	ret := m.Called(ctx, key, reader)
	return ret.Error(0)
}

func (m *Storage) Exists(ctx context.Context, key string) (bool, error) {
	ret := m.Called(ctx, key)
	return ret.Bool(0), ret.Error(1)
}

// NewStorage creates a Storage mock that asserts its expectations on cleanup.
func NewStorage(t interface {
	mock.TestingT
	Cleanup(func())
}) *Storage {
	m := &Storage{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

package mocks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/hearth/internal/domain"
)

// MockSupervisor is a mock implementation of out.Supervisor.
type MockSupervisor struct {
	mock.Mock
}

// NewMockSupervisor creates a mock that asserts its expectations on cleanup.
func NewMockSupervisor(t *testing.T) *MockSupervisor {
	m := &MockSupervisor{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSupervisor) Register(ctx context.Context, unit domain.UnitFile) error {
	args := m.Called(ctx, unit)
	return args.Error(0)
}

func (m *MockSupervisor) Reload(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSupervisor) Enable(ctx context.Context, names ...string) error {
	args := m.Called(ctx, names)
	return args.Error(0)
}

func (m *MockSupervisor) Start(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockSupervisor) Stop(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockSupervisor) Remove(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockSupervisor) Status(ctx context.Context, names ...string) ([]domain.UnitState, error) {
	args := m.Called(ctx, names)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.UnitState), args.Error(1)
}

// Package mocks provides testify mocks of the output ports.
package mocks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/hearth/internal/domain"
)

// MockContainerRuntime is a mock implementation of out.ContainerRuntime.
type MockContainerRuntime struct {
	mock.Mock
}

// NewMockContainerRuntime creates a mock that asserts its expectations on cleanup.
func NewMockContainerRuntime(t *testing.T) *MockContainerRuntime {
	m := &MockContainerRuntime{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockContainerRuntime) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockContainerRuntime) Version(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockContainerRuntime) WaitReady(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockContainerRuntime) PullImage(ctx context.Context, image string) error {
	args := m.Called(ctx, image)
	return args.Error(0)
}

func (m *MockContainerRuntime) PullImageWithAuth(ctx context.Context, image string, auth domain.RegistryAuth) error {
	args := m.Called(ctx, image, auth)
	return args.Error(0)
}

func (m *MockContainerRuntime) RegistryLogin(ctx context.Context, auth domain.RegistryAuth) (string, error) {
	args := m.Called(ctx, auth)
	return args.String(0), args.Error(1)
}

func (m *MockContainerRuntime) CreateNetwork(ctx context.Context, name string, options map[string]string) error {
	args := m.Called(ctx, name, options)
	return args.Error(0)
}

func (m *MockContainerRuntime) NetworkExists(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

// Package mocks provides testify mocks of the input ports.
package mocks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/hearth/internal/domain"
)

func register(t *testing.T, m *mock.Mock) {
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
}

// MockDiskProvisioner is a mock implementation of in.DiskProvisioner.
type MockDiskProvisioner struct{ mock.Mock }

// NewMockDiskProvisioner creates a mock that asserts its expectations on cleanup.
func NewMockDiskProvisioner(t *testing.T) *MockDiskProvisioner {
	m := &MockDiskProvisioner{}
	register(t, &m.Mock)
	return m
}

func (m *MockDiskProvisioner) Ensure(ctx context.Context) (domain.StepResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.StepResult), args.Error(1)
}

// MockConfigMaterializer is a mock implementation of in.ConfigMaterializer.
type MockConfigMaterializer struct{ mock.Mock }

// NewMockConfigMaterializer creates a mock that asserts its expectations on cleanup.
func NewMockConfigMaterializer(t *testing.T) *MockConfigMaterializer {
	m := &MockConfigMaterializer{}
	register(t, &m.Mock)
	return m
}

func (m *MockConfigMaterializer) Render(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockConfigMaterializer) Materialize(ctx context.Context) (domain.StepResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.StepResult), args.Error(1)
}

// MockNetworkFabric is a mock implementation of in.NetworkFabric.
type MockNetworkFabric struct{ mock.Mock }

// NewMockNetworkFabric creates a mock that asserts its expectations on cleanup.
func NewMockNetworkFabric(t *testing.T) *MockNetworkFabric {
	m := &MockNetworkFabric{}
	register(t, &m.Mock)
	return m
}

func (m *MockNetworkFabric) Ensure(ctx context.Context) (domain.StepResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.StepResult), args.Error(1)
}

// MockRegistryAuthenticator is a mock implementation of in.RegistryAuthenticator.
type MockRegistryAuthenticator struct{ mock.Mock }

// NewMockRegistryAuthenticator creates a mock that asserts its expectations on cleanup.
func NewMockRegistryAuthenticator(t *testing.T) *MockRegistryAuthenticator {
	m := &MockRegistryAuthenticator{}
	register(t, &m.Mock)
	return m
}

func (m *MockRegistryAuthenticator) Authenticate(ctx context.Context) domain.StepResult {
	args := m.Called(ctx)
	return args.Get(0).(domain.StepResult)
}

// MockImagePrefetcher is a mock implementation of in.ImagePrefetcher.
type MockImagePrefetcher struct{ mock.Mock }

// NewMockImagePrefetcher creates a mock that asserts its expectations on cleanup.
func NewMockImagePrefetcher(t *testing.T) *MockImagePrefetcher {
	m := &MockImagePrefetcher{}
	register(t, &m.Mock)
	return m
}

func (m *MockImagePrefetcher) Prefetch(ctx context.Context) domain.StepResult {
	args := m.Called(ctx)
	return args.Get(0).(domain.StepResult)
}

// MockUnitSynthesizer is a mock implementation of in.UnitSynthesizer.
type MockUnitSynthesizer struct{ mock.Mock }

// NewMockUnitSynthesizer creates a mock that asserts its expectations on cleanup.
func NewMockUnitSynthesizer(t *testing.T) *MockUnitSynthesizer {
	m := &MockUnitSynthesizer{}
	register(t, &m.Mock)
	return m
}

func (m *MockUnitSynthesizer) Definitions(ctx context.Context) ([]domain.ServiceDefinition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ServiceDefinition), args.Error(1)
}

func (m *MockUnitSynthesizer) Synthesize(ctx context.Context) ([]domain.UnitFile, domain.StepResult, error) {
	args := m.Called(ctx)
	var units []domain.UnitFile
	if args.Get(0) != nil {
		units = args.Get(0).([]domain.UnitFile)
	}
	return units, args.Get(1).(domain.StepResult), args.Error(2)
}

// MockServiceActivator is a mock implementation of in.ServiceActivator.
type MockServiceActivator struct{ mock.Mock }

// NewMockServiceActivator creates a mock that asserts its expectations on cleanup.
func NewMockServiceActivator(t *testing.T) *MockServiceActivator {
	m := &MockServiceActivator{}
	register(t, &m.Mock)
	return m
}

func (m *MockServiceActivator) Activate(ctx context.Context, units []domain.UnitFile) (domain.StepResult, error) {
	args := m.Called(ctx, units)
	return args.Get(0).(domain.StepResult), args.Error(1)
}

func (m *MockServiceActivator) Deactivate(ctx context.Context, units []domain.UnitFile) (domain.StepResult, error) {
	args := m.Called(ctx, units)
	return args.Get(0).(domain.StepResult), args.Error(1)
}

func (m *MockServiceActivator) Status(ctx context.Context, units []domain.UnitFile) ([]domain.UnitState, error) {
	args := m.Called(ctx, units)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.UnitState), args.Error(1)
}

// MockBootstrapper is a mock implementation of in.Bootstrapper.
type MockBootstrapper struct{ mock.Mock }

// NewMockBootstrapper creates a mock that asserts its expectations on cleanup.
func NewMockBootstrapper(t *testing.T) *MockBootstrapper {
	m := &MockBootstrapper{}
	register(t, &m.Mock)
	return m
}

func (m *MockBootstrapper) Run(ctx context.Context) (domain.Report, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Report), args.Error(1)
}

func (m *MockBootstrapper) Down(ctx context.Context) (domain.StepResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.StepResult), args.Error(1)
}

func (m *MockBootstrapper) Status(ctx context.Context) ([]domain.UnitState, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.UnitState), args.Error(1)
}

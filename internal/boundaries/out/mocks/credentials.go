package mocks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/hearth/internal/domain"
)

// MockCredentialStore is a mock implementation of out.CredentialStore.
type MockCredentialStore struct {
	mock.Mock
}

// NewMockCredentialStore creates a mock that asserts its expectations on cleanup.
func NewMockCredentialStore(t *testing.T) *MockCredentialStore {
	m := &MockCredentialStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockCredentialStore) Store(ctx context.Context, auth domain.RegistryAuth) error {
	args := m.Called(ctx, auth)
	return args.Error(0)
}

func (m *MockCredentialStore) Lookup(ctx context.Context, server string) (domain.RegistryAuth, bool, error) {
	args := m.Called(ctx, server)
	return args.Get(0).(domain.RegistryAuth), args.Bool(1), args.Error(2)
}

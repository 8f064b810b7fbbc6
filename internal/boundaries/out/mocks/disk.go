package mocks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/hearth/internal/domain"
)

// MockBlockDevices is a mock implementation of out.BlockDevices.
type MockBlockDevices struct {
	mock.Mock
}

// NewMockBlockDevices creates a mock that asserts its expectations on cleanup.
func NewMockBlockDevices(t *testing.T) *MockBlockDevices {
	m := &MockBlockDevices{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockBlockDevices) Stat(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func (m *MockBlockDevices) Probe(ctx context.Context, path string) (domain.Signature, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(domain.Signature), args.Error(1)
}

func (m *MockBlockDevices) Format(ctx context.Context, path, fsType, label string, options []string) error {
	args := m.Called(ctx, path, fsType, label, options)
	return args.Error(0)
}

// MockMountTable is a mock implementation of out.MountTable.
type MockMountTable struct {
	mock.Mock
}

// NewMockMountTable creates a mock that asserts its expectations on cleanup.
func NewMockMountTable(t *testing.T) *MockMountTable {
	m := &MockMountTable{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockMountTable) Lookup(ctx context.Context, mountPoint string) (*domain.MountRecord, error) {
	args := m.Called(ctx, mountPoint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MountRecord), args.Error(1)
}

func (m *MockMountTable) Add(ctx context.Context, record domain.MountRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockMountTable) MountAll(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

package mocks

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/mock"
)

// MockFileSystem is a mock implementation of out.FileSystem.
type MockFileSystem struct {
	mock.Mock
}

// NewMockFileSystem creates a mock that asserts its expectations on cleanup.
func NewMockFileSystem(t *testing.T) *MockFileSystem {
	m := &MockFileSystem{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockFileSystem) MkdirAll(path string, perm fs.FileMode) error {
	args := m.Called(path, perm)
	return args.Error(0)
}

func (m *MockFileSystem) WriteFile(path string, data []byte, perm fs.FileMode) error {
	args := m.Called(path, data, perm)
	return args.Error(0)
}

func (m *MockFileSystem) ReadFile(path string) ([]byte, error) {
	args := m.Called(path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockFileSystem) Chmod(path string, perm fs.FileMode) error {
	args := m.Called(path, perm)
	return args.Error(0)
}

func (m *MockFileSystem) Chown(path string, uid, gid int) error {
	args := m.Called(path, uid, gid)
	return args.Error(0)
}

func (m *MockFileSystem) Remove(path string) error {
	args := m.Called(path)
	return args.Error(0)
}

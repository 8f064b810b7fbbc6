// Package testutils provides shared helpers and in-memory host fakes for tests.
package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// TestContext creates a test context with timeout and a logger attached.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return zerowrap.WithCtx(ctx, zerowrap.Default())
}

// MemFs returns an in-memory filesystem seeded with files.
func MemFs(t *testing.T, files map[string]string) afero.Fs {
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return fs
}

// ReadFile reads path from fs, failing the test if it is missing.
func ReadFile(t *testing.T, fs afero.Fs, path string) string {
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err, "reading %s", path)
	return string(data)
}

// AssertEventuallyTrue retries a condition until it's true or times out
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Condition never became true: %s", message)
}

package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/hearth/internal/domain"
	"github.com/bnema/hearth/internal/testutils"
)

func useConfigSearchPaths(t *testing.T, dirs ...string) {
	t.Helper()
	orig := configSearchPaths
	configSearchPaths = dirs
	t.Cleanup(func() { configSearchPaths = orig })
}

func TestWatchedFiles(t *testing.T) {
	files := watchedFiles("/etc/hearth/hearth.toml", "")
	assert.Equal(t, []string{DefaultInputsPath, "/etc/hearth/hearth.toml"}, files)

	files = watchedFiles("", "/run/inputs.env")
	assert.Equal(t, []string{"/run/inputs.env"}, files)
}

func TestWaitForChange_FiresOnTargetWrite(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "inputs.env")
	require.NoError(t, os.WriteFile(target, []byte("A=1\n"), 0o600))

	ctx := testutils.TestContext(t)
	done := make(chan error, 1)
	go func() { done <- waitForChange(ctx, []string{target}, 50*time.Millisecond) }()

	// unrelated files in the same directory are ignored
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other"), []byte("x"), 0o600))
	select {
	case err := <-done:
		t.Fatalf("returned on unrelated write: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(target, []byte("A=2\n"), 0o600))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("change was not detected")
	}
}

func TestWaitForChange_StopsWithContext(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(testutils.TestContext(t))
	cancel()

	err := waitForChange(ctx, []string{filepath.Join(dir, "hearth.toml")}, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForChange_NoDirectories(t *testing.T) {
	ctx := testutils.TestContext(t)
	err := waitForChange(ctx, []string{"/nonexistent/hearth/inputs.env"}, time.Second)
	assert.Error(t, err)
}

func TestConfigFileFor(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	useConfigSearchPaths(t, first, second)

	assert.Equal(t, "/srv/hearth.toml", configFileFor(Options{ConfigPath: "/srv/hearth.toml"}))
	// nothing on disk yet: the first location is where a new file is picked up
	assert.Equal(t, filepath.Join(first, "hearth.toml"), configFileFor(Options{}))

	require.NoError(t, os.WriteFile(filepath.Join(second, "hearth.toml"), []byte(testConfig), 0o644))
	assert.Equal(t, filepath.Join(second, "hearth.toml"), configFileFor(Options{}))
}

func TestRunOnce_BrokenSearchedConfigIsStillWatched(t *testing.T) {
	dir := t.TempDir()
	useConfigSearchPaths(t, filepath.Join(dir, "missing"), dir)

	configFile := filepath.Join(dir, "hearth.toml")
	inputs := filepath.Join(dir, "inputs.env")
	require.NoError(t, os.WriteFile(configFile, []byte("[app\nport = "), 0o644))
	require.NoError(t, os.WriteFile(inputs, []byte(testInputs), 0o600))

	ctx := testutils.TestContext(t)
	var runErr error
	sources := runOnce(ctx, Options{InputsPath: inputs}, func(_ domain.Report, err error) {
		runErr = err
	})

	assert.ErrorIs(t, runErr, domain.ErrConfigLoadFailed)
	assert.ElementsMatch(t, []string{inputs, configFile}, sources)

	// repairing the config file ends the wait, which starts the next run
	done := make(chan error, 1)
	go func() { done <- waitForChange(ctx, sources, 50*time.Millisecond) }()
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(configFile, []byte(testConfig), 0o644))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("config repair was not detected")
	}
}

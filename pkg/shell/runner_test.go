package shell

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_Success(t *testing.T) {
	res, err := NewExecRunner().Run(context.Background(), "sh", "-c", "printf hello")

	require.NoError(t, err)
	assert.Equal(t, "hello", string(res.Stdout))
	assert.Equal(t, 0, res.ExitCode)
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	res, err := NewExecRunner().Run(context.Background(), "sh", "-c", "echo oops >&2; exit 2")

	require.Error(t, err)
	assert.Equal(t, 2, res.ExitCode)
	assert.Equal(t, 2, ExitCode(err))

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, "oops", exitErr.Stderr)
	assert.Contains(t, err.Error(), "exit status 2")
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := NewExecRunner().Run(context.Background(), "/nonexistent/hearth-test-binary")

	require.Error(t, err)
	assert.Equal(t, -1, ExitCode(err))
}

func TestFakeRunner_RecordsCalls(t *testing.T) {
	f := &FakeRunner{Handler: func(name string, args []string) (Result, error) {
		if name == "false" {
			return Result{}, Exited(name, 1, "")
		}
		return Result{Stdout: []byte("ok")}, nil
	}}

	res, err := f.Run(context.Background(), "echo", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(res.Stdout))

	res, err = f.Run(context.Background(), "false")
	require.Error(t, err)
	assert.Equal(t, 1, res.ExitCode)

	calls := f.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "echo a b", calls[0].String())
	assert.Equal(t, "false", calls[1].String())
}

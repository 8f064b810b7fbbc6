package shell

import (
	"context"
	"strings"
	"sync"
)

// Call records one invocation made through a FakeRunner.
type Call struct {
	Name string
	Args []string
}

// String renders the call as a command line.
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// FakeRunner is a scripted Runner for tests. Handler decides each result;
// a nil handler succeeds with empty output.
type FakeRunner struct {
	Handler func(name string, args []string) (Result, error)

	mu    sync.Mutex
	calls []Call
}

// Run records the call and delegates to Handler.
func (f *FakeRunner) Run(_ context.Context, name string, args ...string) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Name: name, Args: append([]string(nil), args...)})
	f.mu.Unlock()

	if f.Handler == nil {
		return Result{}, nil
	}
	res, err := f.Handler(name, args)
	if err != nil && res.ExitCode == 0 {
		res.ExitCode = ExitCode(err)
	}
	return res, err
}

// Calls returns the recorded invocations.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Exited builds the error a command exiting with code would produce.
func Exited(name string, code int, stderr string) error {
	return &ExitError{Command: name, Code: code, Stderr: stderr}
}

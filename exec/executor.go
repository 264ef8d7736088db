// Package exec runs short-lived external commands (git, version probes)
// behind an interface so tests can substitute canned results.
package exec

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"
)

// Invocation is a single command run.
type Invocation struct {
	Dir  string
	Name string
	Args []string
	// Env entries are appended to the current environment. Later entries
	// win, so an entry here overrides the inherited value.
	Env []string
}

// CommandExecutor abstracts command execution.
type CommandExecutor interface {
	// Invoke runs inv to completion and returns its captured streams.
	Invoke(ctx context.Context, inv Invocation) (stdout, stderr []byte, err error)

	// Run is Invoke without extra environment.
	Run(ctx context.Context, dir string, name string, args ...string) (stdout, stderr []byte, err error)

	// Output returns stdout only.
	Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error)

	// CombinedOutput returns stdout followed by stderr.
	CombinedOutput(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// RealExecutor executes commands using os/exec.
type RealExecutor struct{}

// NewRealExecutor returns a new RealExecutor.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

// Invoke runs the command and waits for it.
func (e *RealExecutor) Invoke(ctx context.Context, inv Invocation) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, inv.Name, inv.Args...)
	cmd.Dir = inv.Dir
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// Run executes a command and returns stdout, stderr, and any error.
func (e *RealExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, []byte, error) {
	return e.Invoke(ctx, Invocation{Dir: dir, Name: name, Args: args})
}

// Output executes a command and returns stdout.
func (e *RealExecutor) Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	stdout, _, err := e.Run(ctx, dir, name, args...)
	return stdout, err
}

// CombinedOutput executes a command and returns stdout+stderr.
func (e *RealExecutor) CombinedOutput(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// MockResponse is the canned result for a matched invocation.
type MockResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
	// Delay holds the response back. If ctx ends first, ctx.Err() is
	// returned instead.
	Delay time.Duration
}

// Matcher decides whether a rule applies to an invocation.
type Matcher func(inv Invocation) bool

type mockRule struct {
	match Matcher
	resp  MockResponse
}

// MockExecutor answers invocations from registered rules, first match wins.
// Unmatched invocations go to the fallback, or succeed with empty output.
type MockExecutor struct {
	mu       sync.Mutex
	rules    []mockRule
	calls    []Invocation
	fallback CommandExecutor
}

// NewMockExecutor creates a MockExecutor. fallback may be nil.
func NewMockExecutor(fallback CommandExecutor) *MockExecutor {
	return &MockExecutor{fallback: fallback}
}

// AddRule registers a custom matcher.
func (e *MockExecutor) AddRule(match Matcher, resp MockResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, mockRule{match: match, resp: resp})
}

// AddExactMatch matches name and the complete argument list.
func (e *MockExecutor) AddExactMatch(name string, args []string, resp MockResponse) {
	e.AddRule(func(inv Invocation) bool {
		return inv.Name == name && slices.Equal(inv.Args, args)
	}, resp)
}

// AddPrefixMatch matches name and a leading run of arguments.
func (e *MockExecutor) AddPrefixMatch(name string, prefix []string, resp MockResponse) {
	e.AddRule(func(inv Invocation) bool {
		return inv.Name == name && len(inv.Args) >= len(prefix) && slices.Equal(inv.Args[:len(prefix)], prefix)
	}, resp)
}

// Calls returns a copy of every invocation seen so far.
func (e *MockExecutor) Calls() []Invocation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.calls)
}

// ClearCalls forgets recorded invocations.
func (e *MockExecutor) ClearCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

func (e *MockExecutor) lookup(inv Invocation) (MockResponse, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, inv)
	for _, r := range e.rules {
		if r.match(inv) {
			return r.resp, true
		}
	}
	return MockResponse{}, false
}

// Invoke answers from the first matching rule.
func (e *MockExecutor) Invoke(ctx context.Context, inv Invocation) ([]byte, []byte, error) {
	resp, ok := e.lookup(inv)
	if !ok {
		if e.fallback != nil {
			return e.fallback.Invoke(ctx, inv)
		}
		return nil, nil, nil
	}
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	return resp.Stdout, resp.Stderr, resp.Err
}

// Run answers from the first matching rule.
func (e *MockExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, []byte, error) {
	return e.Invoke(ctx, Invocation{Dir: dir, Name: name, Args: args})
}

// Output answers from the first matching rule.
func (e *MockExecutor) Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	stdout, _, err := e.Run(ctx, dir, name, args...)
	return stdout, err
}

// CombinedOutput answers from the first matching rule.
func (e *MockExecutor) CombinedOutput(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	stdout, stderr, err := e.Run(ctx, dir, name, args...)
	return append(slices.Clone(stdout), stderr...), err
}

var _ CommandExecutor = (*RealExecutor)(nil)
var _ CommandExecutor = (*MockExecutor)(nil)

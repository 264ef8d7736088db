package git

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	pexec "github.com/zhubert/codexmonitor/exec"
)

// GitService provides git operations with explicit dependency injection.
// Each instance holds its own executor so tests can substitute a mock.
type GitService struct {
	executor pexec.CommandExecutor
}

// NewGitService creates a new GitService with the default real executor.
func NewGitService() *GitService {
	return &GitService{executor: pexec.NewRealExecutor()}
}

// NewGitServiceWithExecutor creates a new GitService with a custom executor.
func NewGitServiceWithExecutor(exec pexec.CommandExecutor) *GitService {
	return &GitService{executor: exec}
}

// CommandError is a failed git invocation. Its message is git's own
// output so it can be shown to the user as is.
type CommandError struct {
	Args   []string
	Detail string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Detail == "" {
		return "Git command failed."
	}
	return e.Detail
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// output executes git in dir and returns raw stdout. On failure the error
// carries trimmed stderr, else stdout.
func (s *GitService) output(ctx context.Context, dir string, args ...string) ([]byte, error) {
	stdout, stderr, err := s.executor.Run(ctx, dir, "git", args...)
	if err != nil {
		detail := strings.TrimSpace(string(stderr))
		if detail == "" {
			detail = strings.TrimSpace(string(stdout))
		}
		if detail == "" && isStartFailure(err) {
			detail = fmt.Sprintf("Failed to run git: %v", err)
		}
		return nil, &CommandError{Args: args, Detail: detail, Err: err}
	}
	return stdout, nil
}

// run is output with surrounding whitespace trimmed.
func (s *GitService) run(ctx context.Context, dir string, args ...string) (string, error) {
	stdout, err := s.output(ctx, dir, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(stdout)), nil
}

// isStartFailure reports whether git never ran, as opposed to exiting
// non-zero.
func isStartFailure(err error) bool {
	var exitErr *exec.ExitError
	return !errors.As(err, &exitErr)
}

package git

import (
	"context"

	"github.com/zhubert/codexmonitor/logger"
)

// BranchExists reports whether refs/heads/<branch> exists in repoPath.
func (s *GitService) BranchExists(ctx context.Context, repoPath, branch string) bool {
	_, _, err := s.executor.Run(ctx, repoPath, "git", "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// AddWorktree creates a worktree at path. With newBranch the branch is
// created from HEAD (`worktree add -b <branch> <path>`); otherwise the
// existing branch is checked out there.
func (s *GitService) AddWorktree(ctx context.Context, repoPath, path, branch string, newBranch bool) error {
	args := []string{"worktree", "add", path, branch}
	if newBranch {
		args = []string{"worktree", "add", "-b", branch, path}
	}
	if _, err := s.run(ctx, repoPath, args...); err != nil {
		return err
	}
	logger.WithComponent("git").Info("created worktree", "repo", repoPath, "path", path, "branch", branch, "newBranch", newBranch)
	return nil
}

// RemoveWorktree force-removes the worktree at path.
func (s *GitService) RemoveWorktree(ctx context.Context, repoPath, path string) error {
	if _, err := s.run(ctx, repoPath, "worktree", "remove", "--force", path); err != nil {
		return err
	}
	logger.WithComponent("git").Info("removed worktree", "repo", repoPath, "path", path)
	return nil
}

// PruneWorktrees drops administrative entries for worktrees whose
// directories are gone.
func (s *GitService) PruneWorktrees(ctx context.Context, repoPath string) error {
	_, err := s.run(ctx, repoPath, "worktree", "prune", "--expire", "now")
	return err
}

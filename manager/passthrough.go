package manager

import (
	"context"

	"github.com/zhubert/codexmonitor/files"
	"github.com/zhubert/codexmonitor/git"
)

// repoPath resolves a workspace id to its directory.
func (sv *Supervisor) repoPath(workspaceID string) (string, error) {
	e, ok := sv.entry(workspaceID)
	if !ok {
		return "", ErrWorkspaceNotFound
	}
	return e.Path, nil
}

// GitStatus reports the workspace's changed files and line counts.
func (sv *Supervisor) GitStatus(ctx context.Context, workspaceID string) (*git.Status, error) {
	path, err := sv.repoPath(workspaceID)
	if err != nil {
		return nil, err
	}
	return sv.git.Status(ctx, path)
}

// GitDiffs returns one unified diff per changed file.
func (sv *Supervisor) GitDiffs(ctx context.Context, workspaceID string) ([]git.FileDiff, error) {
	path, err := sv.repoPath(workspaceID)
	if err != nil {
		return nil, err
	}
	return sv.git.Diffs(ctx, path)
}

// GitLog returns the newest commits. A limit of zero or less means the
// default.
func (sv *Supervisor) GitLog(ctx context.Context, workspaceID string, limit int) (*git.LogResponse, error) {
	path, err := sv.repoPath(workspaceID)
	if err != nil {
		return nil, err
	}
	return sv.git.Log(ctx, path, limit)
}

// GitRemote returns the workspace's preferred remote URL, or nil when it
// has no remotes.
func (sv *Supervisor) GitRemote(ctx context.Context, workspaceID string) (*string, error) {
	path, err := sv.repoPath(workspaceID)
	if err != nil {
		return nil, err
	}
	url, ok, err := sv.git.Remote(ctx, path)
	if err != nil || !ok {
		return nil, err
	}
	return &url, nil
}

func (sv *Supervisor) ListBranches(ctx context.Context, workspaceID string) ([]git.BranchInfo, error) {
	path, err := sv.repoPath(workspaceID)
	if err != nil {
		return nil, err
	}
	return sv.git.Branches(ctx, path)
}

func (sv *Supervisor) CheckoutBranch(ctx context.Context, workspaceID, name string) error {
	path, err := sv.repoPath(workspaceID)
	if err != nil {
		return err
	}
	return sv.git.Checkout(ctx, path, name)
}

// CreateBranch creates name at HEAD and checks it out.
func (sv *Supervisor) CreateBranch(ctx context.Context, workspaceID, name string) error {
	path, err := sv.repoPath(workspaceID)
	if err != nil {
		return err
	}
	return sv.git.CreateBranch(ctx, path, name)
}

// ListFiles returns the workspace's files relative to its root.
func (sv *Supervisor) ListFiles(workspaceID string) ([]string, error) {
	path, err := sv.repoPath(workspaceID)
	if err != nil {
		return nil, err
	}
	return files.List(path, sv.maxFiles), nil
}

package manager

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/zhubert/codexmonitor/workspace"
)

// AddWorkspace registers the directory at path as a main workspace. The
// app-server is spawned first; nothing is persisted if that fails.
func (sv *Supervisor) AddWorkspace(ctx context.Context, path string, codexBin *string) (workspace.Info, error) {
	entry := workspace.NewMainEntry(path, codexBin)
	log := sv.log.With("workspaceID", entry.ID)

	s, err := sv.spawner.Spawn(ctx, entry)
	if err != nil {
		return workspace.Info{}, err
	}

	sv.mu.Lock()
	sv.workspaces[entry.ID] = entry
	err = sv.persistLocked()
	sv.mu.Unlock()
	if err != nil {
		s.Kill()
		return workspace.Info{}, err
	}

	sv.registerSession(s)
	log.Info("workspace added", "name", entry.Name, "path", entry.Path)
	return entry.WithConnected(true), nil
}

// AddWorktree creates a git worktree for branch under the parent's
// .codex-worktrees directory and registers it as a worktree workspace. The
// branch is created from HEAD when it does not exist yet. A spawn failure
// leaves the branch and worktree on disk.
func (sv *Supervisor) AddWorktree(ctx context.Context, parentID, branch string) (workspace.Info, error) {
	branch = strings.TrimSpace(branch)
	if branch == "" {
		return workspace.Info{}, ErrBranchRequired
	}

	parent, ok := sv.entry(parentID)
	if !ok {
		return workspace.Info{}, ErrParentNotFound
	}
	if parent.IsWorktree() {
		return workspace.Info{}, workspace.ErrNestedWorktree
	}

	root := workspace.WorktreeRoot(parent.Path)
	if err := os.MkdirAll(root, 0755); err != nil {
		return workspace.Info{}, fmt.Errorf("Failed to create worktree directory: %w", err)
	}
	if err := workspace.EnsureWorktreeIgnored(parent.Path); err != nil {
		return workspace.Info{}, err
	}

	path := workspace.UniqueWorktreePath(root, workspace.SanitizeWorktreeName(branch))
	exists := sv.git.BranchExists(ctx, parent.Path, branch)
	if err := sv.git.AddWorktree(ctx, parent.Path, path, branch, !exists); err != nil {
		return workspace.Info{}, err
	}

	entry, err := workspace.NewWorktreeEntry(parent, branch, path)
	if err != nil {
		return workspace.Info{}, err
	}
	log := sv.log.With("workspaceID", entry.ID, "parentID", parent.ID)

	s, err := sv.spawner.Spawn(ctx, entry)
	if err != nil {
		log.Warn("app-server failed for new worktree, leaving it on disk", "path", path, "branch", branch, "error", err)
		return workspace.Info{}, err
	}

	sv.mu.Lock()
	sv.workspaces[entry.ID] = entry
	err = sv.persistLocked()
	sv.mu.Unlock()
	if err != nil {
		s.Kill()
		return workspace.Info{}, err
	}

	sv.registerSession(s)
	log.Info("worktree added", "path", path, "branch", branch, "newBranch", !exists)
	return entry.WithConnected(true), nil
}

// RemoveWorkspace removes a main workspace together with all of its
// worktrees: their sessions are killed, their directories removed with
// `git worktree remove --force`, and every entry is erased in one store
// write. The first worktree removal failure aborts without touching the
// store.
func (sv *Supervisor) RemoveWorkspace(ctx context.Context, id string) error {
	sv.mu.Lock()
	entry, ok := sv.workspaces[id]
	if !ok {
		sv.mu.Unlock()
		return ErrWorkspaceNotFound
	}
	if entry.IsWorktree() {
		sv.mu.Unlock()
		return ErrUseRemoveWorktree
	}
	var children []workspace.Entry
	for _, e := range sv.workspaces {
		if e.Parent() == id {
			children = append(children, e)
		}
	}
	sv.mu.Unlock()

	log := sv.log.With("workspaceID", id)
	for _, child := range children {
		sv.killSession(child.ID)
		if pathExists(child.Path) {
			if err := sv.git.RemoveWorktree(ctx, entry.Path, child.Path); err != nil {
				log.Error("failed to remove worktree", "child", child.ID, "path", child.Path, "error", err)
				return err
			}
		}
	}
	if err := sv.git.PruneWorktrees(ctx, entry.Path); err != nil {
		log.Debug("worktree prune failed", "error", err)
	}

	sv.killSession(id)

	sv.mu.Lock()
	defer sv.mu.Unlock()
	delete(sv.workspaces, id)
	for _, child := range children {
		delete(sv.workspaces, child.ID)
	}
	if err := sv.persistLocked(); err != nil {
		return err
	}
	log.Info("workspace removed", "worktrees", len(children))
	return nil
}

// RemoveWorktree removes a single worktree workspace and its directory.
func (sv *Supervisor) RemoveWorktree(ctx context.Context, id string) error {
	sv.mu.Lock()
	entry, ok := sv.workspaces[id]
	if !ok {
		sv.mu.Unlock()
		return ErrWorkspaceNotFound
	}
	if !entry.IsWorktree() {
		sv.mu.Unlock()
		return ErrNotWorktree
	}
	parent, ok := sv.workspaces[entry.Parent()]
	sv.mu.Unlock()
	if !ok {
		return ErrWorktreeParent
	}

	log := sv.log.With("workspaceID", id, "parentID", parent.ID)
	sv.killSession(id)

	if pathExists(entry.Path) {
		if err := sv.git.RemoveWorktree(ctx, parent.Path, entry.Path); err != nil {
			return err
		}
	}
	if err := sv.git.PruneWorktrees(ctx, parent.Path); err != nil {
		log.Debug("worktree prune failed", "error", err)
	}

	sv.mu.Lock()
	defer sv.mu.Unlock()
	delete(sv.workspaces, id)
	if err := sv.persistLocked(); err != nil {
		return err
	}
	log.Info("worktree removed", "path", entry.Path)
	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

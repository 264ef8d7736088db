// Package git runs the git CLI on behalf of workspaces: worktree creation
// and removal for the lifecycle manager, plus read-only reporting (status,
// diffs, log, remotes, branches) and simple branch switching.
//
// The package is organized into focused files:
//   - service.go: GitService struct, constructor and command runner
//   - worktree.go: branch existence, worktree add/remove/prune
//   - status.go: per-file status with line counts
//   - diff.go: per-file unified diffs
//   - log.go: commit log and remote URL
//   - branch.go: branch listing, checkout and creation
package git

package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WorktreesDirName is the hidden directory under a main workspace that
// holds its worktrees.
const WorktreesDirName = ".codex-worktrees"

// maxWorktreeSuffix bounds the numbered collision search.
const maxWorktreeSuffix = 999

// SanitizeWorktreeName turns a branch name into a directory name made only
// of [A-Za-z0-9._-]. Every other rune becomes "-", surrounding dashes are
// trimmed, and an empty result falls back to "worktree".
func SanitizeWorktreeName(branch string) string {
	var b strings.Builder
	for _, r := range branch {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		return "worktree"
	}
	return name
}

// UniqueWorktreePath returns baseDir/name if nothing exists there, else the
// first free baseDir/name-N for N in 2..999. If all are taken it returns
// baseDir/name and lets the caller's git command report the clash.
func UniqueWorktreePath(baseDir, name string) string {
	candidate := filepath.Join(baseDir, name)
	if !exists(candidate) {
		return candidate
	}
	for i := 2; i <= maxWorktreeSuffix; i++ {
		next := filepath.Join(baseDir, fmt.Sprintf("%s-%d", name, i))
		if !exists(next) {
			return next
		}
	}
	return candidate
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// EnsureWorktreeIgnored appends the worktrees directory to repo's
// .gitignore unless a line already names it.
func EnsureWorktreeIgnored(repoPath string) error {
	ignorePath := filepath.Join(repoPath, ".gitignore")
	rule := WorktreesDirName + "/"

	existing, err := os.ReadFile(ignorePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("Failed to update .gitignore: %w", err)
	}
	for _, line := range strings.Split(string(existing), "\n") {
		if strings.TrimSpace(line) == rule {
			return nil
		}
	}

	f, err := os.OpenFile(ignorePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("Failed to update .gitignore: %w", err)
	}
	defer f.Close()

	var content string
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		content = "\n"
	}
	content += rule + "\n"
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("Failed to update .gitignore: %w", err)
	}
	return nil
}

// WorktreeRoot returns the directory under which parentPath's worktrees live.
func WorktreeRoot(parentPath string) string {
	return filepath.Join(parentPath, WorktreesDirName)
}

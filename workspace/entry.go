// Package workspace defines the persisted workspace records and the file
// store that holds them.
//
// A workspace is either a main checkout or a worktree derived from one.
// Worktree entries always name their parent; main entries never do. The
// constructors enforce this so the rest of the program can rely on it.
package workspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Kind distinguishes main checkouts from worktrees.
type Kind string

const (
	KindMain     Kind = "main"
	KindWorktree Kind = "worktree"
)

// ErrNestedWorktree is returned when a worktree is requested from a worktree.
var ErrNestedWorktree = errors.New("Cannot create a worktree from another worktree.")

// WorktreeInfo describes the branch a worktree entry has checked out.
type WorktreeInfo struct {
	Branch string `json:"branch"`
}

// Settings is the per-workspace UI state.
type Settings struct {
	SidebarCollapsed bool `json:"sidebarCollapsed"`
}

// Entry is one persisted workspace.
type Entry struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	CodexBin *string       `json:"codex_bin"`
	Kind     Kind          `json:"kind"`
	ParentID *string       `json:"parentId"`
	Worktree *WorktreeInfo `json:"worktree"`
	Settings Settings      `json:"settings"`
}

// Info is an Entry plus the live connection state. It is never persisted.
type Info struct {
	Entry
	Connected bool `json:"connected"`
}

// NewMainEntry builds a main workspace rooted at path. The display name is
// the last path segment. An empty or blank codexBin means "use the default".
func NewMainEntry(path string, codexBin *string) Entry {
	name := filepath.Base(filepath.Clean(path))
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "Workspace"
	}
	return Entry{
		ID:       uuid.New().String(),
		Name:     name,
		Path:     path,
		CodexBin: normalizeBin(codexBin),
		Kind:     KindMain,
	}
}

// NewWorktreeEntry builds a worktree workspace for branch at path, owned by
// parent. The parent's agent override is inherited.
func NewWorktreeEntry(parent Entry, branch, path string) (Entry, error) {
	if parent.IsWorktree() {
		return Entry{}, ErrNestedWorktree
	}
	if parent.ID == "" {
		return Entry{}, fmt.Errorf("parent workspace has no id")
	}
	parentID := parent.ID
	return Entry{
		ID:       uuid.New().String(),
		Name:     branch,
		Path:     path,
		CodexBin: normalizeBin(parent.CodexBin),
		Kind:     KindWorktree,
		ParentID: &parentID,
		Worktree: &WorktreeInfo{Branch: branch},
	}, nil
}

func normalizeBin(bin *string) *string {
	if bin == nil || strings.TrimSpace(*bin) == "" {
		return nil
	}
	v := strings.TrimSpace(*bin)
	return &v
}

// IsWorktree reports whether e is a worktree entry.
func (e Entry) IsWorktree() bool {
	return e.Kind == KindWorktree
}

// Parent returns the parent id, or "" for main entries.
func (e Entry) Parent() string {
	if e.ParentID == nil {
		return ""
	}
	return *e.ParentID
}

// Bin returns the agent override, or "" when the default should be used.
func (e Entry) Bin() string {
	if e.CodexBin == nil {
		return ""
	}
	return strings.TrimSpace(*e.CodexBin)
}

// Branch returns the worktree branch, or "" for main entries.
func (e Entry) Branch() string {
	if e.Worktree == nil {
		return ""
	}
	return e.Worktree.Branch
}

// Validate checks a loaded entry for internal consistency.
func (e Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("workspace entry has empty id")
	}
	if e.Path == "" {
		return fmt.Errorf("workspace %s has empty path", e.ID)
	}
	switch e.Kind {
	case KindMain:
		if e.ParentID != nil {
			return fmt.Errorf("main workspace %s must not have a parent", e.ID)
		}
	case KindWorktree:
		if e.Parent() == "" {
			return fmt.Errorf("worktree workspace %s has no parent", e.ID)
		}
	default:
		return fmt.Errorf("workspace %s has unknown kind %q", e.ID, e.Kind)
	}
	return nil
}

// WithConnected derives the display form of e.
func (e Entry) WithConnected(connected bool) Info {
	return Info{Entry: e, Connected: connected}
}

package workspace

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestNewMainEntry(t *testing.T) {
	e := NewMainEntry("/repo/foo", nil)

	if e.Kind != KindMain {
		t.Errorf("Kind = %q, want main", e.Kind)
	}
	if e.ParentID != nil {
		t.Error("main entry must not have a parent")
	}
	if e.Name != "foo" {
		t.Errorf("Name = %q, want foo", e.Name)
	}
	if e.ID == "" {
		t.Error("ID should be generated")
	}
	if err := e.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestNewMainEntry_NameFallbackAndBin(t *testing.T) {
	e := NewMainEntry("/", strPtr("   "))
	if e.Name != "Workspace" {
		t.Errorf("Name = %q, want Workspace", e.Name)
	}
	if e.CodexBin != nil {
		t.Errorf("blank override should be dropped, got %q", *e.CodexBin)
	}

	e = NewMainEntry("/repo/bar/", strPtr(" /usr/local/bin/codex "))
	if e.Name != "bar" {
		t.Errorf("Name = %q, want bar", e.Name)
	}
	if e.Bin() != "/usr/local/bin/codex" {
		t.Errorf("Bin() = %q", e.Bin())
	}
}

func TestNewWorktreeEntry(t *testing.T) {
	parent := NewMainEntry("/repo/foo", strPtr("/bin/codex"))

	wt, err := NewWorktreeEntry(parent, "feature/x", "/repo/foo/.codex-worktrees/feature-x")
	if err != nil {
		t.Fatalf("NewWorktreeEntry: %v", err)
	}
	if wt.Kind != KindWorktree {
		t.Errorf("Kind = %q", wt.Kind)
	}
	if wt.Parent() != parent.ID {
		t.Errorf("Parent() = %q, want %q", wt.Parent(), parent.ID)
	}
	if wt.Branch() != "feature/x" || wt.Name != "feature/x" {
		t.Errorf("branch/name = %q/%q", wt.Branch(), wt.Name)
	}
	if wt.Bin() != "/bin/codex" {
		t.Errorf("override not inherited: %q", wt.Bin())
	}
	if wt.CodexBin == parent.CodexBin {
		t.Error("override pointer should not be shared with the parent")
	}
	if err := wt.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestNewWorktreeEntry_RejectsNested(t *testing.T) {
	parent := NewMainEntry("/repo/foo", nil)
	wt, err := NewWorktreeEntry(parent, "a", "/repo/foo/.codex-worktrees/a")
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewWorktreeEntry(wt, "b", "/x")
	if !errors.Is(err, ErrNestedWorktree) {
		t.Errorf("expected ErrNestedWorktree, got %v", err)
	}
}

func TestEntry_Validate(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		ok    bool
	}{
		{"main", Entry{ID: "a", Path: "/a", Kind: KindMain}, true},
		{"worktree", Entry{ID: "b", Path: "/b", Kind: KindWorktree, ParentID: strPtr("a")}, true},
		{"empty id", Entry{Path: "/a", Kind: KindMain}, false},
		{"empty path", Entry{ID: "a", Kind: KindMain}, false},
		{"main with parent", Entry{ID: "a", Path: "/a", Kind: KindMain, ParentID: strPtr("p")}, false},
		{"worktree without parent", Entry{ID: "b", Path: "/b", Kind: KindWorktree}, false},
		{"unknown kind", Entry{ID: "c", Path: "/c", Kind: "other"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestInfo_JSONShape(t *testing.T) {
	parent := NewMainEntry("/repo/foo", nil)
	wt, _ := NewWorktreeEntry(parent, "feature/x", "/p")
	wt.Settings.SidebarCollapsed = true

	data, err := json.Marshal(wt.WithConnected(true))
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["connected"] != true {
		t.Errorf("connected = %v", raw["connected"])
	}
	if raw["kind"] != "worktree" {
		t.Errorf("kind = %v", raw["kind"])
	}
	if raw["parentId"] != parent.ID {
		t.Errorf("parentId = %v", raw["parentId"])
	}
	if wtInfo, _ := raw["worktree"].(map[string]any); wtInfo["branch"] != "feature/x" {
		t.Errorf("worktree = %v", raw["worktree"])
	}
	if settings, _ := raw["settings"].(map[string]any); settings["sidebarCollapsed"] != true {
		t.Errorf("settings = %v", raw["settings"])
	}
	if _, ok := raw["codex_bin"]; !ok {
		t.Error("codex_bin key should be present")
	}
}

func TestStore_MissingFileIsEmpty(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "none", "workspaces.json"))

	entries, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty store, got %d entries", len(entries))
	}
}

func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "workspaces.json")
	store := NewStore(path)

	main := NewMainEntry("/repo/foo", strPtr("/opt/codex"))
	wt, _ := NewWorktreeEntry(main, "feature/x", "/repo/foo/.codex-worktrees/feature-x")
	wt.Settings.SidebarCollapsed = true
	other := NewMainEntry("/repo/bar", nil)
	want := []Entry{main, wt, other}

	if err := store.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := NewStore(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	byID := func(entries []Entry) []Entry {
		out := append([]Entry(nil), entries...)
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return out
	}
	wantJSON, _ := json.Marshal(byID(want))
	gotJSON, _ := json.Marshal(byID(got))
	if string(wantJSON) != string(gotJSON) {
		t.Errorf("round trip mismatch:\nwant %s\ngot  %s", wantJSON, gotJSON)
	}

	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "[\n  {") {
		t.Errorf("store should be a pretty-printed array, got:\n%s", data)
	}
}

func TestStore_SaveEmptyWritesArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspaces.json")
	if err := NewStore(path).Save(nil); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("expected [], got %q", data)
	}
}

func TestStore_LoadDefaultsKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspaces.json")
	legacy := `[{"id":"a","name":"a","path":"/a","codex_bin":null}]`
	if err := os.WriteFile(path, []byte(legacy), 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := NewStore(path).Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Kind != KindMain {
		t.Errorf("expected one main entry, got %+v", entries)
	}
}

func TestStore_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspaces.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStore(path).Load(); err == nil {
		t.Error("expected parse error")
	}
}

var safeName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func TestSanitizeWorktreeName(t *testing.T) {
	tests := []struct {
		branch string
		want   string
	}{
		{"feature/x", "feature-x"},
		{"my branch", "my-branch"},
		{"fix_bug.2", "fix_bug.2"},
		{"/leading/and/trailing/", "leading-and-trailing"},
		{"--dashes--", "dashes"},
		{"café", "caf"},
		{"日本語", "worktree"},
		{"///", "worktree"},
		{"", "worktree"},
	}
	for _, tt := range tests {
		t.Run(tt.branch, func(t *testing.T) {
			got := SanitizeWorktreeName(tt.branch)
			if got != tt.want {
				t.Errorf("SanitizeWorktreeName(%q) = %q, want %q", tt.branch, got, tt.want)
			}
			if !safeName.MatchString(got) {
				t.Errorf("result %q contains unsafe characters", got)
			}
		})
	}
}

func TestUniqueWorktreePath(t *testing.T) {
	base := t.TempDir()

	first := UniqueWorktreePath(base, "feature-x")
	if first != filepath.Join(base, "feature-x") {
		t.Errorf("first = %q", first)
	}
	if err := os.Mkdir(first, 0755); err != nil {
		t.Fatal(err)
	}

	second := UniqueWorktreePath(base, "feature-x")
	if second != filepath.Join(base, "feature-x-2") {
		t.Errorf("second = %q", second)
	}
	if err := os.Mkdir(second, 0755); err != nil {
		t.Fatal(err)
	}

	third := UniqueWorktreePath(base, "feature-x")
	if third != filepath.Join(base, "feature-x-3") {
		t.Errorf("third = %q", third)
	}
}

func TestEnsureWorktreeIgnored(t *testing.T) {
	tests := []struct {
		name     string
		existing *string
		want     string
	}{
		{"no file", nil, ".codex-worktrees/\n"},
		{"trailing newline", strPtr("node_modules\n"), "node_modules\n.codex-worktrees/\n"},
		{"no trailing newline", strPtr("dist"), "dist\n.codex-worktrees/\n"},
		{"already present", strPtr("a\n  .codex-worktrees/  \nb\n"), "a\n  .codex-worktrees/  \nb\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := t.TempDir()
			ignore := filepath.Join(repo, ".gitignore")
			if tt.existing != nil {
				if err := os.WriteFile(ignore, []byte(*tt.existing), 0644); err != nil {
					t.Fatal(err)
				}
			}

			if err := EnsureWorktreeIgnored(repo); err != nil {
				t.Fatalf("EnsureWorktreeIgnored: %v", err)
			}
			// A second call must not add another line.
			if err := EnsureWorktreeIgnored(repo); err != nil {
				t.Fatalf("second call: %v", err)
			}

			data, _ := os.ReadFile(ignore)
			if string(data) != tt.want {
				t.Errorf(".gitignore = %q, want %q", data, tt.want)
			}
		})
	}
}

package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zhubert/codexmonitor/appserver"
)

func TestPassthrough_UnknownWorkspace(t *testing.T) {
	sv, _ := newTestSupervisor(t, &appserver.FakeSpawner{})
	ctx := context.Background()

	checks := map[string]error{}
	_, checks["status"] = sv.GitStatus(ctx, "nope")
	_, checks["diffs"] = sv.GitDiffs(ctx, "nope")
	_, checks["log"] = sv.GitLog(ctx, "nope", 0)
	_, checks["remote"] = sv.GitRemote(ctx, "nope")
	_, checks["branches"] = sv.ListBranches(ctx, "nope")
	checks["checkout"] = sv.CheckoutBranch(ctx, "nope", "main")
	checks["create"] = sv.CreateBranch(ctx, "nope", "x")
	_, checks["files"] = sv.ListFiles("nope")

	for name, err := range checks {
		if !errors.Is(err, ErrWorkspaceNotFound) {
			t.Errorf("%s: got %v, want %v", name, err, ErrWorkspaceNotFound)
		}
	}
}

func TestPassthrough_Git(t *testing.T) {
	repo := createTestRepo(t)
	sv, _ := newTestSupervisor(t, &appserver.FakeSpawner{})
	ctx := context.Background()

	info, err := sv.AddWorkspace(ctx, repo, nil)
	if err != nil {
		t.Fatalf("AddWorkspace failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(repo, "new.txt"), []byte("a\nb\n"), 0644); err != nil {
		t.Fatal(err)
	}

	status, err := sv.GitStatus(ctx, info.ID)
	if err != nil {
		t.Fatalf("GitStatus failed: %v", err)
	}
	if status.BranchName != "main" {
		t.Errorf("branch = %q", status.BranchName)
	}
	if status.TotalAdditions != 2 {
		t.Errorf("additions = %d, want 2", status.TotalAdditions)
	}

	diffs, err := sv.GitDiffs(ctx, info.ID)
	if err != nil {
		t.Fatalf("GitDiffs failed: %v", err)
	}
	if len(diffs) != 1 || diffs[0].Path != "new.txt" {
		t.Errorf("unexpected diffs: %+v", diffs)
	}

	log, err := sv.GitLog(ctx, info.ID, 0)
	if err != nil {
		t.Fatalf("GitLog failed: %v", err)
	}
	if log.Total != 1 || len(log.Entries) != 1 {
		t.Errorf("unexpected log: %+v", log)
	}

	remote, err := sv.GitRemote(ctx, info.ID)
	if err != nil || remote != nil {
		t.Errorf("expected no remote, got %v, %v", remote, err)
	}
	gitCmd(t, repo, "remote", "add", "origin", "https://example.com/repo.git")
	remote, err = sv.GitRemote(ctx, info.ID)
	if err != nil || remote == nil || *remote != "https://example.com/repo.git" {
		t.Errorf("unexpected remote: %v, %v", remote, err)
	}

	if err := sv.CreateBranch(ctx, info.ID, "feature"); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	branches, err := sv.ListBranches(ctx, info.ID)
	if err != nil {
		t.Fatalf("ListBranches failed: %v", err)
	}
	if len(branches) != 2 {
		t.Errorf("expected 2 branches, got %+v", branches)
	}
	if err := sv.CheckoutBranch(ctx, info.ID, "main"); err != nil {
		t.Fatalf("CheckoutBranch failed: %v", err)
	}
}

func TestPassthrough_ListFiles(t *testing.T) {
	repo := createTestRepo(t)
	sv, _ := newTestSupervisor(t, &appserver.FakeSpawner{})

	info, err := sv.AddWorkspace(context.Background(), repo, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repo, "b.txt"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	got, err := sv.ListFiles(info.ID)
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	want := []string{"b.txt", "test.txt"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("files = %v, want %v", got, want)
	}

	sv.SetMaxFiles(1)
	got, _ = sv.ListFiles(info.ID)
	if len(got) != 1 {
		t.Errorf("expected limit to apply, got %v", got)
	}
}

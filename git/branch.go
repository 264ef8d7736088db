package git

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/zhubert/codexmonitor/logger"
)

// BranchInfo is a local branch and the unix time of its tip commit.
type BranchInfo struct {
	Name       string `json:"name"`
	LastCommit int64  `json:"last_commit"`
}

// Branches lists local branches, most recently committed first.
func (s *GitService) Branches(ctx context.Context, repoPath string) ([]BranchInfo, error) {
	out, err := s.run(ctx, repoPath, "for-each-ref", "--format=%(refname:short)%09%(committerdate:unix)", "refs/heads")
	if err != nil {
		return nil, err
	}

	branches := []BranchInfo{}
	for _, line := range strings.Split(out, "\n") {
		name, ts, found := strings.Cut(strings.TrimSpace(line), "\t")
		if !found || name == "" {
			continue
		}
		last, _ := strconv.ParseInt(ts, 10, 64)
		branches = append(branches, BranchInfo{Name: name, LastCommit: last})
	}
	sort.SliceStable(branches, func(i, j int) bool {
		return branches[i].LastCommit > branches[j].LastCommit
	})
	return branches, nil
}

// Checkout switches the working tree to an existing local branch. Local
// changes that would be overwritten make it fail.
func (s *GitService) Checkout(ctx context.Context, repoPath, name string) error {
	if _, err := s.run(ctx, repoPath, "checkout", name, "--"); err != nil {
		return err
	}
	logger.WithComponent("git").Info("checked out branch", "branch", name, "repoPath", repoPath)
	return nil
}

// CreateBranch creates name at HEAD and checks it out. It fails if the
// branch already exists.
func (s *GitService) CreateBranch(ctx context.Context, repoPath, name string) error {
	if _, err := s.run(ctx, repoPath, "branch", name); err != nil {
		return err
	}
	return s.Checkout(ctx, repoPath, name)
}

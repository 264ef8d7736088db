package git

import (
	"context"
	"strconv"
	"strings"

	"github.com/zhubert/codexmonitor/logger"
)

// FileStatus is one changed path in a working tree.
type FileStatus struct {
	Path string `json:"path"`
	// Status is A (added or untracked), M, D, R, T, or -- for anything else.
	Status    string `json:"status"`
	Additions int64  `json:"additions"`
	Deletions int64  `json:"deletions"`
}

// Status summarizes uncommitted changes, staged and unstaged together.
type Status struct {
	BranchName     string       `json:"branchName"`
	Files          []FileStatus `json:"files"`
	TotalAdditions int64        `json:"totalAdditions"`
	TotalDeletions int64        `json:"totalDeletions"`
}

type lineCounts struct {
	additions int64
	deletions int64
}

type statusEntry struct {
	index    byte
	worktree byte
	path     string
}

func (e statusEntry) untracked() bool {
	return e.index == '?' && e.worktree == '?'
}

func (e statusEntry) letter() string {
	has := func(c byte) bool { return e.index == c || e.worktree == c }
	switch {
	case e.untracked(), has('A'):
		return "A"
	case has('M'):
		return "M"
	case has('D'):
		return "D"
	case has('R'):
		return "R"
	case has('T'):
		return "T"
	default:
		return "--"
	}
}

func changed(code byte) bool {
	return strings.IndexByte("AMDRTC", code) >= 0
}

// Status returns the branch name and every changed path with line counts.
// A path changed in both the index and the working tree sums both diffs.
func (s *GitService) Status(ctx context.Context, repoPath string) (*Status, error) {
	out, err := s.output(ctx, repoPath, "status", "--porcelain=v1", "-z", "--untracked-files=all")
	if err != nil {
		return nil, err
	}

	status := &Status{
		BranchName: s.branchName(ctx, repoPath),
		Files:      []FileStatus{},
	}
	entries := parsePorcelainZ(out)
	if len(entries) == 0 {
		return status, nil
	}

	log := logger.WithComponent("git")

	staged, err := s.numstat(ctx, repoPath, "--cached")
	if err != nil {
		log.Warn("staged numstat failed", "error", err, "repo", repoPath)
	}
	unstaged, err := s.numstat(ctx, repoPath)
	if err != nil {
		log.Warn("unstaged numstat failed", "error", err, "repo", repoPath)
	}

	for _, e := range entries {
		var counts lineCounts
		if changed(e.index) {
			counts.additions += staged[e.path].additions
			counts.deletions += staged[e.path].deletions
		}
		if changed(e.worktree) {
			counts.additions += unstaged[e.path].additions
			counts.deletions += unstaged[e.path].deletions
		}
		if e.untracked() {
			n, err := s.countFileLines(ctx, repoPath, e.path)
			if err != nil {
				log.Warn("failed to count lines in untracked file", "file", e.path, "error", err)
			}
			counts.additions += n
		}

		status.Files = append(status.Files, FileStatus{
			Path:      normalizePath(e.path),
			Status:    e.letter(),
			Additions: counts.additions,
			Deletions: counts.deletions,
		})
		status.TotalAdditions += counts.additions
		status.TotalDeletions += counts.deletions
	}
	return status, nil
}

// branchName returns the checked out branch, HEAD when detached, or
// "unknown" when there is no commit yet.
func (s *GitService) branchName(ctx context.Context, repoPath string) string {
	name, err := s.run(ctx, repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil || name == "" {
		return "unknown"
	}
	return name
}

// parsePorcelainZ reads `git status --porcelain=v1 -z`. Each record is
// "XY path"; rename and copy records are followed by the source path as a
// separate field.
func parsePorcelainZ(out []byte) []statusEntry {
	var entries []statusEntry
	fields := strings.Split(string(out), "\x00")
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if len(f) < 4 {
			continue
		}
		e := statusEntry{index: f[0], worktree: f[1], path: f[3:]}
		if e.index == 'R' || e.index == 'C' || e.worktree == 'R' || e.worktree == 'C' {
			i++
		}
		entries = append(entries, e)
	}
	return entries
}

// numstat runs `git diff --numstat` with renames disabled and maps each
// path to its line counts. Binary files count as zero.
func (s *GitService) numstat(ctx context.Context, repoPath string, extra ...string) (map[string]lineCounts, error) {
	args := append([]string{"diff", "--no-ext-diff", "--numstat", "-z", "--no-renames"}, extra...)
	out, err := s.output(ctx, repoPath, args...)
	if err != nil {
		return nil, err
	}
	return parseNumstatZ(out), nil
}

func parseNumstatZ(out []byte) map[string]lineCounts {
	counts := make(map[string]lineCounts)
	for _, rec := range strings.Split(string(out), "\x00") {
		rec = strings.TrimLeft(rec, "\n")
		parts := strings.SplitN(rec, "\t", 3)
		if len(parts) != 3 || parts[2] == "" {
			continue
		}
		add, _ := strconv.ParseInt(parts[0], 10, 64)
		del, _ := strconv.ParseInt(parts[1], 10, 64)
		counts[parts[2]] = lineCounts{additions: add, deletions: del}
	}
	return counts
}

// countFileLines counts the lines of an untracked file using
// git diff --no-index. Binary files count as zero.
func (s *GitService) countFileLines(ctx context.Context, repoPath, filename string) (int64, error) {
	output, err := s.executor.Output(ctx, repoPath, "git", "diff", "--no-index", "--numstat", "/dev/null", filename)
	if err != nil && len(output) == 0 {
		// --no-index exits 1 when the files differ, which is the normal case.
		return 0, err
	}

	line := strings.TrimSpace(string(output))
	if line == "" {
		return 0, nil
	}
	first, _, _ := strings.Cut(line, "\t")
	if first == "-" {
		return 0, nil
	}
	count, _ := strconv.ParseInt(first, 10, 64)
	return count, nil
}

func normalizePath(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}

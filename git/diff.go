package git

import (
	"context"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"

	"github.com/zhubert/codexmonitor/logger"
)

// FileDiff is the unified diff of one path against HEAD.
type FileDiff struct {
	Path      string `json:"path"`
	Diff      string `json:"diff"`
	Additions int32  `json:"additions"`
	Deletions int32  `json:"deletions"`
}

// Diffs returns one unified diff per changed path, covering staged,
// unstaged and untracked changes. Paths whose diff renders empty are
// skipped.
func (s *GitService) Diffs(ctx context.Context, repoPath string) ([]FileDiff, error) {
	log := logger.WithComponent("git")

	combined, err := s.output(ctx, repoPath, "diff", "--no-ext-diff", "HEAD")
	if err != nil {
		// No HEAD yet: staged and unstaged are disjoint, so concatenating
		// them gives the same picture.
		log.Debug("diff HEAD failed, trying without HEAD", "error", err, "repo", repoPath)
		staged, err1 := s.output(ctx, repoPath, "diff", "--no-ext-diff", "--cached")
		unstaged, err2 := s.output(ctx, repoPath, "diff", "--no-ext-diff")
		if err1 != nil && err2 != nil {
			return nil, err1
		}
		combined = append(staged, unstaged...)
	}

	untracked, err := s.untrackedFiles(ctx, repoPath)
	if err != nil {
		return nil, err
	}
	text := string(combined)
	for _, file := range untracked {
		if d := s.untrackedFileDiff(ctx, repoPath, file); d != "" {
			text += d
		}
	}

	if strings.TrimSpace(text) == "" {
		return []FileDiff{}, nil
	}
	parsed, err := godiff.ParseMultiFileDiff([]byte(text))
	if err != nil {
		return nil, err
	}

	results := make([]FileDiff, 0, len(parsed))
	for _, fd := range parsed {
		path := diffPath(fd)
		if path == "" {
			continue
		}
		rendered, err := godiff.PrintFileDiff(fd)
		if err != nil {
			log.Warn("failed to render diff", "path", path, "error", err)
			continue
		}
		if strings.TrimSpace(string(rendered)) == "" {
			continue
		}
		stat := fd.Stat()
		results = append(results, FileDiff{
			Path:      path,
			Diff:      string(rendered),
			Additions: stat.Added + stat.Changed,
			Deletions: stat.Deleted + stat.Changed,
		})
	}
	return results, nil
}

// diffPath picks the new name, or the old one for deletions, without the
// a/ and b/ prefixes.
func diffPath(fd *godiff.FileDiff) string {
	candidate := strings.TrimSpace(fd.NewName)
	if candidate == "" || candidate == "/dev/null" {
		candidate = strings.TrimSpace(fd.OrigName)
	}
	candidate = strings.Trim(candidate, "\"")
	candidate = strings.TrimPrefix(candidate, "a/")
	candidate = strings.TrimPrefix(candidate, "b/")
	if candidate == "/dev/null" {
		return ""
	}
	return normalizePath(candidate)
}

func (s *GitService) untrackedFiles(ctx context.Context, repoPath string) ([]string, error) {
	out, err := s.output(ctx, repoPath, "ls-files", "--others", "--exclude-standard", "-z")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, f := range strings.Split(string(out), "\x00") {
		if f != "" {
			files = append(files, f)
		}
	}
	return files, nil
}

// untrackedFileDiff renders an untracked file as a new-file diff.
func (s *GitService) untrackedFileDiff(ctx context.Context, repoPath, file string) string {
	output, err := s.executor.Output(ctx, repoPath, "git", "diff", "--no-ext-diff", "--no-index", "/dev/null", file)
	if err != nil && len(output) == 0 {
		// --no-index exits 1 when the files differ, which is the normal case.
		logger.WithComponent("git").Warn("failed to generate diff for untracked file", "file", file, "error", err)
		return ""
	}
	return string(output)
}

package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// DefaultLogLimit is the number of log entries returned when none is asked
// for.
const DefaultLogLimit = 40

// LogEntry is one commit.
type LogEntry struct {
	SHA       string `json:"sha"`
	Summary   string `json:"summary"`
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
}

// LogResponse holds the newest commits reachable from HEAD and the total
// number of such commits.
type LogResponse struct {
	Total   int        `json:"total"`
	Entries []LogEntry `json:"entries"`
}

const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// Log returns up to limit commits from HEAD, newest first. limit <= 0 means
// DefaultLogLimit.
func (s *GitService) Log(ctx context.Context, repoPath string, limit int) (*LogResponse, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}

	countOut, err := s.run(ctx, repoPath, "rev-list", "--count", "HEAD")
	if err != nil {
		return nil, err
	}
	total, err := strconv.Atoi(countOut)
	if err != nil {
		return nil, fmt.Errorf("failed to parse commit count %q: %w", countOut, err)
	}

	out, err := s.output(ctx, repoPath, "log", "--date-order", "-n", strconv.Itoa(limit),
		"--format=%H%x1f%s%x1f%an%x1f%ct%x1e", "HEAD")
	if err != nil {
		return nil, err
	}

	resp := &LogResponse{Total: total, Entries: []LogEntry{}}
	for _, rec := range strings.Split(string(out), recordSep) {
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		fields := strings.Split(rec, fieldSep)
		if len(fields) != 4 {
			continue
		}
		ts, _ := strconv.ParseInt(fields[3], 10, 64)
		resp.Entries = append(resp.Entries, LogEntry{
			SHA:       fields[0],
			Summary:   fields[1],
			Author:    fields[2],
			Timestamp: ts,
		})
	}
	return resp, nil
}

// Remote returns the URL of origin, or of the first remote when there is
// no origin. ok is false when the repository has no remotes.
func (s *GitService) Remote(ctx context.Context, repoPath string) (url string, ok bool, err error) {
	out, err := s.run(ctx, repoPath, "remote")
	if err != nil {
		return "", false, err
	}

	var name string
	for _, remote := range strings.Fields(out) {
		if remote == "origin" {
			name = remote
			break
		}
		if name == "" {
			name = remote
		}
	}
	if name == "" {
		return "", false, nil
	}

	url, err = s.run(ctx, repoPath, "remote", "get-url", name)
	if err != nil {
		return "", false, err
	}
	return url, url != "", nil
}

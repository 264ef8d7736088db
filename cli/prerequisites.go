// Package cli checks the external tools codexmonitor shells out to.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/zhubert/codexmonitor/appserver"
	pexec "github.com/zhubert/codexmonitor/exec"
)

// versionTimeout bounds each `<tool> --version` call.
const versionTimeout = 5 * time.Second

// Prerequisite represents a required CLI tool
type Prerequisite struct {
	Name        string // Command name (e.g., "codex", "git")
	Required    bool   // Whether the tool is required to run the app
	Description string // Human-readable description
	InstallURL  string // URL for installation instructions
}

// DefaultPrerequisites returns the tools codexmonitor needs. agentBin is the
// configured default agent executable.
func DefaultPrerequisites(agentBin string) []Prerequisite {
	if agentBin == "" {
		agentBin = "codex"
	}
	return []Prerequisite{
		{
			Name:        agentBin,
			Required:    true,
			Description: "Codex CLI",
			InstallURL:  "https://github.com/openai/codex",
		},
		{
			Name:        "git",
			Required:    true,
			Description: "Git version control",
			InstallURL:  "https://git-scm.com/downloads",
		},
	}
}

// CheckResult contains the result of checking a prerequisite
type CheckResult struct {
	Prerequisite Prerequisite
	Found        bool
	Path         string // Path to the executable if found
	Version      string // Version string if available
	Error        error
}

// Checker looks tools up on the same augmented search path the agent
// spawner uses.
type Checker struct {
	dirs     []string
	executor pexec.CommandExecutor
}

// NewChecker searches PATH, the usual install locations and extraPaths.
func NewChecker(extraPaths []string) *Checker {
	return NewCheckerWithExecutor(extraPaths, pexec.NewRealExecutor())
}

// NewCheckerWithExecutor is NewChecker with a custom executor for tests.
func NewCheckerWithExecutor(extraPaths []string, executor pexec.CommandExecutor) *Checker {
	home, _ := os.UserHomeDir()
	return &Checker{
		dirs:     appserver.AugmentedPath(os.Getenv("PATH"), home, extraPaths),
		executor: executor,
	}
}

// Check verifies that a CLI tool is available
func (c *Checker) Check(ctx context.Context, prereq Prerequisite) CheckResult {
	result := CheckResult{Prerequisite: prereq}

	path, err := appserver.LookPathIn(prereq.Name, c.dirs)
	if err != nil {
		result.Error = fmt.Errorf("%s not found in PATH", prereq.Name)
		return result
	}

	result.Found = true
	result.Path = path
	result.Version = c.version(ctx, path)
	return result
}

// CheckAll verifies all prerequisites and returns results
func (c *Checker) CheckAll(ctx context.Context, prereqs []Prerequisite) []CheckResult {
	results := make([]CheckResult, len(prereqs))
	for i, prereq := range prereqs {
		results[i] = c.Check(ctx, prereq)
	}
	return results
}

// ValidateRequired returns an error naming every required tool that is
// missing from results.
func ValidateRequired(results []CheckResult) error {
	var missing []string
	for _, r := range results {
		if !r.Prerequisite.Required || r.Found {
			continue
		}
		missing = append(missing, fmt.Sprintf("  - %s (%s)\n    Install: %s",
			r.Prerequisite.Name, r.Prerequisite.Description, r.Prerequisite.InstallURL))
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required CLI tools:\n%s", strings.Join(missing, "\n"))
	}
	return nil
}

// version returns the first line of `<path> --version`, or "".
func (c *Checker) version(ctx context.Context, path string) string {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	stdout, _, err := c.executor.Invoke(ctx, pexec.Invocation{Name: path, Args: []string{"--version"}})
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(string(stdout), "\n")
	line = strings.TrimSpace(line)
	// Limit length to avoid overly long version strings
	if len(line) > 100 {
		line = line[:100] + "..."
	}
	return line
}

// FormatCheckResults formats check results for display
func FormatCheckResults(results []CheckResult) string {
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	var sb strings.Builder
	sb.WriteString("CLI Prerequisites:\n")
	for _, r := range results {
		status := ok("✓")
		if !r.Found {
			if r.Prerequisite.Required {
				status = bad("✗")
			} else {
				status = dim("○")
			}
		}

		fmt.Fprintf(&sb, "  %s %s", status, r.Prerequisite.Name)
		if r.Found && r.Version != "" {
			fmt.Fprintf(&sb, " (%s)", r.Version)
		} else if !r.Found {
			if r.Prerequisite.Required {
				sb.WriteString(bad(" [REQUIRED]"))
			} else {
				sb.WriteString(dim(" [optional]"))
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

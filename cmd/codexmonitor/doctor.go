package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zhubert/codexmonitor/cli"
	"github.com/zhubert/codexmonitor/logger"
	"github.com/zhubert/codexmonitor/process"
)

var doctorCleanup bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that codex and git are installed",
	Long: `Checks the agent and git executables, prints the file locations in
use and lists app-server processes left behind by a previous run. With
--cleanup those processes are killed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		agent := cfg.GetAgent()
		out := cmd.OutOrStdout()

		checker := cli.NewChecker(agent.ExtraPaths)
		results := checker.CheckAll(cmd.Context(), cli.DefaultPrerequisites(agent.Bin))
		fmt.Fprint(out, cli.FormatCheckResults(results))

		storePath, _ := cfg.WorkspacesPath()
		logPath, _ := logger.DefaultLogPath()
		fmt.Fprintf(out, "\nConfig:     %s\n", cfg.FilePath())
		fmt.Fprintf(out, "Workspaces: %s\n", storePath)
		fmt.Fprintf(out, "Logs:       %s\n", logPath)

		if err := reportOrphans(cmd.Context(), out, process.NewFinder(), agent.Bin); err != nil {
			return err
		}
		return cli.ValidateRequired(results)
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorCleanup, "cleanup", false, "kill orphaned app-server processes")
	rootCmd.AddCommand(doctorCmd)
}

func reportOrphans(ctx context.Context, out io.Writer, finder *process.Finder, agentBin string) error {
	if doctorCleanup {
		n, err := finder.CleanupOrphaned(ctx, agentBin)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nKilled %d orphaned app-server process(es).\n", n)
		return nil
	}

	orphans, err := finder.FindOrphaned(ctx, agentBin)
	if err != nil {
		return err
	}
	if len(orphans) == 0 {
		return nil
	}
	fmt.Fprintf(out, "\nOrphaned app-server processes (run with --cleanup to kill):\n")
	for _, p := range orphans {
		fmt.Fprintf(out, "  %d  %s\n", p.PID, p.Command)
	}
	return nil
}

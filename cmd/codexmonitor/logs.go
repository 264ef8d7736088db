package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhubert/codexmonitor/logger"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Manage log files",
}

var logsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all log files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := logger.ClearLogs()
		if err != nil {
			return fmt.Errorf("failed to clear logs: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d log file(s).\n", n)
		return nil
	},
}

var logsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the log file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := logger.DefaultLogPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	logsCmd.AddCommand(logsClearCmd, logsPathCmd)
	rootCmd.AddCommand(logsCmd)
}

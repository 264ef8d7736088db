package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhubert/codexmonitor/appserver"
	"github.com/zhubert/codexmonitor/config"
)

// Set at build time with -ldflags "-X main.Version=...".
var (
	Version = "dev"
	Commit  = "none"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "codexmonitor",
	Short:   "Supervise codex app-server sessions for your workspaces",
	Version: Version,
	Long: `codexmonitor runs one codex app-server per workspace, keeps the
workspace list on disk, and exposes sessions, worktrees and git state to
a UI over HTTP and a websocket event stream.`,
	SilenceUsage: true,
}

// Execute runs the root command and returns an exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is config.yaml in the config directory)")
}

// loadConfig reads --config if given, else the default config file.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// spawnerOptions maps the agent config onto spawner options.
func spawnerOptions(agent config.AgentConfig) appserver.Options {
	return appserver.Options{
		DefaultBin:        agent.Bin,
		ExtraPaths:        agent.ExtraPaths,
		VersionTimeout:    time.Duration(agent.VersionTimeout),
		InitializeTimeout: time.Duration(agent.InitializeTimeout),
		Client: appserver.ClientInfo{
			Name:    agent.Client.Name,
			Title:   agent.Client.Title,
			Version: agent.Client.Version,
		},
	}
}

func versionString() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}

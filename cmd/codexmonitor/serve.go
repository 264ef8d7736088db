package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zhubert/codexmonitor/appserver"
	"github.com/zhubert/codexmonitor/config"
	"github.com/zhubert/codexmonitor/git"
	"github.com/zhubert/codexmonitor/logger"
	"github.com/zhubert/codexmonitor/manager"
	"github.com/zhubert/codexmonitor/server"
	"github.com/zhubert/codexmonitor/workspace"
)

var (
	serveListen  string
	serveDebug   bool
	serveConnect bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session supervisor and HTTP API",
	Long: `Starts the HTTP API and websocket event stream. With --connect every
persisted workspace gets an app-server at startup.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides config)")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "enable debug logging")
	serveCmd.Flags().BoolVar(&serveConnect, "connect", true, "connect persisted workspaces on startup")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logPath, err := logger.DefaultLogPath()
	if err != nil {
		return err
	}
	if err := logger.Init(logPath); err != nil {
		return err
	}
	defer logger.Close()
	logger.SetDebug(serveDebug || cfg.GetDebug())
	log := logger.WithComponent("serve")

	storePath, err := cfg.WorkspacesPath()
	if err != nil {
		return err
	}

	hub := server.NewHub()
	spawner := appserver.NewSpawner(spawnerOptions(cfg.GetAgent()), hub)
	sv, err := manager.New(workspace.NewStore(storePath), spawner, git.NewGitService())
	if err != nil {
		return err
	}
	sv.SetMaxFiles(cfg.GetMaxFiles())
	defer sv.Shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.FilePath() != "" {
		go func() {
			err := cfg.Watch(ctx, func(c *config.Config) {
				logger.SetDebug(serveDebug || c.GetDebug())
			})
			if err != nil {
				log.Warn("config watch stopped", "error", err)
			}
		}()
	}

	if serveConnect {
		go connectAll(ctx, sv)
	}

	listen := cfg.GetListen()
	if serveListen != "" {
		listen = serveListen
	}
	out := cmd.OutOrStdout()
	return server.New(listen, sv, hub).Serve(ctx, func(addr string) {
		fmt.Fprintf(out, "codexmonitor %s listening on http://%s\n", Version, addr)
		fmt.Fprintf(out, "logs: %s\n", logPath)
	})
}

// connectAll spawns an app-server for every persisted workspace. Failures
// are logged and leave the workspace disconnected.
func connectAll(ctx context.Context, sv *manager.Supervisor) {
	log := logger.WithComponent("serve")
	for _, info := range sv.ListWorkspaces() {
		if ctx.Err() != nil {
			return
		}
		if err := sv.ConnectWorkspace(ctx, info.ID); err != nil {
			log.Warn("failed to connect workspace", "workspaceID", info.ID, "path", info.Path, "error", err)
		}
	}
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zhubert/codexmonitor/logger"
)

func TestMain(m *testing.M) {
	logger.Reset()
	logger.Init(os.DevNull)
	code := m.Run()
	logger.Reset()
	os.Exit(code)
}

func TestLoadFile_MissingUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.GetListen() != DefaultListen {
		t.Errorf("Listen = %q, want %q", cfg.GetListen(), DefaultListen)
	}
	agent := cfg.GetAgent()
	if agent.Bin != "codex" {
		t.Errorf("Bin = %q, want codex", agent.Bin)
	}
	if time.Duration(agent.VersionTimeout) != 5*time.Second {
		t.Errorf("VersionTimeout = %v", time.Duration(agent.VersionTimeout))
	}
	if time.Duration(agent.InitializeTimeout) != 15*time.Second {
		t.Errorf("InitializeTimeout = %v", time.Duration(agent.InitializeTimeout))
	}
	if agent.Client.Name != "codex_monitor" || agent.Client.Title != "CodexMonitor" || agent.Client.Version != "0.1.0" {
		t.Errorf("unexpected client info: %+v", agent.Client)
	}
	if cfg.GetMaxFiles() != 20000 {
		t.Errorf("MaxResults = %d", cfg.GetMaxFiles())
	}
	if cfg.FilePath() != path {
		t.Errorf("FilePath = %q, want %q", cfg.FilePath(), path)
	}
}

func TestLoadFile_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `listen: "0.0.0.0:9000"
debug: true
store_path: /tmp/ws.json
agent:
  bin: /opt/codex/bin/codex
  extra_paths: [/opt/tools/bin]
  version_timeout: 2s
  initialize_timeout: 1m
files:
  max_results: 50
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.GetListen() != "0.0.0.0:9000" || !cfg.GetDebug() {
		t.Errorf("unexpected top-level fields: %q %v", cfg.GetListen(), cfg.GetDebug())
	}
	agent := cfg.GetAgent()
	if agent.Bin != "/opt/codex/bin/codex" {
		t.Errorf("Bin = %q", agent.Bin)
	}
	if time.Duration(agent.InitializeTimeout) != time.Minute {
		t.Errorf("InitializeTimeout = %v", time.Duration(agent.InitializeTimeout))
	}
	if len(agent.ExtraPaths) != 1 || agent.ExtraPaths[0] != "/opt/tools/bin" {
		t.Errorf("ExtraPaths = %v", agent.ExtraPaths)
	}
	// Unset client fields still get defaults.
	if agent.Client.Name != DefaultClientName {
		t.Errorf("Client.Name = %q", agent.Client.Name)
	}
	store, err := cfg.WorkspacesPath()
	if err != nil || store != "/tmp/ws.json" {
		t.Errorf("WorkspacesPath = %q, %v", store, err)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "listen: [", "failed to parse"},
		{"bad duration", "agent:\n  version_timeout: soon\n", "invalid duration"},
		{"bad listen", "listen: nocolon\n", "invalid listen address"},
		{"relative extra path", "agent:\n  extra_paths: [bin]\n", "must be absolute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadFile(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.SetDebug(true)
	cfg.Agent.InitializeTimeout = Duration(30 * time.Second)

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "initialize_timeout: 30s") {
		t.Errorf("durations should be written as strings:\n%s", data)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !loaded.GetDebug() {
		t.Error("debug flag lost")
	}
	if time.Duration(loaded.GetAgent().InitializeTimeout) != 30*time.Second {
		t.Errorf("timeout lost: %v", time.Duration(loaded.GetAgent().InitializeTimeout))
	}
}

func TestSave_NoPath(t *testing.T) {
	if err := Default().Save(); err == nil {
		t.Error("Save without a file path should fail")
	}
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("debug: false\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("debug: true\nlisten: \"127.0.0.1:1\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !cfg.GetDebug() {
		t.Error("debug should be reloaded")
	}
	if cfg.GetListen() != DefaultListen {
		t.Error("listen is not hot-reloadable and should keep its value")
	}
}

func TestWatch_AppliesChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("debug: false\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan bool, 4)
	done := make(chan error, 1)
	go func() {
		done <- cfg.Watch(ctx, func(c *Config) {
			select {
			case changed <- c.GetDebug():
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("debug: true\n"), 0644); err != nil {
		t.Fatal(err)
	}

	// The truncate and the write can arrive as separate events, so wait for
	// the reload that sees the new content.
	deadline := time.After(5 * time.Second)
	for seen := false; !seen; {
		select {
		case debug := <-changed:
			seen = debug
		case <-deadline:
			t.Fatal("timed out waiting for debug=true reload")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

// Package paths resolves where codexmonitor keeps its files.
//
// Three kinds of files are tracked:
//
//   - config: config.yaml
//   - data:   workspaces.json, the persisted workspace list
//   - state:  logs/
//
// Resolution order:
//  1. CODEXMONITOR_HOME set → everything lives under that directory
//  2. ~/.codexmonitor/ exists → flat layout under it
//  3. Any XDG_*_HOME set → XDG layout, missing vars take their defaults
//  4. Otherwise → ~/.codexmonitor/
package paths

import (
	"os"
	"path/filepath"
	"sync"
)

const appName = "codexmonitor"

// HomeEnv overrides every directory when set.
const HomeEnv = "CODEXMONITOR_HOME"

var (
	mu     sync.Mutex
	layout *Layout
)

// Layout is a resolved set of directories.
type Layout struct {
	Config string
	Data   string
	State  string
	Flat   bool
}

func flat(dir string) *Layout {
	return &Layout{Config: dir, Data: dir, State: dir, Flat: true}
}

func current() (*Layout, error) {
	mu.Lock()
	defer mu.Unlock()

	if layout != nil {
		return layout, nil
	}

	if dir := os.Getenv(HomeEnv); dir != "" {
		layout = flat(dir)
		return layout, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dotDir := filepath.Join(home, "."+appName)

	if info, err := os.Stat(dotDir); err == nil && info.IsDir() {
		layout = flat(dotDir)
		return layout, nil
	}

	cfg, data, state := os.Getenv("XDG_CONFIG_HOME"), os.Getenv("XDG_DATA_HOME"), os.Getenv("XDG_STATE_HOME")
	if cfg == "" && data == "" && state == "" {
		layout = flat(dotDir)
		return layout, nil
	}

	if cfg == "" {
		cfg = filepath.Join(home, ".config")
	}
	if data == "" {
		data = filepath.Join(home, ".local", "share")
	}
	if state == "" {
		state = filepath.Join(home, ".local", "state")
	}
	layout = &Layout{
		Config: filepath.Join(cfg, appName),
		Data:   filepath.Join(data, appName),
		State:  filepath.Join(state, appName),
	}
	return layout, nil
}

// Current returns a copy of the resolved layout.
func Current() (Layout, error) {
	l, err := current()
	if err != nil {
		return Layout{}, err
	}
	return *l, nil
}

// ConfigDir returns the directory holding config.yaml.
func ConfigDir() (string, error) {
	l, err := current()
	if err != nil {
		return "", err
	}
	return l.Config, nil
}

// DataDir returns the directory holding the workspace store.
func DataDir() (string, error) {
	l, err := current()
	if err != nil {
		return "", err
	}
	return l.Data, nil
}

// StateDir returns the directory for logs and other transient files.
func StateDir() (string, error) {
	l, err := current()
	if err != nil {
		return "", err
	}
	return l.State, nil
}

// ConfigFilePath returns the full path to config.yaml.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// WorkspacesFilePath returns the full path to workspaces.json.
func WorkspacesFilePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "workspaces.json"), nil
}

// LogsDir returns the directory for log files.
func LogsDir() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// Reset clears the cached layout. Tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	layout = nil
}

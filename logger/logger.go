// Package logger owns the process-wide slog logger.
//
// Everything is written to a single text log file. Callers scope their
// loggers with WithComponent or WithWorkspace instead of creating their own.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/zhubert/codexmonitor/paths"
)

const logFileName = "codexmonitor.log"

var (
	root     *slog.Logger
	levelVar = new(slog.LevelVar)
	logFile  *os.File
	mu       sync.Mutex
	logPath  string
	initDone bool
)

// DefaultLogPath returns the default log file path.
func DefaultLogPath() (string, error) {
	dir, err := paths.LogsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, logFileName), nil
}

// SetDebug toggles between debug and info level.
func SetDebug(enabled bool) {
	if enabled {
		levelVar.Set(slog.LevelDebug)
	} else {
		levelVar.Set(slog.LevelInfo)
	}
}

// Debugging reports whether debug logging is on.
func Debugging() bool {
	return levelVar.Level() <= slog.LevelDebug
}

// open creates the log directory and file and installs the handler.
// Caller must hold mu.
func open(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	logFile = f
	logPath = path
	root = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: levelVar}))
	initDone = true
	root.Info("logger initialized", "path", path)
	return nil
}

// Init points the logger at path. Calls after the first successful one are
// no-ops until Reset.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if initDone {
		return nil
	}
	return open(path)
}

// ensureInit falls back to the default path. Caller must hold mu.
func ensureInit() {
	if initDone {
		return
	}
	path, err := DefaultLogPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to get default log path: %v\n", err)
		return
	}
	if err := open(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func with(key, value string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()

	ensureInit()

	base := root
	if base == nil {
		base = slog.Default()
	}
	if key == "" {
		return base
	}
	return base.With(key, value)
}

// Get returns the root logger.
func Get() *slog.Logger {
	return with("", "")
}

// WithWorkspace returns a logger tagged with workspaceID.
//
//	log := logger.WithWorkspace(entry.ID)
//	log.Info("session ready", "pid", pid)
//	// level=INFO msg="session ready" workspaceID=6f1c... pid=4242
func WithWorkspace(workspaceID string) *slog.Logger {
	return with("workspaceID", workspaceID)
}

// WithComponent returns a logger tagged with a component name.
func WithComponent(component string) *slog.Logger {
	return with("component", component)
}

// Path returns the file currently being written, or "" before init.
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	root = nil
}

// Reset drops all state so Init can run again. Tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	initDone = false
	logPath = ""
	root = nil
	levelVar = new(slog.LevelVar)
}

// ClearLogs removes every *.log file in the logs directory and returns how
// many were deleted.
func ClearLogs() (int, error) {
	dir, err := paths.LogsDir()
	if err != nil {
		return 0, fmt.Errorf("failed to get logs directory: %w", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.log"))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return count, err
		}
		count++
	}
	return count, nil
}

package appserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	pexec "github.com/zhubert/codexmonitor/exec"
	"github.com/zhubert/codexmonitor/logger"
	"github.com/zhubert/codexmonitor/workspace"
)

// User-facing spawn failures.
var (
	ErrAgentNotFound     = errors.New("Codex CLI not found. Install Codex and ensure `codex` is on your PATH.")
	ErrProbeTimeout      = errors.New("Timed out while checking Codex CLI. Make sure `codex --version` runs in Terminal.")
	ErrInitializeTimeout = errors.New("Codex app-server did not respond to initialize. Check that `codex app-server` works in Terminal.")
)

// StartFailedError reports a version probe that exited unsuccessfully.
type StartFailedError struct {
	Detail string
}

func (e *StartFailedError) Error() string {
	if e.Detail == "" {
		return "Codex CLI failed to start. Try running `codex --version` in Terminal."
	}
	return fmt.Sprintf("Codex CLI failed to start: %s. Try running `codex --version` in Terminal.", e.Detail)
}

// Directories appended to PATH when the default binary is used. GUI
// launches often start with a minimal PATH.
var fallbackPathDirs = []string{
	"/opt/homebrew/bin",
	"/usr/local/bin",
	"/usr/bin",
	"/bin",
	"/usr/sbin",
	"/sbin",
}

// waitDelay bounds how long Wait keeps copying output after the process
// exits, for descendants that inherited stdout.
const waitDelay = 2 * time.Second

// Options configures a Spawner.
type Options struct {
	// DefaultBin is looked up on the augmented PATH when an entry has no
	// override.
	DefaultBin        string
	ExtraPaths        []string
	VersionTimeout    time.Duration
	InitializeTimeout time.Duration
	Client            ClientInfo
}

// DefaultOptions returns the stock timeouts and client identity.
func DefaultOptions() Options {
	return Options{
		DefaultBin:        "codex",
		VersionTimeout:    5 * time.Second,
		InitializeTimeout: 15 * time.Second,
		Client: ClientInfo{
			Name:    "codex_monitor",
			Title:   "CodexMonitor",
			Version: "0.1.0",
		},
	}
}

// Spawner starts app-server processes and brings them to Ready.
type Spawner struct {
	opts     Options
	sink     EventSink
	executor pexec.CommandExecutor
	log      *slog.Logger
}

// NewSpawner creates a Spawner that probes with the real executor.
func NewSpawner(opts Options, sink EventSink) *Spawner {
	return NewSpawnerWithExecutor(opts, sink, pexec.NewRealExecutor())
}

// NewSpawnerWithExecutor creates a Spawner with a custom executor for the
// version probe.
func NewSpawnerWithExecutor(opts Options, sink EventSink, executor pexec.CommandExecutor) *Spawner {
	def := DefaultOptions()
	if opts.DefaultBin == "" {
		opts.DefaultBin = def.DefaultBin
	}
	if opts.VersionTimeout <= 0 {
		opts.VersionTimeout = def.VersionTimeout
	}
	if opts.InitializeTimeout <= 0 {
		opts.InitializeTimeout = def.InitializeTimeout
	}
	if opts.Client == (ClientInfo{}) {
		opts.Client = def.Client
	}
	return &Spawner{
		opts:     opts,
		sink:     sink,
		executor: executor,
		log:      logger.WithComponent("spawner"),
	}
}

// Spawn launches `<bin> app-server` for entry and completes the handshake.
// On any failure after launch the process is killed before returning.
func (sp *Spawner) Spawn(ctx context.Context, entry workspace.Entry) (*Session, error) {
	log := sp.log.With("workspaceID", entry.ID)

	bin, env, err := sp.resolve(entry)
	if err != nil {
		return nil, err
	}

	version, err := sp.probe(ctx, bin, env)
	if err != nil {
		log.Warn("version probe failed", "bin", bin, "error", err)
		return nil, err
	}
	log.Debug("version probe ok", "bin", bin, "version", version)

	s, err := sp.launch(entry, bin, env)
	if err != nil {
		return nil, err
	}

	if err := s.Initialize(ctx, sp.opts.Client, sp.opts.InitializeTimeout); err != nil {
		log.Warn("handshake failed, killing app-server", "pid", s.Pid(), "error", err)
		s.Kill()
		return nil, err
	}
	return s, nil
}

// resolve picks the binary and, for the default binary, the augmented PATH
// the child runs with.
func (sp *Spawner) resolve(entry workspace.Entry) (string, []string, error) {
	if bin := entry.Bin(); bin != "" {
		return bin, nil, nil
	}

	home, _ := os.UserHomeDir()
	dirs := AugmentedPath(os.Getenv("PATH"), home, sp.opts.ExtraPaths)
	bin, err := LookPathIn(sp.opts.DefaultBin, dirs)
	if err != nil {
		return "", nil, ErrAgentNotFound
	}
	return bin, []string{"PATH=" + strings.Join(dirs, string(os.PathListSeparator))}, nil
}

// AugmentedPath returns the entries of current followed by the well-known
// install directories and extra, deduplicated with first position kept.
func AugmentedPath(current, home string, extra []string) []string {
	candidates := filepath.SplitList(current)
	candidates = append(candidates, fallbackPathDirs...)
	if home != "" {
		candidates = append(candidates,
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, ".cargo", "bin"),
		)
	}
	candidates = append(candidates, extra...)

	seen := make(map[string]bool, len(candidates))
	dirs := make([]string, 0, len(candidates))
	for _, dir := range candidates {
		if dir == "" || seen[dir] {
			continue
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	return dirs
}

// LookPathIn is exec.LookPath against an explicit directory list rather
// than this process's PATH.
func LookPathIn(name string, dirs []string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) {
		if isExecutable(name) {
			return name, nil
		}
		return "", exec.ErrNotFound
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", exec.ErrNotFound
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}

// probe runs `<bin> --version` and maps failures to user-facing errors.
func (sp *Spawner) probe(ctx context.Context, bin string, env []string) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, sp.opts.VersionTimeout)
	defer cancel()

	stdout, stderr, err := sp.executor.Invoke(probeCtx, pexec.Invocation{
		Name: bin,
		Args: []string{"--version"},
		Env:  env,
	})
	if err == nil {
		return strings.TrimSpace(string(stdout)), nil
	}

	if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
		return "", ErrProbeTimeout
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return "", ErrAgentNotFound
	}

	detail := strings.TrimSpace(string(stderr))
	if detail == "" {
		detail = strings.TrimSpace(string(stdout))
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || detail != "" {
		return "", &StartFailedError{Detail: detail}
	}
	return "", err
}

// launch starts the long-lived process with its readers attached. The
// process is not tied to ctx: it lives until killed or it exits.
func (sp *Spawner) launch(entry workspace.Entry, bin string, env []string) (*Session, error) {
	cmd := exec.Command(bin, "app-server")
	cmd.Dir = entry.Path
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		stderrW.Close()
		return nil, fmt.Errorf("failed to start app-server: %w", err)
	}

	s := newSession(entry, stdin, sp.sink)
	s.cmd = cmd
	s.startReaders(stdoutR, stderrR)
	go s.monitorExit(stdoutW, stderrW)

	s.log.Info("app-server started", "bin", bin, "pid", cmd.Process.Pid, "dir", entry.Path)
	return s, nil
}

// monitorExit is the only caller of cmd.Wait. Wait returns after the
// process exits and its output has been copied into the reader pipes;
// closing the pipes then lets the readers drain and finish.
func (s *Session) monitorExit(stdoutW, stderrW *io.PipeWriter) {
	err := s.cmd.Wait()
	stdoutW.Close()
	stderrW.Close()
	<-s.stdoutDone

	s.exitErr = err
	if err != nil {
		s.log.Info("app-server exited", "error", err)
	} else {
		s.log.Info("app-server exited")
	}
	s.terminate("process exited")
	close(s.exited)
}

// Package process finds and cleans up app-server processes left behind by
// a codexmonitor that exited without killing its children.
package process

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	pexec "github.com/zhubert/codexmonitor/exec"
	"github.com/zhubert/codexmonitor/logger"
)

// AppServerProcess is one running `<agent> app-server` process.
type AppServerProcess struct {
	PID     int
	PPID    int
	Command string
}

// Orphaned reports whether the process has been reparented to init, which
// is what happens to an app-server whose supervisor died.
func (p AppServerProcess) Orphaned() bool {
	return p.PPID == 1
}

// Finder lists processes with ps.
type Finder struct {
	executor pexec.CommandExecutor
}

// NewFinder returns a Finder that runs the real ps.
func NewFinder() *Finder {
	return NewFinderWithExecutor(pexec.NewRealExecutor())
}

// NewFinderWithExecutor returns a Finder with a custom executor (for testing).
func NewFinderWithExecutor(executor pexec.CommandExecutor) *Finder {
	return &Finder{executor: executor}
}

// FindAppServers lists every process whose command line runs `app-server`
// through an executable named agentBin (a bare name or a path ending in it).
func (f *Finder) FindAppServers(ctx context.Context, agentBin string) ([]AppServerProcess, error) {
	if runtime.GOOS != "darwin" && runtime.GOOS != "linux" {
		return nil, nil
	}

	out, err := f.executor.Output(ctx, "", "ps", "-axo", "pid=,ppid=,args=")
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	procs := parsePS(string(out), agentBin)
	logger.WithComponent("process").Debug("found app-server processes", "count", len(procs))
	return procs, nil
}

// FindOrphaned lists the app-servers whose parent has exited.
func (f *Finder) FindOrphaned(ctx context.Context, agentBin string) ([]AppServerProcess, error) {
	procs, err := f.FindAppServers(ctx, agentBin)
	if err != nil {
		return nil, err
	}
	var orphans []AppServerProcess
	for _, p := range procs {
		if p.Orphaned() {
			orphans = append(orphans, p)
		}
	}
	return orphans, nil
}

// CleanupOrphaned kills every orphaned app-server and returns how many
// were killed. Individual kill failures are logged and skipped.
func (f *Finder) CleanupOrphaned(ctx context.Context, agentBin string) (int, error) {
	orphans, err := f.FindOrphaned(ctx, agentBin)
	if err != nil {
		return 0, err
	}

	log := logger.WithComponent("process")
	killed := 0
	for _, p := range orphans {
		log.Info("killing orphaned app-server", "pid", p.PID, "command", p.Command)
		if err := KillProcess(p.PID); err != nil {
			log.Error("failed to kill process", "pid", p.PID, "error", err)
			continue
		}
		killed++
	}
	return killed, nil
}

// KillProcess sends SIGKILL to pid.
func KillProcess(pid int) error {
	return exec.Command("kill", "-9", strconv.Itoa(pid)).Run()
}

// parsePS parses `ps -o pid=,ppid=,args=` output, keeping app-server
// processes of agentBin.
func parsePS(out, agentBin string) []AppServerProcess {
	var procs []AppServerProcess
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		ppid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		args := fields[2:]
		if !isAppServer(args, agentBin) {
			continue
		}
		procs = append(procs, AppServerProcess{
			PID:     pid,
			PPID:    ppid,
			Command: strings.Join(args, " "),
		})
	}
	return procs
}

func isAppServer(args []string, agentBin string) bool {
	if len(args) < 2 {
		return false
	}
	exe := args[0]
	// Node-based installs run as `node /path/to/codex app-server`.
	if (exe == "node" || strings.HasSuffix(exe, "/node")) && len(args) >= 3 {
		args = args[1:]
		exe = args[0]
	}
	name := agentBin
	if i := strings.LastIndex(agentBin, "/"); i >= 0 {
		name = agentBin[i+1:]
	}
	if exe != agentBin && exe != name && !strings.HasSuffix(exe, "/"+name) {
		return false
	}
	return args[1] == "app-server"
}

package appserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhubert/codexmonitor/logger"
	"github.com/zhubert/codexmonitor/protocol"
	"github.com/zhubert/codexmonitor/workspace"
)

var (
	// ErrCanceled is returned to callers whose request was still pending
	// when the session terminated.
	ErrCanceled = errors.New("request canceled")

	// ErrSessionClosed is returned by writes after termination.
	ErrSessionClosed = errors.New("app-server session closed")
)

// State is the lifecycle position of a session.
type State int

const (
	StateSpawning State = iota
	StateAwaitingInit
	StateReady
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateAwaitingInit:
		return "awaiting-init"
	case StateReady:
		return "ready"
	default:
		return "terminated"
	}
}

// EventSink receives every message forwarded from a session.
type EventSink interface {
	Emit(protocol.Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(protocol.Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e protocol.Event) { f(e) }

// ClientInfo identifies this program in the initialize request.
type ClientInfo struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Version string `json:"version"`
}

type initializeParams struct {
	ClientInfo ClientInfo `json:"clientInfo"`
}

// Session is the live connection to one workspace's app-server process.
// It is created per connect and never reused after it terminates.
type Session struct {
	entry workspace.Entry
	log   *slog.Logger
	sink  EventSink

	cmd *exec.Cmd // nil for attached streams

	writeMu sync.Mutex
	stdin   io.WriteCloser

	nextID  atomic.Uint64
	pending *pendingCalls

	// lifecycleMu orders the connected and disconnected events. stateMu
	// is never held while the sink runs.
	lifecycleMu sync.Mutex
	stateMu     sync.Mutex
	state       State

	termOnce   sync.Once
	done       chan struct{}
	stdoutDone chan struct{}
	exited     chan struct{}
	exitErr    error
}

func newSession(entry workspace.Entry, stdin io.WriteCloser, sink EventSink) *Session {
	if sink == nil {
		sink = SinkFunc(func(protocol.Event) {})
	}
	return &Session{
		entry:      entry,
		log:        logger.WithWorkspace(entry.ID),
		sink:       sink,
		stdin:      stdin,
		pending:    newPendingCalls(),
		state:      StateSpawning,
		done:       make(chan struct{}),
		stdoutDone: make(chan struct{}),
		exited:     make(chan struct{}),
	}
}

// Attach builds a session on streams that are already connected to an
// app-server, then starts its readers. The session has no process of its
// own: Kill closes stdin and Exited closes once stdout ends.
func Attach(entry workspace.Entry, stdin io.WriteCloser, stdout, stderr io.Reader, sink EventSink) *Session {
	s := newSession(entry, stdin, sink)
	s.startReaders(stdout, stderr)
	go func() {
		<-s.stdoutDone
		close(s.exited)
	}()
	return s
}

// Entry returns the entry snapshot the session was started from.
func (s *Session) Entry() workspace.Entry {
	return s.entry
}

// WorkspaceID is shorthand for Entry().ID.
func (s *Session) WorkspaceID() string {
	return s.entry.ID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Connected reports whether the handshake completed and the session has
// not terminated.
func (s *Session) Connected() bool {
	return s.State() == StateReady
}

// Done is closed when the session terminates.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Exited is closed once the process has been reaped (or, for attached
// sessions, once stdout has ended).
func (s *Session) Exited() <-chan struct{} {
	return s.exited
}

// ExitErr returns the process wait error. Only valid after Exited.
func (s *Session) ExitErr() error {
	return s.exitErr
}

// Pid returns the process id, or 0 for attached sessions.
func (s *Session) Pid() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// PendingCount returns the number of requests awaiting replies.
func (s *Session) PendingCount() int {
	return s.pending.len()
}

func (s *Session) setState(next State) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state != StateTerminated {
		s.state = next
	}
}

func (s *Session) emit(e protocol.Event) {
	s.sink.Emit(e)
}

// write sends one framed line. Concurrent writers are serialized.
func (s *Session) write(line []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	if _, err := s.stdin.Write(line); err != nil {
		return fmt.Errorf("failed to write to app-server: %w", err)
	}
	return nil
}

// Call sends a request and waits for the matching reply. The full reply
// message is returned; use protocol.ResultOf to split result from error.
// If the session terminates first the call fails with ErrCanceled. There is
// no built-in timeout; ctx bounds the wait.
func (s *Session) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := s.nextID.Add(1)

	slot, err := s.pending.register(id)
	if err != nil {
		return nil, err
	}
	line, err := protocol.EncodeRequest(id, method, params)
	if err != nil {
		s.pending.forget(id)
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	if err := s.write(line); err != nil {
		s.pending.forget(id)
		return nil, err
	}
	s.log.Debug("request sent", "id", id, "method", method)

	select {
	case reply, ok := <-slot:
		if !ok {
			return nil, ErrCanceled
		}
		return reply, nil
	case <-ctx.Done():
		s.pending.forget(id)
		return nil, ctx.Err()
	}
}

// Notify sends a notification. nil params are omitted from the message.
func (s *Session) Notify(method string, params any) error {
	line, err := protocol.EncodeNotification(method, params)
	if err != nil {
		return fmt.Errorf("failed to encode %s notification: %w", method, err)
	}
	return s.write(line)
}

// Respond answers a request the app-server sent to us.
func (s *Session) Respond(id uint64, result any) error {
	line, err := protocol.EncodeResponse(id, result)
	if err != nil {
		return fmt.Errorf("failed to encode response %d: %w", id, err)
	}
	return s.write(line)
}

// Initialize runs the initialize/initialized handshake and moves the
// session to Ready. timeout bounds the wait for the initialize reply.
func (s *Session) Initialize(ctx context.Context, client ClientInfo, timeout time.Duration) error {
	s.setState(StateAwaitingInit)

	initCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := s.Call(initCtx, protocol.MethodInitialize, initializeParams{ClientInfo: client})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrInitializeTimeout
		}
		return err
	}
	if _, err := protocol.ResultOf(reply); err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}
	if err := s.Notify(protocol.MethodInitialized, nil); err != nil {
		return err
	}

	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.stateMu.Lock()
	if s.state == StateTerminated {
		s.stateMu.Unlock()
		return ErrCanceled
	}
	s.state = StateReady
	s.stateMu.Unlock()

	s.emit(protocol.ConnectedEvent(s.entry.ID))
	s.log.Info("app-server ready", "pid", s.Pid())
	return nil
}

// Kill stops the process and terminates the session. Safe to call more
// than once and concurrently with the process exiting on its own.
func (s *Session) Kill() {
	s.terminate("killed")
}

// terminate is the single convergence point for kill, process exit and
// the end of stdout. The process is killed if still running, pending calls
// are canceled and, if the session had reached Ready, one disconnected
// event is emitted.
func (s *Session) terminate(reason string) {
	s.termOnce.Do(func() {
		s.killProcess()
		s.stdin.Close()

		s.lifecycleMu.Lock()
		s.stateMu.Lock()
		wasReady := s.state == StateReady
		s.state = StateTerminated
		close(s.done)
		s.stateMu.Unlock()
		if wasReady {
			s.emit(protocol.DisconnectedEvent(s.entry.ID))
		}
		s.lifecycleMu.Unlock()

		canceled := s.pending.cancelAll()
		s.log.Info("session terminated", "reason", reason, "canceledCalls", canceled)
	})
}

func (s *Session) killProcess() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.log.Debug("kill failed", "error", err)
	}
}

package appserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/zhubert/codexmonitor/protocol"
	"github.com/zhubert/codexmonitor/workspace"
)

// ErrNoReply tells FakeServer to leave a request unanswered.
var ErrNoReply = errors.New("no reply")

// FakeHandler answers one request. Returning a *protocol.RPCError sends it
// as the error member; any other error is sent as {code:-32000, message}.
type FakeHandler func(method string, params json.RawMessage) (any, error)

// FakeMessage is one line the session wrote to the fake.
type FakeMessage struct {
	ID     uint64
	HasID  bool
	Method string
	Params json.RawMessage
	Result json.RawMessage
}

// FakeServer is an in-process app-server that speaks the line protocol
// over pipes. It does not spawn a process.
//
// NOTE: used by the manager and server tests.
type FakeServer struct {
	handler FakeHandler

	mu       sync.Mutex
	received []FakeMessage

	writeMu sync.Mutex
	stdout  *io.PipeWriter
	stderr  *io.PipeWriter

	done chan struct{}
}

// NewFake returns a session attached to a fake server. The session has not
// been initialized; call Initialize to reach Ready. A nil handler replies
// {} to everything.
func NewFake(entry workspace.Entry, sink EventSink, handler FakeHandler) (*Session, *FakeServer) {
	if handler == nil {
		handler = func(string, json.RawMessage) (any, error) { return struct{}{}, nil }
	}
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()

	f := &FakeServer{
		handler: handler,
		stdout:  outW,
		stderr:  errW,
		done:    make(chan struct{}),
	}
	go f.serve(inR)
	return Attach(entry, inW, outR, errR, sink), f
}

func (f *FakeServer) serve(in io.Reader) {
	defer close(f.done)
	defer f.Exit()

	scanner := newLineScanner(in)
	for scanner.Scan() {
		var msg struct {
			ID     *uint64         `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		rec := FakeMessage{Method: msg.Method, Params: msg.Params, Result: msg.Result}
		if msg.ID != nil {
			rec.ID, rec.HasID = *msg.ID, true
		}
		f.mu.Lock()
		f.received = append(f.received, rec)
		f.mu.Unlock()

		if rec.HasID && rec.Method != "" {
			f.reply(rec.ID, rec.Method, rec.Params)
		}
	}
}

func (f *FakeServer) reply(id uint64, method string, params json.RawMessage) {
	result, err := f.handler(method, params)
	if errors.Is(err, ErrNoReply) {
		return
	}
	if err != nil {
		var rpcErr *protocol.RPCError
		if !errors.As(err, &rpcErr) {
			rpcErr = &protocol.RPCError{Code: -32000, Message: err.Error()}
		}
		_ = f.Send(map[string]any{"id": id, "error": rpcErr})
		return
	}
	_ = f.Send(map[string]any{"id": id, "result": result})
}

// Send writes v as one JSON line on the session's stdout.
func (f *FakeServer) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return f.SendRaw(string(data))
}

// SendRaw writes line plus a newline on the session's stdout.
func (f *FakeServer) SendRaw(line string) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_, err := io.WriteString(f.stdout, line+"\n")
	return err
}

// Stderr writes line on the session's stderr.
func (f *FakeServer) Stderr(line string) error {
	_, err := io.WriteString(f.stderr, line+"\n")
	return err
}

// Exit closes stdout and stderr, as a process exit would.
func (f *FakeServer) Exit() {
	f.stdout.Close()
	f.stderr.Close()
}

// Done is closed when the session has closed its end of stdin.
func (f *FakeServer) Done() <-chan struct{} {
	return f.done
}

// Received returns a copy of every message the session sent.
func (f *FakeServer) Received() []FakeMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeMessage, len(f.received))
	copy(out, f.received)
	return out
}

// Requests returns the received messages with the given method.
func (f *FakeServer) Requests(method string) []FakeMessage {
	var out []FakeMessage
	for _, m := range f.Received() {
		if m.Method == method {
			out = append(out, m)
		}
	}
	return out
}

// FakeSpawner builds sessions on FakeServers instead of processes.
type FakeSpawner struct {
	Sink    EventSink
	Handler FakeHandler
	// Err, when set, fails every Spawn before a session is created.
	Err error

	mu      sync.Mutex
	servers map[string]*FakeServer
	spawned []workspace.Entry
}

// Spawn creates a fake-backed session for entry and initializes it.
func (fs *FakeSpawner) Spawn(ctx context.Context, entry workspace.Entry) (*Session, error) {
	fs.mu.Lock()
	fs.spawned = append(fs.spawned, entry)
	err := fs.Err
	fs.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s, server := NewFake(entry, fs.Sink, fs.Handler)
	if err := s.Initialize(ctx, DefaultOptions().Client, DefaultOptions().InitializeTimeout); err != nil {
		s.Kill()
		return nil, err
	}

	fs.mu.Lock()
	if fs.servers == nil {
		fs.servers = make(map[string]*FakeServer)
	}
	fs.servers[entry.ID] = server
	fs.mu.Unlock()
	return s, nil
}

// Server returns the latest fake server for a workspace id.
func (fs *FakeSpawner) Server(workspaceID string) *FakeServer {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.servers[workspaceID]
}

// Spawned returns every entry Spawn was called with.
func (fs *FakeSpawner) Spawned() []workspace.Entry {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]workspace.Entry, len(fs.spawned))
	copy(out, fs.spawned)
	return out
}

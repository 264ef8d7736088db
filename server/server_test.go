package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhubert/codexmonitor/appserver"
	"github.com/zhubert/codexmonitor/git"
	"github.com/zhubert/codexmonitor/logger"
	"github.com/zhubert/codexmonitor/manager"
	"github.com/zhubert/codexmonitor/protocol"
	"github.com/zhubert/codexmonitor/workspace"
)

func TestMain(m *testing.M) {
	logger.Reset()
	logger.Init(os.DevNull)
	os.Exit(m.Run())
}

type testEnv struct {
	srv     *httptest.Server
	hub     *Hub
	sv      *manager.Supervisor
	spawner *appserver.FakeSpawner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	hub := NewHub()
	spawner := &appserver.FakeSpawner{Sink: hub}
	store := workspace.NewStore(filepath.Join(t.TempDir(), "workspaces.json"))
	sv, err := manager.New(store, spawner, git.NewGitService())
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(sv, hub, logger.Get()))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		sv.Shutdown()
	})
	return &testEnv{srv: srv, hub: hub, sv: sv, spawner: spawner}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func (e *testEnv) addWorkspace(t *testing.T, path string) workspace.Info {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/workspaces", `{"path":"`+path+`"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var info workspace.Info
	require.NoError(t, json.Unmarshal(body, &info))
	return info
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestWorkspaceEndpoints(t *testing.T) {
	env := newTestEnv(t)

	info := env.addWorkspace(t, "/repo/foo")
	assert.Equal(t, "foo", info.Name)
	assert.True(t, info.Connected)

	resp, body := env.do(t, http.MethodGet, "/workspaces", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []workspace.Info
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, info.ID, list[0].ID)

	resp, body = env.do(t, http.MethodPut, "/workspaces/"+info.ID+"/settings", `{"sidebarCollapsed":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"sidebarCollapsed":true`)

	resp, _ = env.do(t, http.MethodPost, "/workspaces/"+info.ID+"/disconnect", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/workspaces/"+info.ID+"/connect", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"connected":true`)

	resp, _ = env.do(t, http.MethodDelete, "/workspaces/"+info.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/workspaces/"+info.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"workspace not found"}`, string(body))
}

func TestErrorStatuses(t *testing.T) {
	env := newTestEnv(t)
	info := env.addWorkspace(t, "/repo/foo")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		err    string
	}{
		{"missing path", http.MethodPost, "/workspaces", `{"path":"  "}`, http.StatusBadRequest, "path is required"},
		{"bad json", http.MethodPost, "/workspaces", `{`, http.StatusBadRequest, ""},
		{"blank branch", http.MethodPost, "/workspaces/" + info.ID + "/worktrees", `{"branch":" "}`, http.StatusBadRequest, "Branch name is required."},
		{"unknown parent", http.MethodPost, "/workspaces/nope/worktrees", `{"branch":"x"}`, http.StatusNotFound, "parent workspace not found"},
		{"not a worktree", http.MethodDelete, "/worktrees/" + info.ID, "", http.StatusBadRequest, "Not a worktree workspace."},
		{"unknown worktree", http.MethodDelete, "/worktrees/nope", "", http.StatusNotFound, "workspace not found"},
		{"not connected", http.MethodPost, "/workspaces/nope/threads", "", http.StatusNotFound, "workspace not connected"},
		{"bad request id", http.MethodPost, "/workspaces/" + info.ID + "/server-requests/abc", "", http.StatusBadRequest, "invalid request id"},
		{"bad limit", http.MethodGet, "/workspaces/" + info.ID + "/threads?limit=-1", "", http.StatusBadRequest, ""},
		{"review without target", http.MethodPost, "/workspaces/" + info.ID + "/threads/t1/review", `{}`, http.StatusBadRequest, "target is required"},
		{"blank branch name", http.MethodPost, "/workspaces/" + info.ID + "/git/branches", `{"name":""}`, http.StatusBadRequest, "branch name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
			if tt.err != "" {
				assert.JSONEq(t, `{"error":`+jsonString(tt.err)+`}`, string(body))
			}
		})
	}
}

func jsonString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func TestThreadEndpointsRelayReplies(t *testing.T) {
	env := newTestEnv(t)
	env.spawner.Handler = func(method string, params json.RawMessage) (any, error) {
		if method == protocol.MethodThreadStart {
			return map[string]any{"thread": map[string]string{"id": "t1"}}, nil
		}
		return struct{}{}, nil
	}
	info := env.addWorkspace(t, "/repo/foo")

	resp, body := env.do(t, http.MethodPost, "/workspaces/"+info.ID+"/threads", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reply map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &reply))
	assert.JSONEq(t, `{"thread":{"id":"t1"}}`, string(reply["result"]))
	assert.NotEmpty(t, reply["id"])

	resp, _ = env.do(t, http.MethodPost, "/workspaces/"+info.ID+"/threads/t1/turns",
		`{"text":"hi","accessMode":"read-only"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	server := env.spawner.Server(info.ID)
	turns := server.Requests(protocol.MethodTurnStart)
	require.Len(t, turns, 1)
	assert.Contains(t, string(turns[0].Params), `"sandboxPolicy":{"type":"readOnly"}`)

	resp, _ = env.do(t, http.MethodGet, "/workspaces/"+info.ID+"/threads?limit=5&cursor=abc", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lists := server.Requests(protocol.MethodThreadList)
	require.Len(t, lists, 1)
	assert.JSONEq(t, `{"cursor":"abc","limit":5}`, string(lists[0].Params))

	resp, _ = env.do(t, http.MethodPost, "/workspaces/"+info.ID+"/server-requests/7", `{"decision":"accept"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func dialEvents(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return env.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestEventsStream(t *testing.T) {
	env := newTestEnv(t)
	conn := dialEvents(t, env)

	info := env.addWorkspace(t, "/repo/foo")

	frame := readFrame(t, conn)
	assert.Equal(t, "app-server-event", frame.Event)
	assert.Equal(t, info.ID, frame.Payload.WorkspaceID)
	assert.Equal(t, protocol.MethodConnected, frame.Payload.Method())

	require.NoError(t, env.spawner.Server(info.ID).Send(map[string]any{
		"method": "item/started",
		"params": map[string]string{"threadId": "t1"},
	}))
	frame = readFrame(t, conn)
	assert.JSONEq(t, `{"method":"item/started","params":{"threadId":"t1"}}`, string(frame.Payload.Message))

	require.NoError(t, env.sv.DisconnectWorkspace(info.ID))
	frame = readFrame(t, conn)
	assert.Equal(t, protocol.MethodDisconnected, frame.Payload.Method())
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub()
	slow := &client{id: "slow", hub: hub, send: make(chan []byte, 1)}
	require.True(t, hub.register(slow))

	hub.Emit(protocol.StderrEvent("ws", "one"))
	assert.Equal(t, 1, hub.ClientCount())

	hub.Emit(protocol.StderrEvent("ws", "two"))
	assert.Equal(t, 0, hub.ClientCount())

	data, ok := <-slow.send
	require.True(t, ok)
	assert.Contains(t, string(data), "one")
	_, ok = <-slow.send
	assert.False(t, ok, "send channel should be closed")
}

func TestHub_CloseRejectsClients(t *testing.T) {
	hub := NewHub()
	c := &client{id: "c", hub: hub, send: make(chan []byte, 1)}
	require.True(t, hub.register(c))

	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())
	assert.False(t, hub.register(&client{id: "late", hub: hub, send: make(chan []byte, 1)}))
}

func TestRecovery(t *testing.T) {
	h := Recovery(logger.Get())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	hub := NewHub()
	store := workspace.NewStore(filepath.Join(t.TempDir(), "workspaces.json"))
	sv, err := manager.New(store, &appserver.FakeSpawner{Sink: hub}, git.NewGitService())
	require.NoError(t, err)

	s := New("127.0.0.1:0", sv, hub)
	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, func(addr string) { addrCh <- addr }) }()

	addr := <-addrCh
	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

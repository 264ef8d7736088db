package protocol

import (
	"encoding/json"
)

// EventName is the single stream every forwarded message travels on.
const EventName = "app-server-event"

// Synthetic methods generated locally rather than by the app-server.
const (
	MethodParseError   = "codex/parseError"
	MethodStderr       = "codex/stderr"
	MethodConnected    = "codex/connected"
	MethodDisconnected = "codex/disconnected"
)

// Event is a message routed to the UI, tagged with its workspace.
type Event struct {
	WorkspaceID string          `json:"workspaceId"`
	Message     json.RawMessage `json:"message"`
}

func synthetic(workspaceID, method string, params any) Event {
	// Marshalling a map of strings cannot fail.
	msg, _ := json.Marshal(notification{Method: method, Params: params})
	return Event{WorkspaceID: workspaceID, Message: msg}
}

// ParseErrorEvent reports a stdout line that was not valid JSON.
func ParseErrorEvent(workspaceID string, err error, raw string) Event {
	return synthetic(workspaceID, MethodParseError, map[string]string{
		"error": err.Error(),
		"raw":   raw,
	})
}

// StderrEvent forwards one line of the process's stderr.
func StderrEvent(workspaceID, line string) Event {
	return synthetic(workspaceID, MethodStderr, map[string]string{"message": line})
}

// ConnectedEvent announces a session that finished its handshake.
func ConnectedEvent(workspaceID string) Event {
	return synthetic(workspaceID, MethodConnected, map[string]string{"workspaceId": workspaceID})
}

// DisconnectedEvent announces that a ready session has terminated.
func DisconnectedEvent(workspaceID string) Event {
	return synthetic(workspaceID, MethodDisconnected, map[string]string{"workspaceId": workspaceID})
}

// Method returns the method of the wrapped message, or "".
func (e Event) Method() string {
	var m struct {
		Method string `json:"method"`
	}
	_ = json.Unmarshal(e.Message, &m)
	return m.Method
}

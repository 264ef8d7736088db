// Package protocol frames and classifies the newline-delimited JSON
// messages exchanged with a codex app-server process.
//
// Each message is one JSON object followed by "\n". Outgoing requests carry
// {id, method, params}, notifications {method, params} and responses to
// server requests {id, result}. Incoming lines are classified by which of
// id, method, result and error they carry.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Method names used on the wire.
const (
	MethodInitialize        = "initialize"
	MethodInitialized       = "initialized"
	MethodThreadStart       = "thread/start"
	MethodThreadResume      = "thread/resume"
	MethodThreadList        = "thread/list"
	MethodThreadArchive     = "thread/archive"
	MethodTurnStart         = "turn/start"
	MethodTurnInterrupt     = "turn/interrupt"
	MethodReviewStart       = "review/start"
	MethodModelList         = "model/list"
	MethodAccountRateLimits = "account/rateLimits/read"
	MethodSkillsList        = "skills/list"
)

type request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

type notification struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type response struct {
	ID     uint64 `json:"id"`
	Result any    `json:"result"`
}

func frame(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// EncodeRequest frames {id, method, params}. params is always written,
// as null when nil.
func EncodeRequest(id uint64, method string, params any) ([]byte, error) {
	return frame(request{ID: id, Method: method, Params: params})
}

// EncodeNotification frames {method, params}. A nil params drops the key.
func EncodeNotification(method string, params any) ([]byte, error) {
	return frame(notification{Method: method, Params: params})
}

// EncodeResponse frames {id, result} for a server-initiated request.
func EncodeResponse(id uint64, result any) ([]byte, error) {
	return frame(response{ID: id, Result: result})
}

// Kind is the classification of an incoming line.
type Kind int

const (
	// KindIgnored is valid JSON with nothing we route on.
	KindIgnored Kind = iota
	// KindReply answers one of our requests: id plus result or error.
	KindReply
	// KindServerRequest is the process asking us something: id plus method.
	KindServerRequest
	// KindOrphan carries an id but neither method, result nor error.
	KindOrphan
	// KindNotification has a method and no id.
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindReply:
		return "reply"
	case KindServerRequest:
		return "server-request"
	case KindOrphan:
		return "orphan"
	case KindNotification:
		return "notification"
	default:
		return "ignored"
	}
}

// Incoming is a parsed stdout line.
type Incoming struct {
	Kind Kind
	// ID is meaningful only when HasID is set. Only non-negative integer
	// ids are recognized; anything else counts as absent.
	ID     uint64
	HasID  bool
	Method string
	// Raw is the line as received, without the trailing newline.
	Raw json.RawMessage
}

// ParseError wraps a line that is not valid JSON.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Decode parses and classifies one line. Blank input should be filtered by
// the caller. Invalid JSON returns a *ParseError.
func Decode(line []byte) (Incoming, error) {
	line = bytes.TrimRight(line, "\r\n")
	raw := json.RawMessage(append([]byte(nil), line...))

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		if !json.Valid(line) {
			return Incoming{}, &ParseError{Line: string(line), Err: err}
		}
		// Valid JSON that is not an object.
		return Incoming{Kind: KindIgnored, Raw: raw}, nil
	}

	in := Incoming{Raw: raw}
	if idRaw, ok := fields["id"]; ok && !bytes.Equal(bytes.TrimSpace(idRaw), []byte("null")) {
		var id uint64
		if err := json.Unmarshal(idRaw, &id); err == nil {
			in.ID = id
			in.HasID = true
		}
	}
	methodRaw, hasMethod := fields["method"]
	if hasMethod {
		// A non-string method still counts as present for routing.
		_ = json.Unmarshal(methodRaw, &in.Method)
	}
	_, hasResult := fields["result"]
	_, hasError := fields["error"]

	switch {
	case in.HasID && (hasResult || hasError):
		in.Kind = KindReply
	case in.HasID && hasMethod:
		in.Kind = KindServerRequest
	case in.HasID:
		in.Kind = KindOrphan
	case hasMethod:
		in.Kind = KindNotification
	default:
		in.Kind = KindIgnored
	}
	return in, nil
}

// RPCError is the error member of a reply.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("app-server error %d", e.Code)
	}
	return e.Message
}

// ResultOf extracts the result member of a reply, or returns the reply's
// error member as an *RPCError.
func ResultOf(reply json.RawMessage) (json.RawMessage, error) {
	var msg struct {
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(reply, &msg); err != nil {
		return nil, fmt.Errorf("invalid reply: %w", err)
	}
	if len(msg.Error) > 0 && string(msg.Error) != "null" {
		rpcErr := &RPCError{}
		if err := json.Unmarshal(msg.Error, rpcErr); err != nil {
			// Some servers send a bare string.
			var text string
			if json.Unmarshal(msg.Error, &text) == nil {
				return nil, &RPCError{Message: text}
			}
			return nil, &RPCError{Message: string(msg.Error)}
		}
		return nil, rpcErr
	}
	return msg.Result, nil
}

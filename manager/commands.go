package manager

import (
	"context"
	"encoding/json"

	"github.com/zhubert/codexmonitor/protocol"
)

// Access modes accepted by SendUserMessage.
const (
	AccessFullAccess = "full-access"
	AccessReadOnly   = "read-only"
	AccessCurrent    = "current"
)

// Protocol commands return the app-server's full reply message, result or
// error member included, so callers see exactly what the server sent.

// call resolves the workspace's live session and sends one request.
func (sv *Supervisor) call(ctx context.Context, workspaceID, method string, params func(path string) any) (json.RawMessage, error) {
	s, err := sv.connectedSession(workspaceID)
	if err != nil {
		return nil, err
	}
	return s.Call(ctx, method, params(s.Entry().Path))
}

func fixed(v any) func(string) any {
	return func(string) any { return v }
}

// StartThread starts a conversation rooted at the workspace directory.
func (sv *Supervisor) StartThread(ctx context.Context, workspaceID string) (json.RawMessage, error) {
	return sv.call(ctx, workspaceID, protocol.MethodThreadStart, func(path string) any {
		return map[string]any{"cwd": path, "approvalPolicy": "on-request"}
	})
}

func (sv *Supervisor) ResumeThread(ctx context.Context, workspaceID, threadID string) (json.RawMessage, error) {
	return sv.call(ctx, workspaceID, protocol.MethodThreadResume, fixed(map[string]any{"threadId": threadID}))
}

// ListThreads pages through the workspace's threads. Absent cursor and
// limit are sent as null.
func (sv *Supervisor) ListThreads(ctx context.Context, workspaceID string, cursor *string, limit *uint32) (json.RawMessage, error) {
	return sv.call(ctx, workspaceID, protocol.MethodThreadList, fixed(map[string]any{"cursor": cursor, "limit": limit}))
}

func (sv *Supervisor) ArchiveThread(ctx context.Context, workspaceID, threadID string) (json.RawMessage, error) {
	return sv.call(ctx, workspaceID, protocol.MethodThreadArchive, fixed(map[string]any{"threadId": threadID}))
}

// UserMessage is one user turn.
type UserMessage struct {
	ThreadID   string  `json:"threadId"`
	Text       string  `json:"text"`
	Model      *string `json:"model"`
	Effort     *string `json:"effort"`
	AccessMode *string `json:"accessMode"`
}

// sandboxFor maps an access mode to the turn's sandbox and approval
// policies. Unknown modes get the workspace-write sandbox.
func sandboxFor(mode, path string) (sandbox map[string]any, approval string) {
	switch mode {
	case AccessFullAccess:
		return map[string]any{"type": "dangerFullAccess"}, "never"
	case AccessReadOnly:
		return map[string]any{"type": "readOnly"}, "on-request"
	default:
		return map[string]any{
			"type":          "workspaceWrite",
			"writableRoots": []string{path},
			"networkAccess": true,
		}, "on-request"
	}
}

// SendUserMessage starts a turn on a thread.
func (sv *Supervisor) SendUserMessage(ctx context.Context, workspaceID string, msg UserMessage) (json.RawMessage, error) {
	mode := AccessCurrent
	if msg.AccessMode != nil {
		mode = *msg.AccessMode
	}
	return sv.call(ctx, workspaceID, protocol.MethodTurnStart, func(path string) any {
		sandbox, approval := sandboxFor(mode, path)
		return map[string]any{
			"threadId":       msg.ThreadID,
			"input":          []map[string]string{{"type": "text", "text": msg.Text}},
			"cwd":            path,
			"approvalPolicy": approval,
			"sandboxPolicy":  sandbox,
			"model":          msg.Model,
			"effort":         msg.Effort,
		}
	})
}

func (sv *Supervisor) InterruptTurn(ctx context.Context, workspaceID, threadID, turnID string) (json.RawMessage, error) {
	return sv.call(ctx, workspaceID, protocol.MethodTurnInterrupt, fixed(map[string]any{"threadId": threadID, "turnId": turnID}))
}

// StartReview asks the agent to review target. delivery is omitted when nil.
func (sv *Supervisor) StartReview(ctx context.Context, workspaceID, threadID string, target json.RawMessage, delivery *string) (json.RawMessage, error) {
	params := map[string]any{"threadId": threadID, "target": target}
	if delivery != nil {
		params["delivery"] = *delivery
	}
	return sv.call(ctx, workspaceID, protocol.MethodReviewStart, fixed(params))
}

func (sv *Supervisor) ListModels(ctx context.Context, workspaceID string) (json.RawMessage, error) {
	return sv.call(ctx, workspaceID, protocol.MethodModelList, fixed(struct{}{}))
}

func (sv *Supervisor) AccountRateLimits(ctx context.Context, workspaceID string) (json.RawMessage, error) {
	return sv.call(ctx, workspaceID, protocol.MethodAccountRateLimits, fixed(nil))
}

func (sv *Supervisor) ListSkills(ctx context.Context, workspaceID string) (json.RawMessage, error) {
	return sv.call(ctx, workspaceID, protocol.MethodSkillsList, func(path string) any {
		return map[string]any{"cwd": path}
	})
}

// RespondToServerRequest answers a request the app-server sent, such as an
// approval prompt.
func (sv *Supervisor) RespondToServerRequest(workspaceID string, requestID uint64, result json.RawMessage) error {
	s, err := sv.connectedSession(workspaceID)
	if err != nil {
		return err
	}
	return s.Respond(requestID, result)
}

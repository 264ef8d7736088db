package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/zhubert/codexmonitor/manager"
	"github.com/zhubert/codexmonitor/workspace"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// errBadRequest marks client input errors.
type errBadRequest struct{ err error }

func (e errBadRequest) Error() string { return e.err.Error() }
func (e errBadRequest) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return errBadRequest{fmt.Errorf(format, args...)}
}

// statusFor maps supervisor errors to HTTP statuses.
func statusFor(err error) int {
	var bad errBadRequest
	switch {
	case errors.Is(err, manager.ErrWorkspaceNotFound),
		errors.Is(err, manager.ErrNotConnected),
		errors.Is(err, manager.ErrParentNotFound),
		errors.Is(err, manager.ErrWorktreeParent):
		return http.StatusNotFound
	case errors.As(err, &bad),
		errors.Is(err, manager.ErrBranchRequired),
		errors.Is(err, manager.ErrUseRemoveWorktree),
		errors.Is(err, manager.ErrNotWorktree),
		errors.Is(err, workspace.ErrNestedWorktree):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhubert/codexmonitor/workspace"
)

type addWorkspaceRequest struct {
	Path     string  `json:"path"`
	CodexBin *string `json:"codex_bin"`
}

type addWorktreeRequest struct {
	Branch string `json:"branch"`
}

// ListWorkspaces handles GET /workspaces
func (h *Handler) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sv.ListWorkspaces())
}

// GetWorkspace handles GET /workspaces/{id}
func (h *Handler) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	info, err := h.sv.Workspace(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// AddWorkspace handles POST /workspaces
func (h *Handler) AddWorkspace(w http.ResponseWriter, r *http.Request) {
	var req addWorkspaceRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	info, err := h.sv.AddWorkspace(r.Context(), req.Path, req.CodexBin)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// AddWorktree handles POST /workspaces/{id}/worktrees
func (h *Handler) AddWorktree(w http.ResponseWriter, r *http.Request) {
	var req addWorktreeRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	info, err := h.sv.AddWorktree(r.Context(), chi.URLParam(r, "id"), req.Branch)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// RemoveWorkspace handles DELETE /workspaces/{id}
func (h *Handler) RemoveWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := h.sv.RemoveWorkspace(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveWorktree handles DELETE /worktrees/{id}
func (h *Handler) RemoveWorktree(w http.ResponseWriter, r *http.Request) {
	if err := h.sv.RemoveWorktree(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Connect handles POST /workspaces/{id}/connect
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.sv.ConnectWorkspace(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	h.GetWorkspace(w, r)
}

// Disconnect handles POST /workspaces/{id}/disconnect
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.sv.DisconnectWorkspace(chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateSettings handles PUT /workspaces/{id}/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings workspace.Settings
	if err := decode(r, &settings); err != nil {
		writeErr(w, err)
		return
	}
	info, err := h.sv.UpdateWorkspaceSettings(chi.URLParam(r, "id"), settings)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

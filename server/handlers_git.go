package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

type branchRequest struct {
	Name string `json:"name"`
}

func (r *branchRequest) validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return badRequest("branch name is required")
	}
	return nil
}

// GitStatus handles GET /workspaces/{id}/git/status
func (h *Handler) GitStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.sv.GitStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GitDiffs handles GET /workspaces/{id}/git/diffs
func (h *Handler) GitDiffs(w http.ResponseWriter, r *http.Request) {
	diffs, err := h.sv.GitDiffs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diffs)
}

// GitLog handles GET /workspaces/{id}/git/log?limit=
func (h *Handler) GitLog(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	log, err := h.sv.GitLog(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

// GitRemote handles GET /workspaces/{id}/git/remote. The body is the URL
// or null.
func (h *Handler) GitRemote(w http.ResponseWriter, r *http.Request) {
	remote, err := h.sv.GitRemote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remote)
}

// ListBranches handles GET /workspaces/{id}/git/branches
func (h *Handler) ListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.sv.ListBranches(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"branches": branches})
}

// CreateBranch handles POST /workspaces/{id}/git/branches
func (h *Handler) CreateBranch(w http.ResponseWriter, r *http.Request) {
	var req branchRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.sv.CreateBranch(r.Context(), chi.URLParam(r, "id"), req.Name); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout handles POST /workspaces/{id}/git/checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req branchRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.sv.CheckoutBranch(r.Context(), chi.URLParam(r, "id"), req.Name); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFiles handles GET /workspaces/{id}/files
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.sv.ListFiles(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

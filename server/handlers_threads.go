package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zhubert/codexmonitor/manager"
)

type turnRequest struct {
	Text       string  `json:"text"`
	Model      *string `json:"model"`
	Effort     *string `json:"effort"`
	AccessMode *string `json:"accessMode"`
}

type reviewRequest struct {
	Target   json.RawMessage `json:"target"`
	Delivery *string         `json:"delivery"`
}

// writeReply relays an app-server reply as-is.
func writeReply(w http.ResponseWriter, reply json.RawMessage, err error) {
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// StartThread handles POST /workspaces/{id}/threads
func (h *Handler) StartThread(w http.ResponseWriter, r *http.Request) {
	reply, err := h.sv.StartThread(r.Context(), chi.URLParam(r, "id"))
	writeReply(w, reply, err)
}

// ListThreads handles GET /workspaces/{id}/threads?cursor=&limit=
func (h *Handler) ListThreads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var cursor *string
	if q.Has("cursor") {
		c := q.Get("cursor")
		cursor = &c
	}
	var limit *uint32
	if q.Has("limit") {
		n, err := strconv.ParseUint(q.Get("limit"), 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		l := uint32(n)
		limit = &l
	}
	reply, err := h.sv.ListThreads(r.Context(), chi.URLParam(r, "id"), cursor, limit)
	writeReply(w, reply, err)
}

// ResumeThread handles POST /workspaces/{id}/threads/{threadId}/resume
func (h *Handler) ResumeThread(w http.ResponseWriter, r *http.Request) {
	reply, err := h.sv.ResumeThread(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "threadId"))
	writeReply(w, reply, err)
}

// ArchiveThread handles POST /workspaces/{id}/threads/{threadId}/archive
func (h *Handler) ArchiveThread(w http.ResponseWriter, r *http.Request) {
	reply, err := h.sv.ArchiveThread(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "threadId"))
	writeReply(w, reply, err)
}

// SendMessage handles POST /workspaces/{id}/threads/{threadId}/turns
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	reply, err := h.sv.SendUserMessage(r.Context(), chi.URLParam(r, "id"), manager.UserMessage{
		ThreadID:   chi.URLParam(r, "threadId"),
		Text:       req.Text,
		Model:      req.Model,
		Effort:     req.Effort,
		AccessMode: req.AccessMode,
	})
	writeReply(w, reply, err)
}

// InterruptTurn handles POST /workspaces/{id}/threads/{threadId}/turns/{turnId}/interrupt
func (h *Handler) InterruptTurn(w http.ResponseWriter, r *http.Request) {
	reply, err := h.sv.InterruptTurn(r.Context(), chi.URLParam(r, "id"),
		chi.URLParam(r, "threadId"), chi.URLParam(r, "turnId"))
	writeReply(w, reply, err)
}

// StartReview handles POST /workspaces/{id}/threads/{threadId}/review
func (h *Handler) StartReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if len(req.Target) == 0 {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}
	reply, err := h.sv.StartReview(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "threadId"), req.Target, req.Delivery)
	writeReply(w, reply, err)
}

// ListModels handles GET /workspaces/{id}/models
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	reply, err := h.sv.ListModels(r.Context(), chi.URLParam(r, "id"))
	writeReply(w, reply, err)
}

// RateLimits handles GET /workspaces/{id}/rate-limits
func (h *Handler) RateLimits(w http.ResponseWriter, r *http.Request) {
	reply, err := h.sv.AccountRateLimits(r.Context(), chi.URLParam(r, "id"))
	writeReply(w, reply, err)
}

// ListSkills handles GET /workspaces/{id}/skills
func (h *Handler) ListSkills(w http.ResponseWriter, r *http.Request) {
	reply, err := h.sv.ListSkills(r.Context(), chi.URLParam(r, "id"))
	writeReply(w, reply, err)
}

// RespondToServerRequest handles POST /workspaces/{id}/server-requests/{requestId}.
// The body is the result sent back to the app-server.
func (h *Handler) RespondToServerRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := strconv.ParseUint(chi.URLParam(r, "requestId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	var result json.RawMessage
	if err := decode(r, &result); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.sv.RespondToServerRequest(chi.URLParam(r, "id"), requestID, result); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

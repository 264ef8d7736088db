// Package server exposes the supervisor over HTTP and streams app-server
// events to websocket clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhubert/codexmonitor/logger"
	"github.com/zhubert/codexmonitor/manager"
)

// Handler serves the JSON endpoints.
type Handler struct {
	sv *manager.Supervisor
}

// NewHandler wraps a supervisor.
func NewHandler(sv *manager.Supervisor) *Handler {
	return &Handler{sv: sv}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NewRouter creates the router with every route and middleware.
func NewRouter(sv *manager.Supervisor, hub *Hub, log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recovery(log))

	h := NewHandler(sv)

	r.Get("/health", h.Health)
	r.Handle("/events", hub)

	r.Route("/workspaces", func(r chi.Router) {
		r.Get("/", h.ListWorkspaces)
		r.Post("/", h.AddWorkspace)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetWorkspace)
			r.Delete("/", h.RemoveWorkspace)
			r.Post("/worktrees", h.AddWorktree)
			r.Post("/connect", h.Connect)
			r.Post("/disconnect", h.Disconnect)
			r.Put("/settings", h.UpdateSettings)

			r.Post("/threads", h.StartThread)
			r.Get("/threads", h.ListThreads)
			r.Post("/threads/{threadId}/resume", h.ResumeThread)
			r.Post("/threads/{threadId}/archive", h.ArchiveThread)
			r.Post("/threads/{threadId}/turns", h.SendMessage)
			r.Post("/threads/{threadId}/turns/{turnId}/interrupt", h.InterruptTurn)
			r.Post("/threads/{threadId}/review", h.StartReview)
			r.Get("/models", h.ListModels)
			r.Get("/rate-limits", h.RateLimits)
			r.Get("/skills", h.ListSkills)
			r.Post("/server-requests/{requestId}", h.RespondToServerRequest)

			r.Get("/git/status", h.GitStatus)
			r.Get("/git/diffs", h.GitDiffs)
			r.Get("/git/log", h.GitLog)
			r.Get("/git/remote", h.GitRemote)
			r.Get("/git/branches", h.ListBranches)
			r.Post("/git/branches", h.CreateBranch)
			r.Post("/git/checkout", h.Checkout)
			r.Get("/files", h.ListFiles)
		})
	})

	r.Delete("/worktrees/{id}", h.RemoveWorktree)

	return r
}

// Server is the HTTP listener.
type Server struct {
	httpServer *http.Server
	hub        *Hub
	log        *slog.Logger
}

// New builds a server for addr over the supervisor and hub.
func New(addr string, sv *manager.Supervisor, hub *Hub) *Server {
	log := logger.WithComponent("server")
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(sv, hub, log),
			ReadHeaderTimeout: 10 * time.Second,
		},
		hub: hub,
		log: log,
	}
}

// Serve listens until ctx is canceled, then shuts down gracefully. The bound
// address is reported on ready, when non-nil, once the listener is open.
func (s *Server) Serve(ctx context.Context, ready func(addr string)) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.log.Info("listening", "addr", ln.Addr().String())
	if ready != nil {
		ready(ln.Addr().String())
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("stopping server")
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

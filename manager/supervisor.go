// Package manager owns the workspace registry and the live app-server
// sessions. It is the single place where workspaces are added, connected,
// removed and routed to.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/zhubert/codexmonitor/appserver"
	"github.com/zhubert/codexmonitor/files"
	"github.com/zhubert/codexmonitor/git"
	"github.com/zhubert/codexmonitor/logger"
	"github.com/zhubert/codexmonitor/workspace"
)

// Errors returned to callers. The messages are shown to users verbatim.
var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrNotConnected      = errors.New("workspace not connected")
	ErrParentNotFound    = errors.New("parent workspace not found")
	ErrWorktreeParent    = errors.New("worktree parent not found")
	ErrBranchRequired    = errors.New("Branch name is required.")
	ErrUseRemoveWorktree = errors.New("Use remove_worktree for worktree agents.")
	ErrNotWorktree       = errors.New("Not a worktree workspace.")
)

// SessionSpawner starts an app-server for an entry and returns it Ready.
// *appserver.Spawner satisfies it.
type SessionSpawner interface {
	Spawn(ctx context.Context, entry workspace.Entry) (*appserver.Session, error)
}

var _ SessionSpawner = (*appserver.Spawner)(nil)

// Supervisor holds the workspace registry, its store and the live
// sessions. Workspace state and sessions are guarded by separate locks;
// neither is held while a process is spawned.
type Supervisor struct {
	store    *workspace.Store
	spawner  SessionSpawner
	git      *git.GitService
	maxFiles int
	log      *slog.Logger

	mu         sync.Mutex // guards workspaces and store writes
	workspaces map[string]workspace.Entry

	sessionsMu sync.RWMutex
	sessions   map[string]*appserver.Session
}

// New creates a Supervisor and loads the persisted workspaces. Entries that
// fail validation are logged and skipped.
func New(store *workspace.Store, spawner SessionSpawner, gitSvc *git.GitService) (*Supervisor, error) {
	sv := &Supervisor{
		store:      store,
		spawner:    spawner,
		git:        gitSvc,
		maxFiles:   files.DefaultMaxResults,
		log:        logger.WithComponent("supervisor"),
		workspaces: make(map[string]workspace.Entry),
		sessions:   make(map[string]*appserver.Session),
	}

	entries, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load workspaces: %w", err)
	}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			sv.log.Warn("skipping invalid workspace entry", "id", e.ID, "error", err)
			continue
		}
		sv.workspaces[e.ID] = e
	}
	sv.log.Info("loaded workspaces", "count", len(sv.workspaces), "store", store.Path())
	return sv, nil
}

// SetMaxFiles caps ListFiles results.
func (sv *Supervisor) SetMaxFiles(max int) {
	sv.maxFiles = max
}

// entry returns a copy of the registered entry.
func (sv *Supervisor) entry(id string) (workspace.Entry, bool) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	e, ok := sv.workspaces[id]
	return e, ok
}

// persistLocked rewrites the store from the registry. Caller holds mu.
func (sv *Supervisor) persistLocked() error {
	entries := slices.Collect(maps.Values(sv.workspaces))
	sortEntries(entries)
	return sv.store.Save(entries)
}

func sortEntries(entries []workspace.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].ID < entries[j].ID
	})
}

// session returns the live session for id, or nil.
func (sv *Supervisor) session(id string) *appserver.Session {
	sv.sessionsMu.RLock()
	defer sv.sessionsMu.RUnlock()
	return sv.sessions[id]
}

func (sv *Supervisor) connectedSession(id string) (*appserver.Session, error) {
	s := sv.session(id)
	if s == nil {
		return nil, ErrNotConnected
	}
	return s, nil
}

// registerSession makes s the session for its workspace, killing any
// session it replaces, and arranges for it to be dropped when it ends.
func (sv *Supervisor) registerSession(s *appserver.Session) {
	id := s.WorkspaceID()

	sv.sessionsMu.Lock()
	old := sv.sessions[id]
	sv.sessions[id] = s
	sv.sessionsMu.Unlock()

	if old != nil && old != s {
		sv.log.Info("replacing existing session", "workspaceID", id)
		old.Kill()
	}
	go sv.forgetWhenDone(s)
}

// forgetWhenDone removes s from the registry once it terminates, unless a
// newer session has taken its place.
func (sv *Supervisor) forgetWhenDone(s *appserver.Session) {
	<-s.Done()
	sv.sessionsMu.Lock()
	defer sv.sessionsMu.Unlock()
	if sv.sessions[s.WorkspaceID()] == s {
		delete(sv.sessions, s.WorkspaceID())
	}
}

// killSession unregisters and kills the session for id, if any.
func (sv *Supervisor) killSession(id string) bool {
	sv.sessionsMu.Lock()
	s, ok := sv.sessions[id]
	delete(sv.sessions, id)
	sv.sessionsMu.Unlock()

	if ok {
		s.Kill()
	}
	return ok
}

func (sv *Supervisor) info(e workspace.Entry) workspace.Info {
	return e.WithConnected(sv.session(e.ID) != nil)
}

// Workspace returns one workspace with its connection state.
func (sv *Supervisor) Workspace(id string) (workspace.Info, error) {
	e, ok := sv.entry(id)
	if !ok {
		return workspace.Info{}, ErrWorkspaceNotFound
	}
	return sv.info(e), nil
}

// ListWorkspaces returns every workspace sorted by name.
func (sv *Supervisor) ListWorkspaces() []workspace.Info {
	sv.mu.Lock()
	entries := slices.Collect(maps.Values(sv.workspaces))
	sv.mu.Unlock()

	sortEntries(entries)
	infos := make([]workspace.Info, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, sv.info(e))
	}
	return infos
}

// ConnectWorkspace spawns a session for a persisted workspace. A session
// already running for it is replaced.
func (sv *Supervisor) ConnectWorkspace(ctx context.Context, id string) error {
	e, ok := sv.entry(id)
	if !ok {
		return ErrWorkspaceNotFound
	}
	s, err := sv.spawner.Spawn(ctx, e)
	if err != nil {
		return err
	}
	sv.registerSession(s)
	return nil
}

// DisconnectWorkspace kills the workspace's session.
func (sv *Supervisor) DisconnectWorkspace(id string) error {
	if _, ok := sv.entry(id); !ok {
		return ErrWorkspaceNotFound
	}
	if !sv.killSession(id) {
		return ErrNotConnected
	}
	return nil
}

// UpdateWorkspaceSettings replaces a workspace's settings and persists.
func (sv *Supervisor) UpdateWorkspaceSettings(id string, settings workspace.Settings) (workspace.Info, error) {
	sv.mu.Lock()
	e, ok := sv.workspaces[id]
	if !ok {
		sv.mu.Unlock()
		return workspace.Info{}, ErrWorkspaceNotFound
	}
	e.Settings = settings
	sv.workspaces[id] = e
	err := sv.persistLocked()
	sv.mu.Unlock()

	if err != nil {
		return workspace.Info{}, err
	}
	return sv.info(e), nil
}

// Shutdown kills every session.
func (sv *Supervisor) Shutdown() {
	sv.sessionsMu.Lock()
	sessions := sv.sessions
	sv.sessions = make(map[string]*appserver.Session)
	sv.sessionsMu.Unlock()

	sv.log.Info("shutting down sessions", "count", len(sessions))
	for id, s := range sessions {
		logger.WithWorkspace(id).Debug("killing session")
		s.Kill()
	}
	for _, s := range sessions {
		<-s.Exited()
	}
	sv.log.Info("shutdown complete")
}

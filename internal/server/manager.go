package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cwbudde/swarmviz/internal/render"
	"github.com/cwbudde/swarmviz/internal/session"
	"github.com/cwbudde/swarmviz/internal/store"
	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// ErrAlreadyRunning is returned when an auto-run is requested twice.
var ErrAlreadyRunning = errors.New("session already running")

// Entry is one managed session together with the scene it draws on.
type Entry struct {
	ID      string
	Created time.Time
	Seed    uint64
	Session *session.Session
	Scene   *render.Scene

	running  bool
	runToken uint64
	cancel   context.CancelFunc
	trace    *store.TraceWriter
}

// Running reports whether an auto-run is stepping this session.
func (e *Entry) Running() bool { return e.running }

// stop cancels a pending auto-run, if any.
func (e *Entry) stop() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.running = false
}

// close stops the session and releases its trace file.
func (e *Entry) close() {
	e.stop()
	if e.trace != nil {
		if err := e.trace.Close(); err != nil {
			slog.Warn("Failed to close trace", "session_id", e.ID, "error", err)
		}
		e.trace = nil
	}
}

// SessionManager owns every session and serializes access to each of them.
type SessionManager struct {
	mu          sync.RWMutex
	sessions    map[string]*Entry
	broadcaster *EventBroadcaster
}

// NewSessionManager creates an empty SessionManager
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions:    make(map[string]*Entry),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateSession creates a session drawing on a fresh scene.
func (sm *SessionManager) CreateSession(seed uint64, opts ...session.Option) *Entry {
	scene := render.NewScene()
	entry := &Entry{
		ID:      uuid.New().String(),
		Created: time.Now(),
		Seed:    seed,
		Scene:   scene,
		Session: session.New(scene, opts...),
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[entry.ID] = entry
	return entry
}

// GetSession retrieves a session by ID
func (sm *SessionManager) GetSession(id string) (*Entry, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	entry, exists := sm.sessions[id]
	return entry, exists
}

// ListSessions returns all sessions, oldest first.
func (sm *SessionManager) ListSessions() []*Entry {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	entries := make([]*Entry, 0, len(sm.sessions))
	for _, entry := range sm.sessions {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Created.Before(entries[j].Created)
	})
	return entries
}

// UpdateSession runs fn with exclusive access to the session.
func (sm *SessionManager) UpdateSession(id string, fn func(*Entry) error) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	entry, exists := sm.sessions[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return fn(entry)
}

// ViewSession runs fn with shared access to the session. fn must not mutate it.
func (sm *SessionManager) ViewSession(id string, fn func(*Entry) error) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	entry, exists := sm.sessions[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return fn(entry)
}

// DeleteSession stops and removes a session.
func (sm *SessionManager) DeleteSession(id string) error {
	sm.mu.Lock()
	entry, exists := sm.sessions[id]
	if exists {
		entry.close()
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sm.broadcaster.CleanupSession(id)
	return nil
}

// GetRunningSessions returns all sessions with an active auto-run
func (sm *SessionManager) GetRunningSessions() []*Entry {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	running := make([]*Entry, 0)
	for _, entry := range sm.sessions {
		if entry.running {
			running = append(running, entry)
		}
	}
	return running
}

// CloseAll cancels every auto-run and closes every trace.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, entry := range sm.sessions {
		entry.close()
	}
}

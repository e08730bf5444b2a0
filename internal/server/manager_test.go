package server

import (
	"errors"
	"testing"
	"time"

	"github.com/cwbudde/swarmviz/internal/opt"
	"github.com/cwbudde/swarmviz/internal/session"
)

func TestSessionManager_CreateAndGet(t *testing.T) {
	sm := NewSessionManager()

	entry := sm.CreateSession(0)
	if entry.ID == "" {
		t.Fatal("Session ID should not be empty")
	}
	if entry.Scene == nil || entry.Session == nil {
		t.Fatal("Session and scene should be set")
	}
	if !entry.Scene.Snapshot().GridVisible {
		t.Error("New sessions should show the grid")
	}

	got, ok := sm.GetSession(entry.ID)
	if !ok || got != entry {
		t.Error("GetSession should return the created session")
	}

	if _, ok := sm.GetSession("missing"); ok {
		t.Error("GetSession should fail for unknown ID")
	}
}

func TestSessionManager_ListSessionsOrdered(t *testing.T) {
	sm := NewSessionManager()

	first := sm.CreateSession(0)
	time.Sleep(time.Millisecond)
	second := sm.CreateSession(0)

	list := sm.ListSessions()
	if len(list) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(list))
	}
	if list[0].ID != first.ID || list[1].ID != second.ID {
		t.Error("Sessions should be listed oldest first")
	}
}

func TestSessionManager_UpdateSession(t *testing.T) {
	sm := NewSessionManager()
	entry := sm.CreateSession(0)

	err := sm.UpdateSession(entry.ID, func(e *Entry) error {
		e.Session.SetExpression("x^2")
		return e.Session.SetAlgorithm(opt.AlgorithmSwarm)
	})
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if entry.Session.Algorithm() != opt.AlgorithmSwarm {
		t.Errorf("Expected algorithm pso, got %s", entry.Session.Algorithm())
	}

	err = sm.UpdateSession(entry.ID, func(e *Entry) error {
		return e.Session.SetAlgorithm("annealing")
	})
	if !errors.Is(err, session.ErrUnknownAlgorithm) {
		t.Errorf("Expected ErrUnknownAlgorithm, got %v", err)
	}

	err = sm.UpdateSession("missing", func(e *Entry) error { return nil })
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionManager_DeleteSession(t *testing.T) {
	sm := NewSessionManager()
	entry := sm.CreateSession(0)

	ch := sm.broadcaster.Subscribe(entry.ID)

	if err := sm.DeleteSession(entry.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if _, ok := sm.GetSession(entry.ID); ok {
		t.Error("Session should be gone")
	}
	if _, open := <-ch; open {
		t.Error("Subscriber channel should be closed")
	}

	if err := sm.DeleteSession(entry.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionManager_GetRunningSessions(t *testing.T) {
	sm := NewSessionManager()
	a := sm.CreateSession(0)
	sm.CreateSession(0)

	sm.UpdateSession(a.ID, func(e *Entry) error {
		e.running = true
		return nil
	})

	running := sm.GetRunningSessions()
	if len(running) != 1 || running[0].ID != a.ID {
		t.Errorf("Expected only %s running, got %d sessions", a.ID, len(running))
	}

	sm.CloseAll()
	if len(sm.GetRunningSessions()) != 0 {
		t.Error("CloseAll should stop every run")
	}
}

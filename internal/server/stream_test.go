package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/swarmviz/internal/opt"
)

func TestEventBroadcaster(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("s1")
	defer eb.Unsubscribe("s1", ch)

	eb.Broadcast(StepEvent{
		SessionID:  "s1",
		Generation: 10,
		Best:       &opt.Point{Position: []float64{0.5}, Fitness: 0.25},
		Timestamp:  time.Now(),
	})

	select {
	case received := <-ch:
		if received.SessionID != "s1" {
			t.Errorf("Expected session s1, got %s", received.SessionID)
		}
		if received.Generation != 10 {
			t.Errorf("Expected generation 10, got %d", received.Generation)
		}
		if received.Best == nil || received.Best.Fitness != 0.25 {
			t.Errorf("Unexpected best: %+v", received.Best)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for event")
	}
}

func TestEventBroadcaster_ReplaysLastEvent(t *testing.T) {
	eb := NewEventBroadcaster()
	eb.Broadcast(StepEvent{SessionID: "s1", Generation: 3})

	ch := eb.Subscribe("s1")
	defer eb.Unsubscribe("s1", ch)

	select {
	case received := <-ch:
		if received.Generation != 3 {
			t.Errorf("Expected replayed generation 3, got %d", received.Generation)
		}
	default:
		t.Error("New subscriber should receive the last event")
	}
}

func TestEventBroadcaster_OtherSessionsIsolated(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("s1")
	defer eb.Unsubscribe("s1", ch)

	eb.Broadcast(StepEvent{SessionID: "s2", Generation: 1})

	select {
	case received := <-ch:
		t.Errorf("Unexpected event for %s", received.SessionID)
	default:
	}
}

func TestEventBroadcaster_FullChannelDoesNotBlock(t *testing.T) {
	eb := NewEventBroadcaster()
	ch := eb.Subscribe("s1")
	defer eb.Unsubscribe("s1", ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			eb.Broadcast(StepEvent{SessionID: "s1", Generation: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a slow subscriber")
	}
}

func TestServer_SessionStream_SSE(t *testing.T) {
	s := NewServer(":8080", nil)
	entry := s.sessions.CreateSession(1)
	s.sessions.UpdateSession(entry.ID, func(e *Entry) error {
		e.Session.SetExpression("x^2")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+entry.ID+"/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.handleSessionStream(w, req, entry.ID)
		close(done)
	}()

	// Wait for the subscription before stepping.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.sessions.broadcaster.mu.RLock()
		n := len(s.sessions.broadcaster.clients[entry.ID])
		s.sessions.broadcaster.mu.RUnlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	step := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+entry.ID+"/step", nil)
	s.handleStep(httptest.NewRecorder(), step, entry.ID)
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stream handler did not return after client disconnect")
	}

	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Error("Expected text/event-stream content type")
	}
	body := w.Body.String()
	if strings.Count(body, "data: {") < 2 {
		t.Errorf("Expected initial and step events, got %q", body)
	}
	if !strings.Contains(body, `"generation":1`) {
		t.Errorf("Expected a generation 1 event, got %q", body)
	}
}

func TestServer_SessionStream_NotFound(t *testing.T) {
	s := NewServer(":8080", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/nonexistent/stream", nil)
	w := httptest.NewRecorder()

	s.handleSessionStream(w, req, "nonexistent")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

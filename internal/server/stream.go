package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwbudde/swarmviz/internal/opt"
	"github.com/cwbudde/swarmviz/internal/session"
)

// StepEvent reports the state of a session after a generation or an edit.
type StepEvent struct {
	SessionID  string     `json:"sessionId"`
	Generation int        `json:"generation"`
	Best       *opt.Point `json:"best,omitempty"`
	Improved   bool       `json:"improved"`
	Stalled    bool       `json:"stalled"`
	Population int        `json:"population"`
	Running    bool       `json:"running"`
	Timestamp  time.Time  `json:"timestamp"`
}

// EventBroadcaster fans step events out to SSE clients, per session
type EventBroadcaster struct {
	mu        sync.RWMutex
	clients   map[string]map[chan StepEvent]bool
	lastEvent map[string]StepEvent
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients:   make(map[string]map[chan StepEvent]bool),
		lastEvent: make(map[string]StepEvent),
	}
}

// Subscribe adds a client to receive events for a session
func (eb *EventBroadcaster) Subscribe(sessionID string) chan StepEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan StepEvent, 10)

	if eb.clients[sessionID] == nil {
		eb.clients[sessionID] = make(map[chan StepEvent]bool)
	}
	eb.clients[sessionID][ch] = true

	// Send last event if available (for reconnecting clients)
	if lastEvent, ok := eb.lastEvent[sessionID]; ok {
		select {
		case ch <- lastEvent:
		default:
			// Channel full, skip
		}
	}

	slog.Debug("SSE client subscribed", "session_id", sessionID, "total_clients", len(eb.clients[sessionID]))
	return ch
}

// Unsubscribe removes a client from receiving events
func (eb *EventBroadcaster) Unsubscribe(sessionID string, ch chan StepEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if clients, ok := eb.clients[sessionID]; ok {
		delete(clients, ch)
		close(ch)

		if len(clients) == 0 {
			delete(eb.clients, sessionID)
		}
	}

	slog.Debug("SSE client unsubscribed", "session_id", sessionID)
}

// Broadcast sends an event to all subscribed clients for a session
func (eb *EventBroadcaster) Broadcast(event StepEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	// Store last event
	eb.lastEvent[event.SessionID] = event

	clients, ok := eb.clients[event.SessionID]
	if !ok || len(clients) == 0 {
		return
	}

	slog.Debug("Broadcasting event", "session_id", event.SessionID, "clients", len(clients), "generation", event.Generation)

	for ch := range clients {
		select {
		case ch <- event:
			// Event sent successfully
		default:
			// Channel full, skip this client (prevents blocking)
			slog.Warn("SSE channel full, skipping event", "session_id", event.SessionID)
		}
	}
}

// CleanupSession removes all clients and cached events for a session
func (eb *EventBroadcaster) CleanupSession(sessionID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if clients, ok := eb.clients[sessionID]; ok {
		for ch := range clients {
			close(ch)
		}
		delete(eb.clients, sessionID)
	}

	delete(eb.lastEvent, sessionID)
	slog.Debug("Cleaned up SSE resources", "session_id", sessionID)
}

// handleSessionStream streams step events for one session as SSE.
func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request, sessionID string) {
	var initial StepEvent
	err := s.sessions.ViewSession(sessionID, func(e *Entry) error {
		initial = currentEvent(e)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Get flusher
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe to events
	eventChan := s.sessions.broadcaster.Subscribe(sessionID)
	defer s.sessions.broadcaster.Unsubscribe(sessionID, eventChan)

	if err := writeSSEEvent(w, initial); err != nil {
		slog.Error("Failed to write initial SSE event", "error", err)
		return
	}
	flusher.Flush()

	// Set up ping ticker to keep connection alive
	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	// Listen for events and client disconnect
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			// Client disconnected
			slog.Debug("SSE client disconnected", "session_id", sessionID)
			return

		case event, ok := <-eventChan:
			if !ok {
				// Channel closed
				return
			}

			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()

		case <-pingTicker.C:
			// Send ping to keep connection alive
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes an event in SSE format
func writeSSEEvent(w http.ResponseWriter, event StepEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// SSE format: "data: {json}\n\n"
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// currentEvent describes the session without stepping it.
func currentEvent(e *Entry) StepEvent {
	event := StepEvent{
		SessionID:  e.ID,
		Generation: e.Session.Generation(),
		Population: len(e.Session.Positions()),
		Running:    e.running,
		Timestamp:  time.Now(),
	}
	if best, ok := e.Session.Best(); ok {
		event.Best = &best
	}
	return event
}

// stepEvent converts a step result into an event.
func stepEvent(e *Entry, res session.StepResult) StepEvent {
	return StepEvent{
		SessionID:  e.ID,
		Generation: res.Generation,
		Best:       res.Best,
		Improved:   res.Improved,
		Stalled:    res.Stalled,
		Population: res.Population,
		Running:    e.running,
		Timestamp:  time.Now(),
	}
}

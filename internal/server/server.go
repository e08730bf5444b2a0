package server

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/swarmviz/internal/opt"
	"github.com/cwbudde/swarmviz/internal/params"
	"github.com/cwbudde/swarmviz/internal/render"
	"github.com/cwbudde/swarmviz/internal/sampling"
	"github.com/cwbudde/swarmviz/internal/session"
	"github.com/cwbudde/swarmviz/internal/store"
	"gonum.org/v1/plot/vg"
)

const (
	maxStepsPerRequest = 1000
	maxPlotInches      = 20
	maxTracePage       = 10000

	maxReferenceIters      = 5000
	maxReferencePopulation = 500
)

// Server represents the HTTP server
type Server struct {
	sessions *SessionManager
	store    *store.FSStore
	addr     string
	server   *http.Server
}

// NewServer creates a new HTTP server. A nil runStore disables traces and
// saved runs.
func NewServer(addr string, runStore *store.FSStore) *Server {
	return &Server{
		sessions: NewSessionManager(),
		store:    runStore,
		addr:     addr,
	}
}

// Sessions exposes the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Handler returns the routed and wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/v1/sessions", s.handleSessions)
	mux.HandleFunc("/api/v1/sessions/", s.handleSessionsWithID)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	slog.Info("Starting HTTP server", "addr", s.addr, "persistence", s.store != nil)
	return s.server.ListenAndServe()
}

// Shutdown stops every auto-run and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.sessions.CloseAll()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// SessionView is the JSON form of a session.
type SessionView struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	Running bool      `json:"running"`
	session.Status
}

func viewOf(e *Entry) SessionView {
	return SessionView{
		ID:      e.ID,
		Created: e.Created,
		Running: e.running,
		Status:  e.Session.Status(),
	}
}

// CreateRequest is the body of POST /api/v1/sessions. Every field is optional.
type CreateRequest struct {
	Expression string            `json:"expression"`
	Algorithm  string            `json:"algorithm"`
	Params     map[string]string `json:"params"`
	Seed       *uint64           `json:"seed"`
}

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	entries := s.sessions.ListSessions()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":    "swarmviz",
		"algorithms": opt.Algorithms(),
		"sessions":   len(entries),
		"running":    len(s.sessions.GetRunningSessions()),
	})
}

// handleSessions handles /api/v1/sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateSession(w, r)
	case http.MethodGet:
		s.handleListSessions(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSessionsWithID handles /api/v1/sessions/:id/*
func (s *Server) handleSessionsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	id := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	type route struct {
		method  string
		handler func(http.ResponseWriter, *http.Request, string)
	}
	routes := map[string]route{
		"":           {http.MethodGet, s.handleGetSession},
		"status":     {http.MethodGet, s.handleGetSession},
		"expression": {http.MethodPost, s.handleSetExpression},
		"params":     {http.MethodPost, s.handleSetParams},
		"algorithm":  {http.MethodPost, s.handleSetAlgorithm},
		"step":       {http.MethodPost, s.handleStep},
		"reset":      {http.MethodPost, s.handleReset},
		"run":        {http.MethodPost, s.handleRun},
		"stop":       {http.MethodPost, s.handleStop},
		"save":       {http.MethodPost, s.handleSave},
		"points":     {http.MethodGet, s.handleGetPoints},
		"plot.png":   {http.MethodGet, s.handleGetPlot},
		"stream":     {http.MethodGet, s.handleSessionStream},
		"trace":      {http.MethodGet, s.handleGetTrace},
		"reference":  {http.MethodGet, s.handleGetReference},
	}

	if action == "" && r.Method == http.MethodDelete {
		s.handleDeleteSession(w, r, id)
		return
	}

	rt, ok := routes[action]
	if !ok {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != rt.method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rt.handler(w, r, id)
}

// handleCreateSession handles POST /api/v1/sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var opts []session.Option
	var seed uint64
	if req.Seed != nil {
		seed = *req.Seed
		opts = append(opts, session.WithSampler(sampling.New(seed)))
	}

	entry := s.sessions.CreateSession(seed, opts...)

	var view SessionView
	err := s.sessions.UpdateSession(entry.ID, func(e *Entry) error {
		if req.Expression != "" || req.Algorithm != "" || len(req.Params) > 0 {
			if err := e.Session.Configure(req.Expression, req.Algorithm, req.Params); err != nil {
				return err
			}
		}
		view = viewOf(e)
		return nil
	})
	if err != nil {
		s.sessions.DeleteSession(entry.ID)
		writeError(w, err)
		return
	}

	slog.Info("Session created", "session_id", entry.ID, "algorithm", view.Algorithm, "expression", view.Expression)
	writeJSON(w, http.StatusCreated, view)
}

// handleListSessions handles GET /api/v1/sessions
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	entries := s.sessions.ListSessions()

	views := make([]SessionView, 0, len(entries))
	for _, entry := range entries {
		s.sessions.ViewSession(entry.ID, func(e *Entry) error {
			views = append(views, viewOf(e))
			return nil
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// handleGetSession handles GET /api/v1/sessions/:id
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, id string) {
	var view SessionView
	err := s.sessions.ViewSession(id, func(e *Entry) error {
		view = viewOf(e)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleDeleteSession handles DELETE /api/v1/sessions/:id
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.sessions.DeleteSession(id); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("Session deleted", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// mutate stops any auto-run, applies fn and answers with the session view.
func (s *Server) mutate(w http.ResponseWriter, id string, fn func(*Entry) error) {
	var view SessionView
	var event StepEvent
	err := s.sessions.UpdateSession(id, func(e *Entry) error {
		e.stop()
		if err := fn(e); err != nil {
			return err
		}
		view = viewOf(e)
		event = currentEvent(e)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	s.sessions.broadcaster.Broadcast(event)
	writeJSON(w, http.StatusOK, view)
}

// handleSetExpression handles POST /api/v1/sessions/:id/expression
func (s *Server) handleSetExpression(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Expression string `json:"expression"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	s.mutate(w, id, func(e *Entry) error {
		e.Session.SetExpression(req.Expression)
		return nil
	})
}

// handleSetParams handles POST /api/v1/sessions/:id/params with a
// {"name": "raw"} object. Unknown names reject the whole request.
func (s *Server) handleSetParams(w http.ResponseWriter, r *http.Request, id string) {
	var req map[string]string
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req) == 0 {
		writeError(w, fmt.Errorf("%w: no fields given", errBadRequest))
		return
	}

	s.mutate(w, id, func(e *Entry) error {
		raw := e.Session.RawParams()
		for name := range req {
			if _, ok := raw[name]; !ok {
				return fmt.Errorf("%w: %s", params.ErrUnknownField, name)
			}
		}
		for name, value := range req {
			if _, err := e.Session.SetHyperparameter(name, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// handleSetAlgorithm handles POST /api/v1/sessions/:id/algorithm
func (s *Server) handleSetAlgorithm(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Algorithm string `json:"algorithm"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	s.mutate(w, id, func(e *Entry) error {
		return e.Session.SetAlgorithm(req.Algorithm)
	})
}

// handleReset handles POST /api/v1/sessions/:id/reset
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, id string) {
	s.mutate(w, id, func(e *Entry) error {
		e.Session.Reset()
		return nil
	})
}

// handleStep handles POST /api/v1/sessions/:id/step?count=N
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request, id string) {
	count, err := queryInt(r, "count", 1)
	if err != nil {
		writeError(w, err)
		return
	}
	if count < 1 || count > maxStepsPerRequest {
		writeError(w, fmt.Errorf("%w: count must be in [1, %d]", errBadRequest, maxStepsPerRequest))
		return
	}

	var events []StepEvent
	err = s.sessions.UpdateSession(id, func(e *Entry) error {
		if e.running {
			return ErrAlreadyRunning
		}
		for i := 0; i < count; i++ {
			var event StepEvent
			if err := s.step(e, &event); err != nil {
				return err
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	for _, event := range events {
		s.sessions.broadcaster.Broadcast(event)
	}
	writeJSON(w, http.StatusOK, events[len(events)-1])
}

// handleRun handles POST /api/v1/sessions/:id/run
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request, id string) {
	var cfg RunConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, err)
		return
	}
	if err := s.startRun(id, cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"id": id, "running": true})
}

// handleStop handles POST /api/v1/sessions/:id/stop
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request, id string) {
	s.mutate(w, id, func(e *Entry) error { return nil })
}

// handleSave handles POST /api/v1/sessions/:id/save
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request, id string) {
	if s.store == nil {
		http.Error(w, "Persistence disabled", http.StatusNotImplemented)
		return
	}

	var info store.RunInfo
	err := s.sessions.UpdateSession(id, func(e *Entry) error {
		run, err := s.saveRun(e)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("%w: nothing to save before the first step", session.ErrParametersInvalid)
		}
		info = run.ToInfo()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleGetPoints handles GET /api/v1/sessions/:id/points
func (s *Server) handleGetPoints(w http.ResponseWriter, r *http.Request, id string) {
	var snap render.Snapshot
	err := s.sessions.ViewSession(id, func(e *Entry) error {
		snap = e.Scene.Snapshot()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleGetPlot handles GET /api/v1/sessions/:id/plot.png?width=6&height=4 (inches)
func (s *Server) handleGetPlot(w http.ResponseWriter, r *http.Request, id string) {
	width, err := queryInt(r, "width", 6)
	if err != nil {
		writeError(w, err)
		return
	}
	height, err := queryInt(r, "height", 4)
	if err != nil {
		writeError(w, err)
		return
	}
	if width < 1 || height < 1 || width > maxPlotInches || height > maxPlotInches {
		writeError(w, fmt.Errorf("%w: width and height must be in [1, %d]", errBadRequest, maxPlotInches))
		return
	}

	var buf bytes.Buffer
	err = s.sessions.ViewSession(id, func(e *Entry) error {
		opts := render.DefaultPlotOptions()
		opts.Width = vg.Length(width) * vg.Inch
		opts.Height = vg.Length(height) * vg.Inch
		opts.Lower, opts.Upper = e.Session.Bounds()
		return e.Scene.WritePNG(&buf, opts)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("Failed to write PNG", "error", err)
	}
}

// handleGetTrace handles GET /api/v1/sessions/:id/trace?since=&limit=
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request, id string) {
	if s.store == nil {
		http.Error(w, "Persistence disabled", http.StatusNotImplemented)
		return
	}

	since, err := queryInt(r, "since", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", maxTracePage)
	if err != nil {
		writeError(w, err)
		return
	}
	if since < 0 || limit < 1 || limit > maxTracePage {
		writeError(w, fmt.Errorf("%w: since must be >= 0 and limit in 1..%d", errBadRequest, maxTracePage))
		return
	}

	var entries []store.TraceEntry
	err = s.sessions.ViewSession(id, func(e *Entry) error {
		var err error
		entries, err = store.ReadTrace(s.store.BaseDir(), e.ID, store.TraceQuery{Since: since, Limit: limit})
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleGetReference handles GET /api/v1/sessions/:id/reference?iters=&pop=&seed=
func (s *Server) handleGetReference(w http.ResponseWriter, r *http.Request, id string) {
	iters, err := queryInt(r, "iters", 500)
	if err != nil {
		writeError(w, err)
		return
	}
	pop, err := queryInt(r, "pop", 30)
	if err != nil {
		writeError(w, err)
		return
	}
	seed, err := queryInt(r, "seed", 1)
	if err != nil {
		writeError(w, err)
		return
	}

	if iters > maxReferenceIters || pop > maxReferencePopulation {
		writeError(w, fmt.Errorf("%w: iters must be at most %d and pop at most %d", errBadRequest, maxReferenceIters, maxReferencePopulation))
		return
	}

	// The objective is immutable, so the solver runs without holding the session.
	var problem opt.Problem
	err = s.sessions.ViewSession(id, func(e *Entry) error {
		if !e.Session.ParametersValid() {
			return session.ErrParametersInvalid
		}
		problem = e.Session.Problem()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	best, err := opt.NewReference(iters, pop, int64(seed)).Run(problem)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, best)
}

// handleRuns handles GET /api/v1/runs
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, []store.RunInfo{})
		return
	}

	infos, err := s.store.ListRuns()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cwbudde/swarmviz/internal/render"
	"github.com/cwbudde/swarmviz/internal/session"
	"github.com/cwbudde/swarmviz/internal/store"
)

// RunConfig controls a background auto-run.
type RunConfig struct {
	// Generations to step; 0 runs until stopped or stalled.
	Generations int  `json:"generations"`
	IntervalMs  int  `json:"intervalMs"`
	StopOnStall bool `json:"stopOnStall"`
}

// startRun marks the session as running and steps it in the background.
func (s *Server) startRun(id string, cfg RunConfig) error {
	if cfg.Generations < 0 || cfg.IntervalMs < 0 {
		return fmt.Errorf("%w: generations and intervalMs must be non-negative", errBadRequest)
	}
	if cfg.Generations == 0 && !cfg.StopOnStall {
		return fmt.Errorf("%w: an unbounded run needs stopOnStall", errBadRequest)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var token uint64
	err := s.sessions.UpdateSession(id, func(e *Entry) error {
		if e.running {
			return ErrAlreadyRunning
		}
		if !e.Session.ParametersValid() {
			return session.ErrParametersInvalid
		}
		e.runToken++
		token = e.runToken
		e.running = true
		e.cancel = cancel
		return nil
	})
	if err != nil {
		cancel()
		return err
	}

	go s.runSession(ctx, id, token, cfg)
	return nil
}

// runSession steps a session until the run is complete, stalled, cancelled
// or fails.
func (s *Server) runSession(ctx context.Context, id string, token uint64, cfg RunConfig) {
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	start := time.Now()
	steps := 0

	slog.Info("Starting auto-run", "session_id", id, "generations", cfg.Generations, "interval", interval)

	reason := "completed"
	for cfg.Generations == 0 || steps < cfg.Generations {
		if ctx.Err() != nil {
			reason = "cancelled"
			break
		}

		var event StepEvent
		err := s.sessions.UpdateSession(id, func(e *Entry) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return s.step(e, &event)
		})
		if err != nil {
			if ctx.Err() != nil {
				reason = "cancelled"
			} else {
				reason = "failed"
				slog.Error("Auto-run step failed", "session_id", id, "error", err)
			}
			break
		}
		steps++
		s.sessions.broadcaster.Broadcast(event)

		if cfg.StopOnStall && event.Stalled {
			reason = "stalled"
			break
		}

		if interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
	}

	s.finishRun(id, token)

	slog.Info("Auto-run finished",
		"session_id", id,
		"reason", reason,
		"steps", steps,
		"elapsed", time.Since(start),
	)
}

// step advances the session one generation, traces it and fills event.
// Callers hold the session exclusively.
func (s *Server) step(e *Entry, event *StepEvent) error {
	res, err := e.Session.Step()
	if err != nil {
		return err
	}
	*event = stepEvent(e, res)

	if err := s.traceStep(e, res); err != nil {
		slog.Warn("Failed to write trace entry", "session_id", e.ID, "error", err)
	}
	return nil
}

// finishRun clears the running flag unless a newer run has taken over,
// then saves the run record.
func (s *Server) finishRun(id string, token uint64) {
	var final StepEvent
	err := s.sessions.UpdateSession(id, func(e *Entry) error {
		if e.runToken != token {
			return nil
		}
		e.running = false
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		final = currentEvent(e)

		if _, err := s.saveRun(e); err != nil {
			slog.Error("Failed to save run", "session_id", id, "error", err)
		}
		return nil
	})
	if err != nil {
		// Deleted while running.
		return
	}
	if final.SessionID != "" {
		s.sessions.broadcaster.Broadcast(final)
	}
}

// traceStep appends a trace entry for the session when persistence is on.
// The trace follows the current population: the first generation after a
// reset starts it over.
func (s *Server) traceStep(e *Entry, res session.StepResult) error {
	if s.store == nil {
		return nil
	}
	if e.trace == nil {
		tw, err := store.OpenTrace(s.store.BaseDir(), e.ID, store.TraceFresh)
		if err != nil {
			return err
		}
		e.trace = tw
	} else if res.Generation == 1 && e.trace.LastGeneration() > 0 {
		if err := e.trace.Restart(); err != nil {
			return err
		}
	}

	entry := store.TraceEntry{
		Generation: res.Generation,
		Defined:    e.Session.Status().Defined,
		Improved:   res.Improved,
		Timestamp:  time.Now(),
	}
	if res.Best != nil {
		entry.BestFitness = res.Best.Fitness
		entry.BestPosition = res.Best.Position
	}
	if err := e.trace.Write(entry); err != nil {
		return err
	}
	return e.trace.Flush()
}

// saveRun stores the session's setup and best point, plus a plot. It
// returns a nil run when there is nothing to save.
func (s *Server) saveRun(e *Entry) (*store.Run, error) {
	if s.store == nil {
		return nil, nil
	}

	best, ok := e.Session.Best()
	if !ok {
		slog.Debug("Skipping run save, no best point yet", "session_id", e.ID)
		return nil, nil
	}

	run := store.NewRun(e.ID, setupOf(e), e.Session.Generation(), best.Position, best.Fitness)
	if err := s.store.SaveRun(e.ID, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	slog.Info("Run saved",
		"session_id", e.ID,
		"generation", run.Generation,
		"best_fitness", run.BestFitness,
	)

	if err := saveRunArtifacts(s.store.BaseDir(), e); err != nil {
		slog.Warn("Failed to save run artifacts", "session_id", e.ID, "error", err)
	}
	return run, nil
}

// saveRunArtifacts writes plot.png next to the run record.
func saveRunArtifacts(baseDir string, e *Entry) error {
	path := filepath.Join(baseDir, "runs", e.ID, "plot.png")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create plot.png: %w", err)
	}
	defer f.Close()

	opts := render.DefaultPlotOptions()
	opts.Lower, opts.Upper = e.Session.Bounds()
	if err := e.Scene.WritePNG(f, opts); err != nil {
		return fmt.Errorf("failed to render plot.png: %w", err)
	}

	slog.Debug("Run artifacts saved", "session_id", e.ID, "plot_path", path)
	return nil
}

func setupOf(e *Entry) store.Setup {
	return store.Setup{
		Expression: e.Session.Expression().String(),
		Algorithm:  e.Session.Algorithm(),
		Params:     e.Session.RawParams(),
		Seed:       e.Seed,
	}
}

package store

import (
	"fmt"
	"time"
)

// Setup is everything needed to reproduce a session's search.
type Setup struct {
	Expression string            `json:"expression"`
	Algorithm  string            `json:"algorithm"`
	Params     map[string]string `json:"params"`
	Seed       uint64            `json:"seed,omitempty"`
}

// Run is a saved search result. Only the best point is kept, not the
// population: resuming starts a fresh population from the same setup.
type Run struct {
	RunID        string    `json:"runId"`
	Setup        Setup     `json:"setup"`
	Generation   int       `json:"generation"`
	BestPosition []float64 `json:"bestPosition,omitempty"`
	BestFitness  float64   `json:"bestFitness"`
	Timestamp    time.Time `json:"timestamp"`
}

// RunInfo is the listing view of a Run.
type RunInfo struct {
	RunID       string    `json:"runId"`
	Expression  string    `json:"expression"`
	Algorithm   string    `json:"algorithm"`
	Generation  int       `json:"generation"`
	BestFitness float64   `json:"bestFitness"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewRun creates a run record stamped with the current time.
func NewRun(runID string, setup Setup, generation int, bestPosition []float64, bestFitness float64) *Run {
	return &Run{
		RunID:        runID,
		Setup:        setup,
		Generation:   generation,
		BestPosition: append([]float64(nil), bestPosition...),
		BestFitness:  bestFitness,
		Timestamp:    time.Now(),
	}
}

// ToInfo converts a full Run to RunInfo.
func (r *Run) ToInfo() RunInfo {
	return RunInfo{
		RunID:       r.RunID,
		Expression:  r.Setup.Expression,
		Algorithm:   r.Setup.Algorithm,
		Generation:  r.Generation,
		BestFitness: r.BestFitness,
		Timestamp:   r.Timestamp,
	}
}

// Validate checks that the record can be resumed.
func (r *Run) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if r.Setup.Expression == "" {
		return &ValidationError{Field: "Setup.Expression", Reason: "cannot be empty"}
	}
	if r.Setup.Algorithm == "" {
		return &ValidationError{Field: "Setup.Algorithm", Reason: "cannot be empty"}
	}
	if r.Generation < 0 {
		return &ValidationError{Field: "Generation", Reason: "cannot be negative"}
	}
	if r.Generation > 0 && len(r.BestPosition) == 0 {
		return &ValidationError{Field: "BestPosition", Reason: "required once a generation has run"}
	}
	if n := len(r.BestPosition); n > 2 {
		return &ValidationError{Field: "BestPosition", Reason: fmt.Sprintf("has %d coordinates, at most 2 allowed", n)}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a run validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

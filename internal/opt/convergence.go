package opt

import (
	"log/slog"
	"math"
)

// StallConfig defines when a run counts as stalled.
type StallConfig struct {
	// Enabled controls whether Update can ever report a stall.
	Enabled bool

	// Patience is the number of generations without significant improvement
	// before a stall is reported.
	Patience int

	// Threshold is the minimum improvement, relative to max(1, |last significant best|),
	// that counts as progress. Fitness may be negative, so a plain ratio is not used.
	Threshold float64
}

// DefaultStallConfig returns the defaults used by the run command.
func DefaultStallConfig() StallConfig {
	return StallConfig{
		Enabled:   true,
		Patience:  25,
		Threshold: 1e-6,
	}
}

// DisabledStallConfig never reports a stall.
func DisabledStallConfig() StallConfig {
	return StallConfig{Enabled: false}
}

// StallTracker follows the global best across generations.
type StallTracker struct {
	config          StallConfig
	history         []float64
	best            float64
	lastSignificant float64
	staleCount      int
}

// NewStallTracker creates a tracker with config.
func NewStallTracker(config StallConfig) *StallTracker {
	return &StallTracker{
		config:          config,
		best:            math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records the best fitness of a generation and reports whether the
// run has stalled. A generation with no defined best is passed as +Inf and
// counts as stale, so runs over undefined regions still stall.
func (t *StallTracker) Update(best float64) bool {
	t.history = append(t.history, best)
	if best < t.best {
		t.best = best
	}

	switch {
	case math.IsInf(best, 1) || math.IsNaN(best):
		t.staleCount++
	case math.IsInf(t.lastSignificant, 1):
		t.lastSignificant = best
		t.staleCount = 0
		return false
	default:
		improvement := t.lastSignificant - best
		if improvement > t.config.Threshold*math.Max(1, math.Abs(t.lastSignificant)) {
			t.lastSignificant = best
			t.staleCount = 0
			return false
		}
		t.staleCount++
	}

	if !t.config.Enabled || t.staleCount < t.config.Patience {
		return false
	}

	slog.Info("Stall detected",
		"stale_count", t.staleCount,
		"patience", t.config.Patience,
		"best_fitness", t.best,
	)
	return true
}

// Best returns the lowest fitness recorded.
func (t *StallTracker) Best() float64 { return t.best }

// History returns a copy of the recorded bests.
func (t *StallTracker) History() []float64 {
	return append([]float64{}, t.history...)
}

// StaleCount is the number of generations since the last significant improvement.
func (t *StallTracker) StaleCount() int { return t.staleCount }

// Reset clears the tracker.
func (t *StallTracker) Reset() {
	t.history = nil
	t.best = math.Inf(1)
	t.lastSignificant = math.Inf(1)
	t.staleCount = 0
}

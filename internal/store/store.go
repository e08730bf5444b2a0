package store

// Store persists finished runs: the setup that produced them and their best point.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if the run doesn't exist (for Load/Delete)
//   - Wrap underlying errors with fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRun atomically saves a run record, overwriting any previous one for runID.
	SaveRun(runID string, run *Run) error

	// LoadRun retrieves the run record for runID.
	// Returns ErrNotFound if no record exists.
	LoadRun(runID string) (*Run, error)

	// ListRuns returns metadata for all stored runs.
	ListRuns() ([]RunInfo, error)

	// DeleteRun removes the run record and its trace.
	// Returns ErrNotFound if no record exists.
	DeleteRun(runID string) error
}

// ErrNotFound is returned when a requested run or trace does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

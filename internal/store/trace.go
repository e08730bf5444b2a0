package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrGenerationOrder is returned when a trace entry does not follow the
// previous one.
var ErrGenerationOrder = errors.New("trace generations must increase")

// TraceEntry is one generation of a run, serialized as a JSON line in trace.jsonl.
type TraceEntry struct {
	Generation int `json:"generation"`

	// BestFitness is the global best after this generation
	BestFitness float64 `json:"bestFitness"`

	// BestPosition is omitted when no defined point has been found yet
	BestPosition []float64 `json:"bestPosition,omitempty"`

	// Defined counts individuals with a defined objective value
	Defined int `json:"defined"`

	Improved bool `json:"improved"`

	Timestamp time.Time `json:"timestamp"`
}

// TraceMode selects what happens to an existing trace when it is opened.
type TraceMode int

const (
	// TraceFresh discards any existing trace.
	TraceFresh TraceMode = iota

	// TraceContinue keeps the existing trace and numbers new generations
	// after its last one, so a resumed run reads as one sequence.
	TraceContinue
)

// TraceWriter writes one run's generations to <baseDir>/runs/<id>/trace.jsonl.
// Entries are buffered; it is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
	offset int
	last   int
}

// OpenTrace opens the trace of runID for writing.
func OpenTrace(baseDir, runID string, mode TraceMode) (*TraceWriter, error) {
	if err := os.MkdirAll(runDir(baseDir, runID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	path := tracePath(baseDir, runID)

	offset := 0
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if mode == TraceContinue {
		last, err := lastGeneration(path)
		if err != nil {
			return nil, err
		}
		offset = last
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}

	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
		offset: offset,
		last:   offset,
	}, nil
}

// Write appends entry. Its generation is shifted past the generations the
// trace held when it was opened, and must be above the last one written.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	entry.Generation += tw.offset
	if entry.Generation <= tw.last {
		return fmt.Errorf("%w: %d after %d", ErrGenerationOrder, entry.Generation, tw.last)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	data = append(data, '\n')
	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}

	tw.last = entry.Generation
	return nil
}

// Restart empties the trace for a new population of the same run.
func (tw *TraceWriter) Restart() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	tw.writer.Reset(tw.file)
	if err := tw.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate trace file: %w", err)
	}
	if _, err := tw.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind trace file: %w", err)
	}
	tw.offset, tw.last = 0, 0
	return nil
}

// LastGeneration is the generation of the most recent entry, counting
// entries that were in the file when it was opened.
func (tw *TraceWriter) LastGeneration() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.last
}

// Flush writes buffered entries through to disk.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceQuery selects a page of a trace.
type TraceQuery struct {
	// Since skips generations up to and including this one.
	Since int
	// Limit caps the number of entries; 0 means no cap.
	Limit int
}

// ReadTrace returns the entries of runID's trace matching q, in generation
// order. A missing trace is a NotFoundError.
func ReadTrace(baseDir, runID string, q TraceQuery) ([]TraceEntry, error) {
	entries := []TraceEntry{}
	err := scanTrace(tracePath(baseDir, runID), func(entry TraceEntry) bool {
		if entry.Generation <= q.Since {
			return true
		}
		entries = append(entries, entry)
		return q.Limit <= 0 || len(entries) < q.Limit
	})
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// lastGeneration reports the final generation in the trace at path, or 0
// when there is none.
func lastGeneration(path string) (int, error) {
	last := 0
	err := scanTrace(path, func(entry TraceEntry) bool {
		last = entry.Generation
		return true
	})
	if err != nil && !os.IsNotExist(err) {
		return 0, err
	}
	return last, nil
}

// scanTrace calls fn for every entry until fn returns false.
func scanTrace(path string, fn func(TraceEntry) bool) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry TraceEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return fmt.Errorf("failed to unmarshal trace entry: %w", err)
		}
		if !fn(entry) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan trace: %w", err)
	}
	return nil
}

func tracePath(baseDir, runID string) string {
	return filepath.Join(runDir(baseDir, runID), "trace.jsonl")
}

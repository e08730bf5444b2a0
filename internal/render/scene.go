package render

import (
	"log/slog"
	"sync"

	"github.com/cwbudde/swarmviz/internal/expression"
	"github.com/google/uuid"
)

// Point is a drawn population member. Value is the objective at Position
// and is only meaningful when Defined is true.
type Point struct {
	Handle   Handle    `json:"handle"`
	Position []float64 `json:"position"`
	Value    float64   `json:"value"`
	Defined  bool      `json:"defined"`
}

// Snapshot is a copy of everything a Scene currently shows.
type Snapshot struct {
	Expression  string      `json:"expression"`
	Perspective Perspective `json:"perspective"`
	GridVisible bool        `json:"gridVisible"`
	Points      []Point     `json:"points"`
}

// Scene is an in-memory Renderer. It is safe for concurrent use so that
// readers (plots, listings) can run alongside the owning session.
type Scene struct {
	mu          sync.RWMutex
	expression  string
	parsed      *expression.Expression
	perspective Perspective
	grid        bool
	points      map[Handle]Point
	order       []Handle
}

// NewScene returns an empty 2-D scene.
func NewScene() *Scene {
	return &Scene{
		perspective: Perspective2D,
		points:      make(map[Handle]Point),
	}
}

// ShowExpression implements Renderer.
func (s *Scene) ShowExpression(src string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expression = src
	s.parsed = expression.Parse(src)
}

// DrawPoints implements Renderer.
func (s *Scene) DrawPoints(src string, positions [][]float64) []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.parsed
	if e == nil || e.String() != src {
		e = expression.Parse(src)
	}

	handles := make([]Handle, len(positions))
	for i, pos := range positions {
		h := Handle(uuid.New().String())
		value, ok := e.Eval(pos)
		s.points[h] = Point{
			Handle:   h,
			Position: append([]float64(nil), pos...),
			Value:    value,
			Defined:  ok,
		}
		s.order = append(s.order, h)
		handles[i] = h
	}

	slog.Debug("Points drawn", "count", len(handles), "total", len(s.points))
	return handles
}

// RemovePoints implements Renderer.
func (s *Scene) RemovePoints(handles []Handle) {
	if len(handles) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, h := range handles {
		if _, ok := s.points[h]; ok {
			delete(s.points, h)
			removed++
		}
	}

	kept := s.order[:0]
	for _, h := range s.order {
		if _, ok := s.points[h]; ok {
			kept = append(kept, h)
		}
	}
	s.order = kept

	slog.Debug("Points removed", "requested", len(handles), "removed", removed, "total", len(s.points))
}

// SetPerspective implements Renderer.
func (s *Scene) SetPerspective(p Perspective) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perspective = p
}

// SetGridVisible implements Renderer.
func (s *Scene) SetGridVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grid = visible
}

// Len returns the number of drawn points.
func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// Snapshot returns a copy of the scene, points in drawing order.
func (s *Scene) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Expression:  s.expression,
		Perspective: s.perspective,
		GridVisible: s.grid,
		Points:      make([]Point, 0, len(s.order)),
	}
	for _, h := range s.order {
		p := s.points[h]
		p.Position = append([]float64(nil), p.Position...)
		snap.Points = append(snap.Points, p)
	}
	return snap
}

package opt

import "math"

// Objective evaluates a candidate position. The boolean is false when the
// objective is undefined there; such candidates never become a best.
type Objective func(position []float64) (float64, bool)

// Problem is everything an optimizer needs besides its own coefficients.
// The search space is the same [Lower, Upper] interval on every axis.
type Problem struct {
	Objective      Objective
	Dimension      int
	Lower          float64
	Upper          float64
	PopulationSize int
}

// Optimizer is the contract shared by the population-based minimizers.
// Evolve from an empty state seeds a fresh population; every later call
// advances it by exactly one generation.
type Optimizer interface {
	// Name identifies the algorithm.
	Name() string

	// Evolve advances the population by one generation.
	Evolve()

	// Reset drops the population, best and generation counter.
	Reset()

	// Generation is the number of completed Evolve calls since the last Reset.
	Generation() int

	// Best returns the lowest-fitness position seen in the current run.
	Best() (Point, bool)

	// Individuals returns a copy of the current population.
	Individuals() []Individual

	// Positions returns a copy of the current population's coordinates.
	Positions() [][]float64
}

// Individual is one candidate solution.
type Individual struct {
	Position []float64 `json:"position"`
	Fitness  float64   `json:"fitness"`
	Valid    bool      `json:"valid"`
}

// Point is a position with its fitness.
type Point struct {
	Position []float64 `json:"position"`
	Fitness  float64   `json:"fitness"`
}

// State holds the population, the global best and the generation counter.
// The three are only ever changed together.
type State struct {
	individuals []Individual
	best        Point
	hasBest     bool
	generation  int
}

// Reset returns the state to empty.
func (s *State) Reset() {
	s.individuals = nil
	s.best = Point{}
	s.hasBest = false
	s.generation = 0
}

// Generation returns the number of completed generations.
func (s *State) Generation() int { return s.generation }

// Size returns the number of individuals.
func (s *State) Size() int { return len(s.individuals) }

// Best returns a copy of the global best.
func (s *State) Best() (Point, bool) {
	if !s.hasBest {
		return Point{}, false
	}
	return Point{Position: clone(s.best.Position), Fitness: s.best.Fitness}, true
}

// Individuals returns a deep copy of the population.
func (s *State) Individuals() []Individual {
	out := make([]Individual, len(s.individuals))
	for i, ind := range s.individuals {
		out[i] = Individual{Position: clone(ind.Position), Fitness: ind.Fitness, Valid: ind.Valid}
	}
	return out
}

// Positions returns a deep copy of every individual's coordinates.
func (s *State) Positions() [][]float64 {
	out := make([][]float64, len(s.individuals))
	for i, ind := range s.individuals {
		out[i] = clone(ind.Position)
	}
	return out
}

// Fitnesses returns the fitness of every valid individual.
func (s *State) Fitnesses() []float64 {
	out := make([]float64, 0, len(s.individuals))
	for _, ind := range s.individuals {
		if ind.Valid {
			out = append(out, ind.Fitness)
		}
	}
	return out
}

// offer replaces the global best when fitness is strictly lower.
func (s *State) offer(position []float64, fitness float64) bool {
	if s.hasBest && !(fitness < s.best.Fitness) {
		return false
	}
	s.best = Point{Position: clone(position), Fitness: fitness}
	s.hasBest = true
	return true
}

func evaluate(objective Objective, position []float64) Individual {
	f, ok := objective(position)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return Individual{Position: position, Fitness: math.NaN()}
	}
	return Individual{Position: position, Fitness: f, Valid: true}
}

// rank orders individuals for selection; invalid ones rank last.
func rank(ind Individual) float64 {
	if !ind.Valid {
		return math.Inf(1)
	}
	return ind.Fitness
}

func clone(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append([]float64(nil), v...)
}

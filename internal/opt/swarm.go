package opt

import (
	"log/slog"

	"github.com/cwbudde/swarmviz/internal/sampling"
)

// SwarmParams are the velocity update coefficients.
type SwarmParams struct {
	W  float64 // inertia
	C1 float64 // cognitive weight, pull toward the particle's own best
	C2 float64 // social weight, pull toward the global best
}

// Swarm is a global-best particle swarm optimizer.
//
// Positions are not clamped to the bounds after an update;
// particles may leave the initial search box.
type Swarm struct {
	State

	problem Problem
	params  SwarmParams
	rng     *sampling.Sampler

	velocities       [][]float64
	personalBest     [][]float64
	personalFitness  []float64
	personalBestSeen []bool
}

// NewSwarm creates an empty swarm for problem.
func NewSwarm(problem Problem, params SwarmParams, rng *sampling.Sampler) *Swarm {
	return &Swarm{problem: problem, params: params, rng: rng}
}

// Name implements Optimizer.
func (s *Swarm) Name() string { return AlgorithmSwarm }

// Reset implements Optimizer.
func (s *Swarm) Reset() {
	s.State.Reset()
	s.velocities = nil
	s.personalBest = nil
	s.personalFitness = nil
	s.personalBestSeen = nil
}

// Velocities returns a copy of every particle's velocity.
func (s *Swarm) Velocities() [][]float64 {
	out := make([][]float64, len(s.velocities))
	for i, v := range s.velocities {
		out[i] = clone(v)
	}
	return out
}

// PersonalBests returns each particle's best position and fitness so far.
// Particles that never hit a defined value are reported with ok false.
func (s *Swarm) PersonalBests() ([]Point, []bool) {
	points := make([]Point, len(s.personalBest))
	for i := range s.personalBest {
		points[i] = Point{Position: clone(s.personalBest[i]), Fitness: s.personalFitness[i]}
	}
	return points, append([]bool(nil), s.personalBestSeen...)
}

// Evolve implements Optimizer.
func (s *Swarm) Evolve() {
	if s.generation == 0 {
		s.initialize()
	} else {
		s.move()
	}
	s.generation++

	best, _ := s.Best()
	slog.Debug("Swarm evolved", "generation", s.generation, "best_fitness", best.Fitness, "best_position", best.Position)
}

func (s *Swarm) initialize() {
	n, dim := s.problem.PopulationSize, s.problem.Dimension
	sd := (s.problem.Upper - s.problem.Lower) / 100

	s.individuals = make([]Individual, n)
	s.velocities = make([][]float64, n)
	s.personalBest = make([][]float64, n)
	s.personalFitness = make([]float64, n)
	s.personalBestSeen = make([]bool, n)

	for i := 0; i < n; i++ {
		pos := make([]float64, dim)
		vel := make([]float64, dim)
		for d := 0; d < dim; d++ {
			// Bounds and sd are validated before a run can start.
			pos[d], _ = s.rng.Uniform(s.problem.Lower, s.problem.Upper)
			vel[d], _ = s.rng.Gaussian(0, sd)
		}

		ind := evaluate(s.problem.Objective, pos)
		s.individuals[i] = ind
		s.velocities[i] = vel
		s.personalBest[i] = clone(pos)
		s.personalFitness[i] = ind.Fitness
		s.personalBestSeen[i] = ind.Valid

		if ind.Valid {
			s.offer(pos, ind.Fitness)
		}
	}
}

func (s *Swarm) move() {
	w, c1, c2 := s.params.W, s.params.C1, s.params.C2

	for i := range s.individuals {
		pos := s.individuals[i].Position
		vel := s.velocities[i]
		pbest := s.personalBest[i]

		for d := range pos {
			r1, _ := s.rng.Uniform(0, 2)
			r2, _ := s.rng.Uniform(0, 2)

			social := 0.0
			if s.hasBest {
				social = c2 * r2 * (s.best.Position[d] - pos[d])
			}
			vel[d] = w*vel[d] + c1*r1*(pbest[d]-pos[d]) + social
			pos[d] += vel[d]
		}

		ind := evaluate(s.problem.Objective, pos)
		s.individuals[i] = ind

		if !ind.Valid {
			continue
		}
		if !s.personalBestSeen[i] || ind.Fitness < s.personalFitness[i] {
			s.personalBest[i] = clone(pos)
			s.personalFitness[i] = ind.Fitness
			s.personalBestSeen[i] = true
		}
		s.offer(pos, ind.Fitness)
	}
}

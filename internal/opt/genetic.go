package opt

import (
	"log/slog"

	"github.com/cwbudde/swarmviz/internal/sampling"
)

// tournamentSize is the number of contestants per parent selection.
const tournamentSize = 3

// GeneticParams control variation in the genetic algorithm.
type GeneticParams struct {
	// MutationRate is the per-coordinate probability of a Gaussian perturbation.
	MutationRate float64
	// CrossoverRate is the probability that a child blends both parents
	// instead of copying the first.
	CrossoverRate float64
	// MutationScale is the perturbation standard deviation as a fraction of Upper-Lower.
	MutationScale float64
}

// Genetic is a generational real-coded genetic algorithm with tournament
// selection, blend crossover, Gaussian mutation and a single elite.
type Genetic struct {
	State

	problem Problem
	params  GeneticParams
	rng     *sampling.Sampler
}

// NewGenetic creates an empty genetic optimizer for problem.
func NewGenetic(problem Problem, params GeneticParams, rng *sampling.Sampler) *Genetic {
	return &Genetic{problem: problem, params: params, rng: rng}
}

// Name implements Optimizer.
func (g *Genetic) Name() string { return AlgorithmGenetic }

// Evolve implements Optimizer.
func (g *Genetic) Evolve() {
	if g.generation == 0 {
		g.initialize()
	} else {
		g.breed()
	}
	g.generation++

	best, _ := g.Best()
	slog.Debug("Genetic population evolved", "generation", g.generation, "best_fitness", best.Fitness, "population", len(g.individuals))
}

func (g *Genetic) initialize() {
	n, dim := g.problem.PopulationSize, g.problem.Dimension
	g.individuals = make([]Individual, n)

	for i := 0; i < n; i++ {
		pos := make([]float64, dim)
		for d := range pos {
			pos[d], _ = g.rng.Uniform(g.problem.Lower, g.problem.Upper)
		}
		g.individuals[i] = evaluate(g.problem.Objective, pos)
	}
	g.track()
}

func (g *Genetic) breed() {
	n := len(g.individuals)
	next := make([]Individual, 0, n)

	if elite, ok := g.elite(); ok {
		next = append(next, Individual{Position: clone(elite.Position), Fitness: elite.Fitness, Valid: true})
	}

	for len(next) < n {
		a, b := g.tournament(), g.tournament()
		child := g.crossover(a.Position, b.Position)
		g.mutate(child)
		next = append(next, evaluate(g.problem.Objective, child))
	}

	g.individuals = next
	g.track()
}

// track folds the current population into the global best.
func (g *Genetic) track() {
	for _, ind := range g.individuals {
		if ind.Valid {
			g.offer(ind.Position, ind.Fitness)
		}
	}
}

func (g *Genetic) elite() (Individual, bool) {
	best := -1
	for i, ind := range g.individuals {
		if ind.Valid && (best < 0 || ind.Fitness < g.individuals[best].Fitness) {
			best = i
		}
	}
	if best < 0 {
		return Individual{}, false
	}
	return g.individuals[best], true
}

// tournament returns the lowest-fitness of tournamentSize random picks.
func (g *Genetic) tournament() Individual {
	n := len(g.individuals)
	best := g.individuals[g.rng.Intn(n)]
	for i := 1; i < tournamentSize; i++ {
		candidate := g.individuals[g.rng.Intn(n)]
		if rank(candidate) < rank(best) {
			best = candidate
		}
	}
	return best
}

func (g *Genetic) crossover(a, b []float64) []float64 {
	child := clone(a)
	if g.rng.Float64() >= g.params.CrossoverRate {
		return child
	}
	for d := range child {
		alpha := g.rng.Float64()
		child[d] = alpha*a[d] + (1-alpha)*b[d]
	}
	return child
}

func (g *Genetic) mutate(child []float64) {
	sd := g.params.MutationScale * (g.problem.Upper - g.problem.Lower)
	for d := range child {
		if g.rng.Float64() < g.params.MutationRate {
			offset, _ := g.rng.Gaussian(0, sd)
			child[d] += offset
		}
	}
}

package opt

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// minMayflyPopulation is the smallest population mayfly v0.1.0 accepts.
const minMayflyPopulation = 20

// undefinedCost stands in for objective values that are not finite, since
// mayfly expects a total function.
const undefinedCost = 1e300

// ErrReferenceConfig marks iteration or population counts mayfly cannot run with.
var ErrReferenceConfig = errors.New("invalid reference configuration")

// Reference runs the external mayfly optimizer to completion on a problem,
// giving a batch-mode minimum to compare the stepped optimizers against.
type Reference struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewReference creates a mayfly reference solver.
func NewReference(maxIters, popSize int, seed int64) *Reference {
	return &Reference{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run minimizes problem.Objective over the square [Lower, Upper]^Dimension.
// problem.PopulationSize is ignored in favour of the solver's own.
func (r *Reference) Run(problem Problem) (Point, error) {
	if r.popSize < minMayflyPopulation {
		return Point{}, fmt.Errorf("%w: mayfly population must be at least %d, got %d", ErrReferenceConfig, minMayflyPopulation, r.popSize)
	}
	if r.maxIters < 1 {
		return Point{}, fmt.Errorf("%w: iterations must be at least 1, got %d", ErrReferenceConfig, r.maxIters)
	}
	if problem.Lower > problem.Upper {
		return Point{}, fmt.Errorf("lower bound %g exceeds upper bound %g", problem.Lower, problem.Upper)
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(x []float64) float64 {
		f, ok := problem.Objective(x)
		if !ok {
			return undefinedCost
		}
		return f
	}
	config.ProblemSize = problem.Dimension
	config.MaxIterations = r.maxIters
	config.NPop = r.popSize

	// mayfly takes scalar bounds, which matches the square search space.
	config.LowerBound = problem.Lower
	config.UpperBound = problem.Upper

	config.Rand = rand.New(rand.NewSource(r.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return Point{}, fmt.Errorf("mayfly optimization failed: %w", err)
	}

	best := Point{
		Position: clone(result.GlobalBest.Position),
		Fitness:  result.GlobalBest.Cost,
	}
	if _, ok := problem.Objective(best.Position); !ok {
		return best, fmt.Errorf("mayfly found no point where the objective is defined")
	}
	return best, nil
}

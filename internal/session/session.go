// Package session ties an expression, its validated parameters, the active
// optimizer and the drawn points together behind the UI actions.
//
// A Session is single-writer state: callers must serialize every method
// call, as the HTTP server does through its SessionManager.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/swarmviz/internal/expression"
	"github.com/cwbudde/swarmviz/internal/opt"
	"github.com/cwbudde/swarmviz/internal/params"
	"github.com/cwbudde/swarmviz/internal/render"
	"github.com/cwbudde/swarmviz/internal/sampling"
)

var (
	// ErrParametersInvalid is returned by Step while the aggregate check fails.
	ErrParametersInvalid = errors.New("session: parameters invalid")

	// ErrUnknownAlgorithm is returned by SetAlgorithm for unsupported names.
	ErrUnknownAlgorithm = errors.New("session: unknown algorithm")
)

// Session is the population state manager for one user.
type Session struct {
	renderer  render.Renderer
	rng       *sampling.Sampler
	stallCfg  opt.StallConfig
	expr      *expression.Expression
	dim       int
	algorithm string
	form      *params.Form
	active    opt.Optimizer
	handles   []render.Handle
	stall     *opt.StallTracker
}

// Option configures a Session.
type Option func(*Session)

// WithSampler sets the random source, e.g. a seeded one for reproducible runs.
func WithSampler(rng *sampling.Sampler) Option {
	return func(s *Session) { s.rng = rng }
}

// WithAlgorithm selects the initial algorithm. Unknown names are ignored.
func WithAlgorithm(algorithm string) Option {
	return func(s *Session) {
		if knownAlgorithm(algorithm) {
			s.algorithm = algorithm
		}
	}
}

// WithStallConfig sets how stagnation is measured for Status and StepResult.
func WithStallConfig(cfg opt.StallConfig) Option {
	return func(s *Session) { s.stallCfg = cfg }
}

// New creates a session drawing on renderer. It starts with an empty
// (invalid) expression, the genetic algorithm and a 2-D view.
func New(renderer render.Renderer, opts ...Option) *Session {
	s := &Session{
		renderer:  renderer,
		algorithm: opt.AlgorithmGenetic,
		stallCfg:  opt.DefaultStallConfig(),
		dim:       1,
	}
	for _, o := range opts {
		o(s)
	}
	if s.rng == nil {
		s.rng = sampling.NewRandom()
	}

	s.expr = expression.Parse("")
	s.form = formFor(s.algorithm)
	s.form.SetObjectiveValid(s.expr.Valid())
	s.stall = opt.NewStallTracker(s.stallCfg)
	s.active = s.build()

	renderer.SetGridVisible(true)
	return s
}

// SetExpression replaces the objective. The population is always reset,
// and the view switches perspective when the number of variables changes.
func (s *Session) SetExpression(text string) {
	s.Reset()

	s.expr = expression.Parse(text)
	s.form.SetObjectiveValid(s.expr.Valid())
	s.renderer.ShowExpression(text)

	if dim := s.expr.Dimension(); dim != s.dim {
		s.dim = dim
		s.renderer.SetPerspective(render.PerspectiveFor(dim))
	}
	s.active = s.build()

	slog.Debug("Expression set", "expression", text, "dimension", s.dim, "valid", s.expr.Valid())
}

// SetHyperparameter updates one field from raw text. Any edit resets the
// population, even one that leaves validity unchanged.
func (s *Session) SetHyperparameter(name, text string) (params.Field, error) {
	field, err := s.form.Set(name, text)
	if err != nil {
		return field, err
	}

	s.Reset()
	s.active = s.build()

	slog.Debug("Hyperparameter set", "name", name, "raw", text, "valid", field.Valid, "parameters_valid", s.form.Valid())
	return field, nil
}

// SetAlgorithm switches the active optimizer. The population is cleared and
// the new algorithm's fields start from their defaults.
func (s *Session) SetAlgorithm(algorithm string) error {
	if !knownAlgorithm(algorithm) {
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}

	s.Reset()
	s.algorithm = algorithm
	s.form = formFor(algorithm)
	s.form.SetObjectiveValid(s.expr.Valid())
	s.active = s.build()

	slog.Debug("Algorithm set", "algorithm", algorithm)
	return nil
}

// Reset removes the drawn population and clears the optimizer. It does
// nothing when no population exists.
func (s *Session) Reset() {
	if s.active.Generation() == 0 {
		return
	}

	s.renderer.RemovePoints(s.handles)
	s.handles = nil
	s.active.Reset()
	s.stall.Reset()

	slog.Debug("Population reset", "algorithm", s.algorithm)
}

// StepResult describes one completed generation.
type StepResult struct {
	Generation int        `json:"generation"`
	Best       *opt.Point `json:"best,omitempty"`
	Improved   bool       `json:"improved"`
	Stalled    bool       `json:"stalled"`
	Population int        `json:"population"`
}

// Step advances the active optimizer by one generation and redraws the population.
func (s *Session) Step() (StepResult, error) {
	if !s.form.Valid() {
		return StepResult{}, ErrParametersInvalid
	}

	if s.active.Generation() == 0 {
		// Fresh run: pick up the latest bounds and coefficients.
		s.active = s.build()
	}
	before, hadBest := s.active.Best()

	s.active.Evolve()

	if len(s.handles) > 0 {
		s.renderer.RemovePoints(s.handles)
	}
	positions := s.active.Positions()
	s.handles = s.renderer.DrawPoints(s.expr.String(), positions)

	result := StepResult{
		Generation: s.active.Generation(),
		Population: len(positions),
	}
	if best, ok := s.active.Best(); ok {
		result.Best = &best
		result.Improved = !hadBest || best.Fitness < before.Fitness
		result.Stalled = s.stall.Update(best.Fitness)
	} else {
		result.Stalled = s.stall.Update(math.Inf(1))
	}
	return result, nil
}

// Generation returns the active optimizer's generation counter.
func (s *Session) Generation() int { return s.active.Generation() }

// Best returns the global best of the current run.
func (s *Session) Best() (opt.Point, bool) { return s.active.Best() }

// Positions returns the current population's coordinates.
func (s *Session) Positions() [][]float64 { return s.active.Positions() }

// Handles returns the handles of the currently drawn points.
func (s *Session) Handles() []render.Handle {
	return append([]render.Handle(nil), s.handles...)
}

// Expression returns the current objective.
func (s *Session) Expression() *expression.Expression { return s.expr }

// Algorithm returns the active algorithm identifier.
func (s *Session) Algorithm() string { return s.algorithm }

// ParametersValid is the aggregate "ready to run" flag.
func (s *Session) ParametersValid() bool { return s.form.Valid() }

// Bounds returns the last valid lower and upper bound.
func (s *Session) Bounds() (float64, float64) {
	return s.form.Value(params.Lower), s.form.Value(params.Upper)
}

// Problem describes the current objective and search space.
func (s *Session) Problem() opt.Problem {
	lower, upper := s.Bounds()
	return opt.Problem{
		Objective:      s.expr.Eval,
		Dimension:      s.expr.Dimension(),
		Lower:          lower,
		Upper:          upper,
		PopulationSize: s.form.Int(params.PopulationSize),
	}
}

// Reference runs the mayfly batch optimizer on the current problem.
func (s *Session) Reference(iters, popSize int, seed int64) (opt.Point, error) {
	if !s.form.Valid() {
		return opt.Point{}, ErrParametersInvalid
	}
	return opt.NewReference(iters, popSize, seed).Run(s.Problem())
}

func (s *Session) build() opt.Optimizer {
	problem := s.Problem()
	switch s.algorithm {
	case opt.AlgorithmSwarm:
		return opt.NewSwarm(problem, opt.SwarmParams{
			W:  s.form.Value(params.Inertia),
			C1: s.form.Value(params.Cognitive),
			C2: s.form.Value(params.Social),
		}, s.rng)
	default:
		return opt.NewGenetic(problem, opt.GeneticParams{
			MutationRate:  s.form.Value(params.MutationRate),
			CrossoverRate: s.form.Value(params.CrossoverRate),
			MutationScale: s.form.Value(params.MutationScale),
		}, s.rng)
	}
}

func formFor(algorithm string) *params.Form {
	if algorithm == opt.AlgorithmSwarm {
		return params.SwarmForm()
	}
	return params.GeneticForm()
}

func knownAlgorithm(algorithm string) bool {
	for _, a := range opt.Algorithms() {
		if a == algorithm {
			return true
		}
	}
	return false
}

package session

import (
	"fmt"
	"testing"

	"github.com/cwbudde/swarmviz/internal/opt"
	"github.com/cwbudde/swarmviz/internal/params"
	"github.com/cwbudde/swarmviz/internal/render"
	"github.com/cwbudde/swarmviz/internal/sampling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a Renderer that logs every request.
type recorder struct {
	shown        []string
	draws        [][][]float64
	removals     [][]render.Handle
	perspectives []render.Perspective
	grid         []bool
	next         int
}

func (r *recorder) ShowExpression(src string) { r.shown = append(r.shown, src) }

func (r *recorder) DrawPoints(_ string, positions [][]float64) []render.Handle {
	r.draws = append(r.draws, positions)
	handles := make([]render.Handle, len(positions))
	for i := range positions {
		r.next++
		handles[i] = render.Handle(fmt.Sprintf("h%d", r.next))
	}
	return handles
}

func (r *recorder) RemovePoints(handles []render.Handle) {
	r.removals = append(r.removals, append([]render.Handle(nil), handles...))
}

func (r *recorder) SetPerspective(p render.Perspective) {
	r.perspectives = append(r.perspectives, p)
}

func (r *recorder) SetGridVisible(visible bool) { r.grid = append(r.grid, visible) }

func newSession(t *testing.T, opts ...Option) (*Session, *recorder) {
	t.Helper()
	r := &recorder{}
	opts = append([]Option{WithSampler(sampling.New(7))}, opts...)
	return New(r, opts...), r
}

func set(t *testing.T, s *Session, values map[string]string) {
	t.Helper()
	for name, raw := range values {
		_, err := s.SetHyperparameter(name, raw)
		require.NoError(t, err)
	}
}

func TestNewSession(t *testing.T) {
	s, r := newSession(t)

	assert.Equal(t, []bool{true}, r.grid)
	assert.Equal(t, opt.AlgorithmGenetic, s.Algorithm())
	assert.Equal(t, 0, s.Generation())
	assert.False(t, s.ParametersValid(), "empty expression is invalid")
	assert.Empty(t, r.perspectives)
}

func TestStepRejectsInvalidParameters(t *testing.T) {
	s, r := newSession(t)

	_, err := s.Step()
	assert.ErrorIs(t, err, ErrParametersInvalid)

	s.SetExpression("x^2")
	_, err = s.SetHyperparameter(params.PopulationSize, "0")
	require.NoError(t, err)

	_, err = s.Step()
	assert.ErrorIs(t, err, ErrParametersInvalid)
	assert.Empty(t, r.draws)
	assert.Equal(t, 0, s.Generation())
}

func TestSwarmScenario(t *testing.T) {
	s, r := newSession(t)
	require.NoError(t, s.SetAlgorithm(opt.AlgorithmSwarm))
	s.SetExpression("x^2")
	set(t, s, map[string]string{
		params.Lower:          "-5",
		params.Upper:          "5",
		params.PopulationSize: "4",
		params.Inertia:        "0.65",
		params.Cognitive:      "0.1",
		params.Social:         "0.1",
	})
	require.True(t, s.ParametersValid())

	res, err := s.Step()
	require.NoError(t, err)

	assert.Equal(t, 1, res.Generation)
	assert.Equal(t, 4, res.Population)
	require.Len(t, r.draws, 1)
	assert.Empty(t, r.removals, "nothing to remove before the first draw")

	positions := s.Positions()
	require.Len(t, positions, 4)
	least := positions[0][0] * positions[0][0]
	for _, p := range positions {
		require.Len(t, p, 1)
		assert.GreaterOrEqual(t, p[0], -5.0)
		assert.LessOrEqual(t, p[0], 5.0)
		if v := p[0] * p[0]; v < least {
			least = v
		}
	}
	require.NotNil(t, res.Best)
	assert.InDelta(t, least, res.Best.Fitness, 1e-12)
	assert.Len(t, s.Handles(), 4)
}

func TestStepReplacesPreviousHandles(t *testing.T) {
	s, r := newSession(t)
	s.SetExpression("x^2")
	set(t, s, map[string]string{params.PopulationSize: "5"})

	_, err := s.Step()
	require.NoError(t, err)
	first := s.Handles()

	_, err = s.Step()
	require.NoError(t, err)

	require.Len(t, r.removals, 1)
	assert.Equal(t, first, r.removals[0])
	assert.Len(t, r.draws, 2)
	assert.NotEqual(t, first, s.Handles())
	assert.Equal(t, 2, s.Generation())
}

func TestResetIsIdempotent(t *testing.T) {
	s, r := newSession(t)
	s.SetExpression("x^2")
	set(t, s, map[string]string{params.PopulationSize: "3"})

	_, err := s.Step()
	require.NoError(t, err)
	drawn := s.Handles()

	s.Reset()
	s.Reset()

	require.Len(t, r.removals, 1, "second reset must not repeat the removal")
	assert.Equal(t, drawn, r.removals[0])
	assert.Equal(t, 0, s.Generation())
	assert.Empty(t, s.Handles())
	_, ok := s.Best()
	assert.False(t, ok)
}

func TestResetWithoutPopulationIsNoop(t *testing.T) {
	s, r := newSession(t)
	s.Reset()
	assert.Empty(t, r.removals)
}

func TestExpressionChangeResets(t *testing.T) {
	s, r := newSession(t)
	s.SetExpression("x^2")
	set(t, s, map[string]string{params.PopulationSize: "3"})
	for i := 0; i < 3; i++ {
		_, err := s.Step()
		require.NoError(t, err)
	}

	s.SetExpression("x^2+1")

	assert.Equal(t, 0, s.Generation())
	assert.Len(t, r.removals, 1)
	assert.Equal(t, []string{"x^2", "x^2+1"}, r.shown)
}

func TestPerspectiveFollowsDimension(t *testing.T) {
	s, r := newSession(t)

	s.SetExpression("x^2")
	assert.Empty(t, r.perspectives, "still one variable")

	s.SetExpression("x^2+y^2")
	assert.Equal(t, []render.Perspective{render.Perspective3D}, r.perspectives)

	s.SetExpression("x*y")
	assert.Len(t, r.perspectives, 1, "dimension unchanged")

	s.SetExpression("sin(x)")
	assert.Equal(t, []render.Perspective{render.Perspective3D, render.Perspective2D}, r.perspectives)
}

func TestTwoDimensionalStep(t *testing.T) {
	s, r := newSession(t)
	s.SetExpression("x^2+y^2")
	set(t, s, map[string]string{params.PopulationSize: "6"})

	_, err := s.Step()
	require.NoError(t, err)

	require.Len(t, r.draws, 1)
	for _, p := range r.draws[0] {
		assert.Len(t, p, 2)
	}
}

func TestInvalidExpressionBlocksStep(t *testing.T) {
	s, _ := newSession(t)
	s.SetExpression("log(x)")

	assert.False(t, s.Expression().Valid())
	assert.False(t, s.ParametersValid())
	_, err := s.Step()
	assert.ErrorIs(t, err, ErrParametersInvalid)
}

func TestHyperparameterChangeResets(t *testing.T) {
	s, r := newSession(t)
	s.SetExpression("x^2")
	set(t, s, map[string]string{params.PopulationSize: "3"})
	_, err := s.Step()
	require.NoError(t, err)

	// Same value still counts as an edit.
	field, err := s.SetHyperparameter(params.PopulationSize, "3")
	require.NoError(t, err)
	assert.True(t, field.Valid)
	assert.Equal(t, 0, s.Generation())
	assert.Len(t, r.removals, 1)

	_, err = s.SetHyperparameter("nope", "1")
	assert.ErrorIs(t, err, params.ErrUnknownField)
}

func TestBoundsTakeEffectOnNextRun(t *testing.T) {
	s, _ := newSession(t)
	s.SetExpression("x^2")
	set(t, s, map[string]string{params.PopulationSize: "20"})
	_, err := s.SetHyperparameter(params.Lower, "1")
	require.NoError(t, err)
	_, err = s.SetHyperparameter(params.Upper, "2")
	require.NoError(t, err)

	_, err = s.Step()
	require.NoError(t, err)
	for _, p := range s.Positions() {
		assert.GreaterOrEqual(t, p[0], 1.0)
		assert.LessOrEqual(t, p[0], 2.0)
	}
}

func TestReversedBoundsBlockStep(t *testing.T) {
	s, _ := newSession(t)
	s.SetExpression("x^2")
	_, err := s.SetHyperparameter(params.Lower, "5")
	require.NoError(t, err)
	_, err = s.SetHyperparameter(params.Upper, "-5")
	require.NoError(t, err)

	_, err = s.Step()
	assert.ErrorIs(t, err, ErrParametersInvalid)
}

func TestSetAlgorithm(t *testing.T) {
	s, r := newSession(t)
	s.SetExpression("x^2")
	set(t, s, map[string]string{params.PopulationSize: "3"})
	_, err := s.Step()
	require.NoError(t, err)

	require.NoError(t, s.SetAlgorithm(opt.AlgorithmSwarm))
	assert.Equal(t, opt.AlgorithmSwarm, s.Algorithm())
	assert.Equal(t, 0, s.Generation())
	assert.Len(t, r.removals, 1)
	assert.True(t, s.ParametersValid(), "objective validity carries over")

	st := s.Status()
	names := make([]string, len(st.Fields))
	for i, f := range st.Fields {
		names[i] = f.Name
	}
	assert.Contains(t, names, params.Inertia)
	assert.NotContains(t, names, params.MutationRate)

	err = s.SetAlgorithm("annealing")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
	assert.Equal(t, opt.AlgorithmSwarm, s.Algorithm())
}

func TestGeneticBestNeverWorsens(t *testing.T) {
	s, _ := newSession(t)
	s.SetExpression("(x-1)^2+(y+2)^2")
	set(t, s, map[string]string{params.PopulationSize: "30"})

	_, err := s.Step()
	require.NoError(t, err)
	prev, ok := s.Best()
	require.True(t, ok)

	for i := 0; i < 40; i++ {
		res, err := s.Step()
		require.NoError(t, err)
		require.NotNil(t, res.Best)
		assert.LessOrEqual(t, res.Best.Fitness, prev.Fitness)
		prev = *res.Best
	}
	assert.Less(t, prev.Fitness, 1.0)
}

func TestStatus(t *testing.T) {
	s, _ := newSession(t, WithAlgorithm(opt.AlgorithmSwarm))
	s.SetExpression("x^2")
	set(t, s, map[string]string{params.PopulationSize: "10"})

	st := s.Status()
	assert.Equal(t, "x^2", st.Expression)
	assert.True(t, st.ExpressionValid)
	assert.Equal(t, 1, st.Dimension)
	assert.Equal(t, opt.AlgorithmSwarm, st.Algorithm)
	assert.Equal(t, opt.Label(opt.AlgorithmSwarm), st.AlgorithmLabel)
	assert.True(t, st.ParametersValid)
	assert.Nil(t, st.Best)
	assert.Equal(t, 0, st.Population)

	_, err := s.Step()
	require.NoError(t, err)

	st = s.Status()
	assert.Equal(t, 1, st.Generation)
	assert.Equal(t, 10, st.Population)
	assert.Equal(t, 10, st.Defined)
	require.NotNil(t, st.Best)
	assert.GreaterOrEqual(t, st.MeanFitness, st.Best.Fitness)
	assert.GreaterOrEqual(t, st.FitnessStdDev, 0.0)
}

func TestStatusReportsExpressionError(t *testing.T) {
	s, _ := newSession(t)
	s.SetExpression("x +* 2")

	st := s.Status()
	assert.False(t, st.ExpressionValid)
	assert.NotEmpty(t, st.ExpressionError)
}

func TestReference(t *testing.T) {
	s, _ := newSession(t)
	_, err := s.Reference(10, 20, 1)
	assert.ErrorIs(t, err, ErrParametersInvalid)

	s.SetExpression("(x-2)^2")
	best, err := s.Reference(200, 20, 1)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, best.Position[0], 0.1)
}

func TestConfigure(t *testing.T) {
	s, _ := newSession(t)

	err := s.Configure("x^2+y^2", opt.AlgorithmSwarm, map[string]string{
		params.Lower:          "10",
		params.Upper:          "20",
		params.PopulationSize: "8",
		params.Inertia:        "0.5",
	})
	require.NoError(t, err)

	assert.Equal(t, opt.AlgorithmSwarm, s.Algorithm())
	assert.Equal(t, 2, s.Expression().Dimension())
	assert.True(t, s.ParametersValid())

	lower, upper := s.Bounds()
	assert.Equal(t, 10.0, lower)
	assert.Equal(t, 20.0, upper)

	raw := s.RawParams()
	assert.Equal(t, "0.5", raw[params.Inertia])
	assert.Equal(t, "0.1", raw[params.Cognitive], "untouched fields keep defaults")

	err = s.Configure("x", "", map[string]string{"bogus": "1"})
	assert.ErrorIs(t, err, params.ErrUnknownField)

	err = s.Configure("x", "annealing", nil)
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestSession_UndefinedRegionStalls(t *testing.T) {
	for _, algorithm := range opt.Algorithms() {
		t.Run(algorithm, func(t *testing.T) {
			s, _ := newSession(t,
				WithAlgorithm(algorithm),
				WithStallConfig(opt.StallConfig{Enabled: true, Patience: 5, Threshold: 1e-6}),
			)
			s.SetExpression("sqrt(x)")
			set(t, s, map[string]string{
				params.Lower:          "-5",
				params.Upper:          "-1",
				params.PopulationSize: "10",
			})
			require.True(t, s.ParametersValid())

			stalled := false
			for i := 0; i < 50 && !stalled; i++ {
				res, err := s.Step()
				require.NoError(t, err)
				assert.Nil(t, res.Best)
				stalled = res.Stalled
			}

			assert.True(t, stalled)
			assert.Equal(t, 5, s.Generation())
			assert.Equal(t, 5, s.Status().StaleGenerations)
		})
	}
}

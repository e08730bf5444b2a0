package opt

import (
	"testing"

	"github.com/cwbudde/swarmviz/internal/sampling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSwarm(t *testing.T, src string, dim, n int, lower, upper float64) *Swarm {
	t.Helper()
	problem := Problem{
		Objective:      objectiveOf(t, src),
		Dimension:      dim,
		Lower:          lower,
		Upper:          upper,
		PopulationSize: n,
	}
	return NewSwarm(problem, SwarmParams{W: 0.65, C1: 0.1, C2: 0.1}, sampling.New(42))
}

func TestSwarm_FirstEvolveInitializes(t *testing.T) {
	s := newTestSwarm(t, "x^2", 1, 4, -5, 5)
	require.Equal(t, 0, s.Generation())
	_, ok := s.Best()
	require.False(t, ok)

	s.Evolve()

	assert.Equal(t, 1, s.Generation())
	individuals := s.Individuals()
	require.Len(t, individuals, 4)

	for _, ind := range individuals {
		require.Len(t, ind.Position, 1)
		assert.GreaterOrEqual(t, ind.Position[0], -5.0)
		assert.LessOrEqual(t, ind.Position[0], 5.0)
		assert.True(t, ind.Valid)
		assert.InDelta(t, ind.Position[0]*ind.Position[0], ind.Fitness, 1e-12)
	}

	want, idx := minFitness(individuals)
	best, ok := s.Best()
	require.True(t, ok)
	assert.Equal(t, want, best.Fitness)
	assert.Equal(t, individuals[idx].Position, best.Position)

	points, seen := s.PersonalBests()
	for i := range points {
		assert.True(t, seen[i])
		assert.Equal(t, individuals[i].Position, points[i].Position)
		assert.Equal(t, individuals[i].Fitness, points[i].Fitness)
	}
}

func TestSwarm_TwoDimensionalInitialization(t *testing.T) {
	s := newTestSwarm(t, "x^2+y^2", 2, 50, -2, 3)
	s.Evolve()

	positions := s.Positions()
	require.Len(t, positions, 50)
	for _, p := range positions {
		require.Len(t, p, 2)
		for _, c := range p {
			assert.GreaterOrEqual(t, c, -2.0)
			assert.LessOrEqual(t, c, 3.0)
		}
	}
	for _, v := range s.Velocities() {
		assert.Len(t, v, 2)
	}
}

func TestSwarm_DegenerateBoundsGiveZeroVelocity(t *testing.T) {
	s := newTestSwarm(t, "x^2", 1, 5, 1.5, 1.5)
	s.Evolve()

	for _, p := range s.Positions() {
		assert.Equal(t, []float64{1.5}, p)
	}
	for _, v := range s.Velocities() {
		assert.Equal(t, []float64{0}, v)
	}

	s.Evolve()
	for _, p := range s.Positions() {
		assert.Equal(t, []float64{1.5}, p)
	}
}

func TestSwarm_GlobalBestNonIncreasing(t *testing.T) {
	for _, src := range []string{"x^2", "sin(3*x)+x^2/10", "x^2+y^2", "-(1+cos(12*sqrt(x^2+y^2)))/(0.5*(x^2+y^2)+2)"} {
		t.Run(src, func(t *testing.T) {
			dim := 1
			if src != "x^2" && src != "sin(3*x)+x^2/10" {
				dim = 2
			}
			s := newTestSwarm(t, src, dim, 30, -5.12, 5.12)
			s.Evolve()
			prev, ok := s.Best()
			require.True(t, ok)

			for i := 0; i < 60; i++ {
				s.Evolve()
				best, ok := s.Best()
				require.True(t, ok)
				assert.LessOrEqual(t, best.Fitness, prev.Fitness)
				prev = best
			}
			assert.Equal(t, 61, s.Generation())
		})
	}
}

func TestSwarm_PersonalBestNeverWorseThanCurrent(t *testing.T) {
	s := newTestSwarm(t, "x^2+y^2", 2, 20, -5, 5)
	for i := 0; i < 20; i++ {
		s.Evolve()
	}

	points, seen := s.PersonalBests()
	for i, ind := range s.Individuals() {
		require.True(t, seen[i])
		assert.LessOrEqual(t, points[i].Fitness, ind.Fitness)
	}
}

func TestSwarm_ResetThenEvolveReseeds(t *testing.T) {
	s := newTestSwarm(t, "x^2", 1, 10, -5, 5)
	for i := 0; i < 5; i++ {
		s.Evolve()
	}
	require.Equal(t, 5, s.Generation())

	s.Reset()
	assert.Equal(t, 0, s.Generation())
	assert.Empty(t, s.Individuals())
	assert.Empty(t, s.Velocities())
	_, ok := s.Best()
	assert.False(t, ok)

	s.Reset()
	assert.Equal(t, 0, s.Generation())

	s.Evolve()
	assert.Equal(t, 1, s.Generation())
	for _, p := range s.Positions() {
		assert.GreaterOrEqual(t, p[0], -5.0)
		assert.LessOrEqual(t, p[0], 5.0)
	}
}

func TestSwarm_PositionsAreNotClamped(t *testing.T) {
	problem := Problem{
		Objective:      objectiveOf(t, "-x"),
		Dimension:      1,
		Lower:          0,
		Upper:          1,
		PopulationSize: 20,
	}
	s := NewSwarm(problem, SwarmParams{W: 1, C1: 1, C2: 1}, sampling.New(7))
	for i := 0; i < 50; i++ {
		s.Evolve()
	}

	best, ok := s.Best()
	require.True(t, ok)
	assert.Greater(t, best.Position[0], 1.0)
}

func TestSwarm_DomainErrorsExcludedFromBest(t *testing.T) {
	s := newTestSwarm(t, "log(x)", 1, 40, -5, 5)
	s.Evolve()

	best, ok := s.Best()
	require.True(t, ok)
	assert.Greater(t, best.Position[0], 0.0)

	invalid := 0
	for _, ind := range s.Individuals() {
		if !ind.Valid {
			invalid++
			assert.LessOrEqual(t, ind.Position[0], 0.0)
		}
	}
	assert.Greater(t, invalid, 0)

	for i := 0; i < 10; i++ {
		s.Evolve()
		next, ok := s.Best()
		require.True(t, ok)
		assert.LessOrEqual(t, next.Fitness, best.Fitness)
		assert.Greater(t, next.Position[0], 0.0)
		best = next
	}
}

func TestSwarm_NoDefinedPoints(t *testing.T) {
	problem := Problem{
		Objective:      func([]float64) (float64, bool) { return 0, false },
		Dimension:      2,
		Lower:          -1,
		Upper:          1,
		PopulationSize: 5,
	}
	s := NewSwarm(problem, SwarmParams{W: 0.5, C1: 0.5, C2: 0.5}, sampling.New(1))

	assert.NotPanics(t, func() {
		s.Evolve()
		s.Evolve()
	})
	assert.Equal(t, 2, s.Generation())
	_, ok := s.Best()
	assert.False(t, ok)
}

func TestSwarm_TiesKeepFirstOccurrence(t *testing.T) {
	s := newTestSwarm(t, "1", 1, 6, -5, 5)
	s.Evolve()

	best, ok := s.Best()
	require.True(t, ok)
	assert.Equal(t, s.Positions()[0], best.Position)
}

func TestSwarm_SnapshotsAreCopies(t *testing.T) {
	s := newTestSwarm(t, "x^2", 1, 3, -5, 5)
	s.Evolve()

	positions := s.Positions()
	positions[0][0] = 1000
	assert.NotEqual(t, 1000.0, s.Positions()[0][0])

	best, _ := s.Best()
	best.Position[0] = 1000
	again, _ := s.Best()
	assert.NotEqual(t, 1000.0, again.Position[0])
}

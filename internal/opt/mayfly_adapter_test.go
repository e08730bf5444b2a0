package opt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sphere(x []float64) (float64, bool) {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum, true
}

func TestReference_Sphere(t *testing.T) {
	ref := NewReference(100, 20, 42)

	best, err := ref.Run(Problem{Objective: sphere, Dimension: 2, Lower: -10, Upper: 10})
	require.NoError(t, err)
	require.Len(t, best.Position, 2)

	assert.Less(t, best.Fitness, 0.1)
	for i, v := range best.Position {
		assert.Less(t, math.Abs(v), 1.0, "coordinate %d", i)
	}
}

func TestReference_Deterministic(t *testing.T) {
	problem := Problem{Objective: objectiveOf(t, "x^2+y^2"), Dimension: 2, Lower: -5, Upper: 5}

	first, err := NewReference(50, 20, 123).Run(problem)
	require.NoError(t, err)
	second, err := NewReference(50, 20, 123).Run(problem)
	require.NoError(t, err)

	assert.Equal(t, first.Fitness, second.Fitness)
}

func TestReference_RejectsSmallPopulation(t *testing.T) {
	_, err := NewReference(10, 5, 1).Run(Problem{Objective: sphere, Dimension: 1, Lower: -1, Upper: 1})
	assert.ErrorIs(t, err, ErrReferenceConfig)
}

func TestReference_RejectsZeroIterations(t *testing.T) {
	_, err := NewReference(0, 20, 1).Run(Problem{Objective: sphere, Dimension: 1, Lower: -1, Upper: 1})
	assert.ErrorIs(t, err, ErrReferenceConfig)
}

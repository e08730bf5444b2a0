package opt

import (
	"testing"

	"github.com/cwbudde/swarmviz/internal/expression"
	"github.com/stretchr/testify/require"
)

func objectiveOf(t *testing.T, src string) Objective {
	t.Helper()
	e := expression.Parse(src)
	require.NoError(t, e.Err(), "expression %q", src)
	return e.Eval
}

func minFitness(individuals []Individual) (float64, int) {
	best, idx := 0.0, -1
	for i, ind := range individuals {
		if ind.Valid && (idx < 0 || ind.Fitness < best) {
			best, idx = ind.Fitness, i
		}
	}
	return best, idx
}

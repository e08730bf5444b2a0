package session

import (
	"github.com/cwbudde/swarmviz/internal/opt"
	"github.com/cwbudde/swarmviz/internal/params"
	"gonum.org/v1/gonum/stat"
)

// Status is what the UI shows next to the plot.
type Status struct {
	Expression       string         `json:"expression"`
	ExpressionValid  bool           `json:"expressionValid"`
	ExpressionError  string         `json:"expressionError,omitempty"`
	Dimension        int            `json:"dimension"`
	Algorithm        string         `json:"algorithm"`
	AlgorithmLabel   string         `json:"algorithmLabel"`
	Fields           []params.Field `json:"fields"`
	BoundsOrdered    bool           `json:"boundsOrdered"`
	ParametersValid  bool           `json:"parametersValid"`
	Generation       int            `json:"generation"`
	Best             *opt.Point     `json:"best,omitempty"`
	Population       int            `json:"population"`
	Defined          int            `json:"defined"`
	MeanFitness      float64        `json:"meanFitness"`
	FitnessStdDev    float64        `json:"fitnessStdDev"`
	StaleGenerations int            `json:"staleGenerations"`
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	st := Status{
		Expression:       s.expr.String(),
		ExpressionValid:  s.expr.Valid(),
		Dimension:        s.expr.Dimension(),
		Algorithm:        s.algorithm,
		AlgorithmLabel:   opt.Label(s.algorithm),
		Fields:           s.form.Fields(),
		BoundsOrdered:    s.form.BoundsOrdered(),
		ParametersValid:  s.form.Valid(),
		Generation:       s.active.Generation(),
		StaleGenerations: s.stall.StaleCount(),
	}
	if err := s.expr.Err(); err != nil {
		st.ExpressionError = err.Error()
	}
	if best, ok := s.active.Best(); ok {
		st.Best = &best
	}

	individuals := s.active.Individuals()
	st.Population = len(individuals)

	fitness := make([]float64, 0, len(individuals))
	for _, ind := range individuals {
		if ind.Valid {
			fitness = append(fitness, ind.Fitness)
		}
	}
	st.Defined = len(fitness)
	switch {
	case len(fitness) > 1:
		st.MeanFitness, st.FitnessStdDev = stat.MeanStdDev(fitness, nil)
	case len(fitness) == 1:
		st.MeanFitness = fitness[0]
	}
	return st
}

// Package expression turns user-typed formulas in x (and optionally y) into
// real-valued objective functions.
package expression

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/PaesslerAG/gval"
)

var (
	// ErrParse marks malformed formulas, unknown identifiers and wrong arity.
	ErrParse = errors.New("expression: parse error")

	// ErrDomain marks evaluations that do not produce a finite real number.
	ErrDomain = errors.New("expression: domain error")
)

// Expression is an immutable compiled formula.
// A formula that fails to compile is still an Expression; it is simply never valid.
type Expression struct {
	src       string
	dim       int
	evaluable gval.Evaluable
	err       error
	valid     bool
}

// Parse compiles src. It never fails; compile errors are kept and reported by Err.
func Parse(src string) *Expression {
	e := &Expression{
		src: src,
		dim: InferDimension(src),
	}

	if strings.TrimSpace(src) == "" {
		e.err = fmt.Errorf("%w: empty expression", ErrParse)
		return e
	}

	evaluable, err := compile(src)
	if err != nil {
		e.err = err
		return e
	}
	e.evaluable = evaluable

	if _, err := e.Evaluate(Origin(e.dim)); err != nil {
		e.err = err
		return e
	}
	e.valid = true
	return e
}

func compile(src string) (evaluable gval.Evaluable, err error) {
	defer func() {
		if r := recover(); r != nil {
			evaluable, err = nil, fmt.Errorf("%w: %v", ErrParse, r)
		}
	}()

	// ** is accepted as a spelling of ^ so both share precedence and grouping.
	evaluable, err = language.NewEvaluable(strings.ReplaceAll(src, "**", "^"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return evaluable, nil
}

// InferDimension reports 2 when the formula mentions y, otherwise 1.
func InferDimension(src string) int {
	if strings.ContainsRune(src, 'y') {
		return 2
	}
	return 1
}

// Origin returns the point used for validity checks.
func Origin(dim int) []float64 {
	return make([]float64, dim)
}

// String returns the source text.
func (e *Expression) String() string { return e.src }

// Dimension is the number of free variables (1 or 2).
func (e *Expression) Dimension() int { return e.dim }

// Valid reports whether the formula compiles and evaluates to a finite value at the origin.
func (e *Expression) Valid() bool { return e.valid }

// Err returns the reason the expression is invalid, or nil.
func (e *Expression) Err() error { return e.err }

// Evaluate computes the formula at point, binding point[0] to x and point[1] to y.
func (e *Expression) Evaluate(point []float64) (value float64, err error) {
	if e.evaluable == nil {
		if e.err != nil {
			return 0, e.err
		}
		return 0, fmt.Errorf("%w: not compiled", ErrParse)
	}
	if len(point) == 0 || len(point) > 2 {
		return 0, fmt.Errorf("%w: point must have 1 or 2 coordinates, got %d", ErrParse, len(point))
	}

	defer func() {
		if r := recover(); r != nil {
			value, err = 0, fmt.Errorf("%w: %v", ErrParse, r)
		}
	}()

	value, err = e.evaluable.EvalFloat64(context.Background(), bindings(point))
	if err != nil {
		if errors.Is(err, ErrDomain) || errors.Is(err, ErrParse) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %q at %v is not finite", ErrDomain, e.src, point)
	}
	return value, nil
}

// Eval is Evaluate with the error collapsed into an ok flag.
func (e *Expression) Eval(point []float64) (float64, bool) {
	v, err := e.Evaluate(point)
	return v, err == nil
}

// Evaluate compiles src and evaluates it once at point.
func Evaluate(src string, point []float64) (float64, bool) {
	e := Parse(src)
	if e.evaluable == nil {
		return 0, false
	}
	return e.Eval(point)
}

func bindings(point []float64) map[string]interface{} {
	vars := make(map[string]interface{}, len(constants)+len(point))
	for name, v := range constants {
		vars[name] = v
	}
	vars["x"] = point[0]
	if len(point) > 1 {
		vars["y"] = point[1]
	}
	return vars
}

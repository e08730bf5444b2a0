package expression

import (
	"fmt"
	"math"

	"github.com/PaesslerAG/gval"
)

// unaryFunctions are the named functions available to formulas.
// log is the natural logarithm, matching ordinary calculator notation.
var unaryFunctions = map[string]func(float64) float64{
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"asin":  math.Asin,
	"acos":  math.Acos,
	"atan":  math.Atan,
	"sinh":  math.Sinh,
	"cosh":  math.Cosh,
	"tanh":  math.Tanh,
	"exp":   math.Exp,
	"log":   math.Log,
	"ln":    math.Log,
	"log10": math.Log10,
	"log2":  math.Log2,
	"sqrt":  math.Sqrt,
	"abs":   math.Abs,
	"floor": math.Floor,
	"ceil":  math.Ceil,
}

// constants are bound next to the variables on every evaluation.
var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

// language is gval arithmetic with mathematical ^ and the unary function table.
var language = newLanguage()

func newLanguage() gval.Language {
	bases := []gval.Language{gval.Arithmetic(), powerLanguage()}
	for name, fn := range unaryFunctions {
		bases = append(bases, gval.Function(name, unary(name, fn)))
	}
	return gval.NewLanguage(bases...)
}

// unary adapts a float function to gval's variadic call convention.
// Results outside the real domain are reported as ErrDomain.
func unary(name string, fn func(float64) float64) func(arguments ...interface{}) (interface{}, error) {
	return func(arguments ...interface{}) (interface{}, error) {
		if len(arguments) != 1 {
			return nil, fmt.Errorf("%w: %s expects 1 argument, got %d", ErrParse, name, len(arguments))
		}
		v, ok := arguments[0].(float64)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a number, got %T", ErrParse, name, arguments[0])
		}
		r := fn(v)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, fmt.Errorf("%w: %s(%g)", ErrDomain, name, v)
		}
		return r, nil
	}
}

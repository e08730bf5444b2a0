package expression

import (
	"context"
	"math"

	"github.com/PaesslerAG/gval"
)

// powerPrecedence is above every gval arithmetic operator, including **.
const powerPrecedence = 250

// powerLanguage gives ^ its usual mathematical meaning on top of gval
// arithmetic: it binds tighter than unary minus and groups to the right,
// so -x^2 is -(x^2) and 2^3^2 is 2^9.
func powerLanguage() gval.Language {
	return gval.NewLanguage(
		gval.PostfixOperator("^", func(c context.Context, p *gval.Parser, base gval.Evaluable) (gval.Evaluable, error) {
			exponent, err := parsePowerOperand(c, p)
			if err != nil {
				return nil, err
			}
			return power(p, base, exponent), nil
		}),
		gval.Precedence("^", powerPrecedence),
		gval.PrefixExtension('-', func(c context.Context, p *gval.Parser) (gval.Evaluable, error) {
			operand, err := parsePowerOperand(c, p)
			if err != nil {
				return nil, err
			}
			return negate(p, operand), nil
		}),
	)
}

// parsePowerOperand reads one operand and any ^ chain after it.
func parsePowerOperand(c context.Context, p *gval.Parser) (gval.Evaluable, error) {
	base, err := p.ParseNextExpression(c)
	if err != nil {
		return nil, err
	}
	if p.Scan() != '^' {
		p.Camouflage("operator")
		return base, nil
	}
	exponent, err := parsePowerOperand(c, p)
	if err != nil {
		return nil, err
	}
	return power(p, base, exponent), nil
}

func power(p *gval.Parser, base, exponent gval.Evaluable) gval.Evaluable {
	eval := func(c context.Context, v interface{}) (interface{}, error) {
		a, err := base.EvalFloat64(c, v)
		if err != nil {
			return nil, err
		}
		b, err := exponent.EvalFloat64(c, v)
		if err != nil {
			return nil, err
		}
		return math.Pow(a, b), nil
	}
	if base.IsConst() && exponent.IsConst() {
		if v, err := eval(context.Background(), nil); err == nil {
			return p.Const(v)
		}
	}
	return eval
}

func negate(p *gval.Parser, operand gval.Evaluable) gval.Evaluable {
	eval := func(c context.Context, v interface{}) (interface{}, error) {
		a, err := operand.EvalFloat64(c, v)
		if err != nil {
			return nil, err
		}
		return -a, nil
	}
	if operand.IsConst() {
		if v, err := eval(context.Background(), nil); err == nil {
			return p.Const(v)
		}
	}
	return eval
}

package processing

import (
	"context"

	goeval "github.com/edisonguo/govaluate"
	"github.com/juju/errors"
)

const MathAuthority = "math"

var operands = []Parameter{
	{Name: "a", Type: "double"},
	{Name: "b", Type: "double"},
}

var result = []Parameter{{Name: "result", Type: "double"}}

func binary(op func(a, b float64) float64) ProcessFunc {
	return func(ctx context.Context, inputs map[string]interface{}, mon Monitor) (map[string]interface{}, error) {
		a, err := FloatInput(inputs, "a")
		if err != nil {
			return nil, err
		}
		b, err := FloatInput(inputs, "b")
		if err != nil {
			return nil, err
		}
		mon.Progress(100, "")
		return map[string]interface{}{"result": op(a, b)}, nil
	}
}

// ParseExpression compiles expr and checks that every variable it uses is
// one of vars.
func ParseExpression(expr string, vars map[string]interface{}) (*goeval.EvaluableExpression, error) {
	e, err := goeval.NewEvaluableExpression(expr)
	if err != nil {
		return nil, errors.NewNotValid(err, "expression "+expr)
	}
	for _, token := range e.Tokens() {
		if token.Kind != goeval.VARIABLE {
			continue
		}
		name, ok := token.Value.(string)
		if !ok {
			return nil, errors.NotValidf("variable token %v", token.Value)
		}
		if _, found := vars[name]; !found {
			return nil, errors.NotValidf("unbound variable %q", name)
		}
	}
	return e, nil
}

func evaluate(ctx context.Context, inputs map[string]interface{}, mon Monitor) (map[string]interface{}, error) {
	expr, err := StringInput(inputs, "expression")
	if err != nil {
		return nil, err
	}
	params := make(map[string]interface{}, len(inputs))
	for k, v := range inputs {
		if k != "expression" {
			params[k] = v
		}
	}
	e, err := ParseExpression(expr, params)
	if err != nil {
		return nil, err
	}
	v, err := e.Evaluate(params)
	if err != nil {
		return nil, errors.Annotatef(err, "evaluating %q", expr)
	}
	mon.Progress(100, "")
	return map[string]interface{}{"result": v}, nil
}

// NewMathFactory provides add, multiply and expression.
func NewMathFactory(authority string) *StaticFactory {
	return NewStaticFactory(authority,
		NewProcess(Descriptor{
			Code:        "add",
			Title:       "Addition",
			Description: "Adds a and b.",
			Inputs:      operands,
			Outputs:     result,
		}, binary(func(a, b float64) float64 { return a + b })),
		NewProcess(Descriptor{
			Code:        "multiply",
			Title:       "Multiplication",
			Description: "Multiplies a by b.",
			Inputs:      operands,
			Outputs:     result,
		}, binary(func(a, b float64) float64 { return a * b })),
		NewProcess(Descriptor{
			Code:        "expression",
			Title:       "Expression",
			Description: "Evaluates an arithmetic or boolean expression over the other inputs.",
			Inputs:      []Parameter{{Name: "expression", Type: "string"}},
			Outputs:     []Parameter{{Name: "result", Type: "any"}},
		}, evaluate),
	)
}

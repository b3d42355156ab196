package processing

import (
	"context"
	"fmt"
	"math"
	"time"
)

const UtilAuthority = "util"

func echo(ctx context.Context, inputs map[string]interface{}, mon Monitor) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(inputs))
	for k, v := range inputs {
		out[k] = v
	}
	mon.Progress(100, "")
	return out, nil
}

// sleep waits for the requested duration in steps, checking for pause
// and cancellation between steps.
func sleep(ctx context.Context, inputs map[string]interface{}, mon Monitor) (map[string]interface{}, error) {
	seconds, err := FloatInput(inputs, "duration")
	if err != nil {
		return nil, err
	}
	steps := 10
	if _, ok := inputs["steps"]; ok {
		n, err := FloatInput(inputs, "steps")
		if err != nil {
			return nil, err
		}
		if n >= 1 {
			steps = int(n)
		}
	}

	step := time.Duration(seconds * float64(time.Second) / float64(steps))
	mon.Progress(math.NaN(), fmt.Sprintf("sleeping %gs", seconds))
	for i := 1; i <= steps; i++ {
		if err := mon.Checkpoint(ctx); err != nil {
			return nil, err
		}
		t := time.NewTimer(step)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		mon.Progress(float64(i)*100/float64(steps), fmt.Sprintf("step %d of %d", i, steps))
	}
	return map[string]interface{}{"slept": seconds}, nil
}

// NewUtilFactory provides echo and sleep.
func NewUtilFactory(authority string) *StaticFactory {
	return NewStaticFactory(authority,
		NewProcess(Descriptor{
			Code:        "echo",
			Title:       "Echo",
			Description: "Returns its inputs unchanged.",
		}, echo),
		NewProcess(Descriptor{
			Code:        "sleep",
			Title:       "Sleep",
			Description: "Waits for duration seconds, reporting progress in steps.",
			Inputs: []Parameter{
				{Name: "duration", Type: "double"},
				{Name: "steps", Type: "integer", Optional: true},
			},
			Outputs: []Parameter{{Name: "slept", Type: "double"}},
		}, sleep),
	)
}

// RegisterBuiltins registers the math, geometry and util authorities,
// each name prefixed with prefix.
func RegisterBuiltins(reg *Registry, prefix string) error {
	for _, f := range []Factory{
		NewMathFactory(prefix + MathAuthority),
		NewGeometryFactory(prefix + GeometryAuthority),
		NewUtilFactory(prefix + UtilAuthority),
	} {
		if err := reg.Register(f); err != nil {
			return err
		}
	}
	return nil
}

package processing

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"

	"github.com/nci/sdi/configuration"
)

type recordingMonitor struct {
	mu       sync.Mutex
	percents []float64
}

func (m *recordingMonitor) Progress(p float64, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.percents = append(m.percents, p)
}

func (m *recordingMonitor) Checkpoint(ctx context.Context) error { return ctx.Err() }

func newBuiltinRegistry(t *testing.T) *Registry {
	reg := NewRegistry()
	if err := RegisterBuiltins(reg, ""); err != nil {
		t.Fatalf("failed to register builtins: %v", err)
	}
	return reg
}

func TestRegisterDuplicate(t *testing.T) {
	reg := newBuiltinRegistry(t)
	if err := reg.Register(NewMathFactory(MathAuthority)); !errors.Is(err, errors.AlreadyExists) {
		t.Errorf("duplicate authority should fail with AlreadyExists, got %v", err)
	}
	auth := reg.Authorities()
	if len(auth) != 3 || auth[0] != "geometry" || auth[1] != "math" || auth[2] != "util" {
		t.Errorf("unexpected authorities %v", auth)
	}
}

func TestMathProcesses(t *testing.T) {
	reg := newBuiltinRegistry(t)
	ctx := context.Background()

	out, err := reg.Execute(ctx, "math", "add", map[string]interface{}{"a": 2.0, "b": "3.5"}, nil)
	if err != nil || out["result"] != 5.5 {
		t.Errorf("add: %v %v", out, err)
	}
	out, err = reg.Execute(ctx, "math", "multiply", map[string]interface{}{"a": 4.0, "b": 2.5}, nil)
	if err != nil || out["result"] != 10.0 {
		t.Errorf("multiply: %v %v", out, err)
	}
	out, err = reg.Execute(ctx, "math", "expression", map[string]interface{}{"expression": "x * 2 + y", "x": 3.0, "y": 1.0}, nil)
	if err != nil || out["result"] != 7.0 {
		t.Errorf("expression: %v %v", out, err)
	}

	_, err = reg.Execute(ctx, "math", "expression", map[string]interface{}{"expression": "x + z", "x": 1.0}, nil)
	if !errors.Is(err, errors.NotValid) {
		t.Errorf("unbound variable should be NotValid, got %v", err)
	}
	_, err = reg.Execute(ctx, "math", "add", map[string]interface{}{"a": 1.0}, nil)
	if !errors.Is(err, errors.NotValid) {
		t.Errorf("missing input should be NotValid, got %v", err)
	}
	_, err = reg.Execute(ctx, "math", "divide", nil, nil)
	if !errors.Is(err, errors.NotFound) {
		t.Errorf("unknown process should be NotFound, got %v", err)
	}
}

func TestGeometryProcesses(t *testing.T) {
	reg := newBuiltinRegistry(t)
	ctx := context.Background()

	point := map[string]interface{}{"type": "Point", "coordinates": []interface{}{1.0, 2.0}}
	out, err := reg.Execute(ctx, "geometry", "type", map[string]interface{}{"geometry": point}, nil)
	if err != nil || out["type"] != "Point" {
		t.Errorf("type of point: %v %v", out, err)
	}

	poly := `{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}`
	out, err = reg.Execute(ctx, "geometry", "type", map[string]interface{}{"geometry": poly}, nil)
	if err != nil || out["type"] != "Polygon" {
		t.Errorf("type of polygon feature: %v %v", out, err)
	}

	out, err = reg.Execute(ctx, "geometry", "towkt", map[string]interface{}{"geometry": poly}, nil)
	if err != nil {
		t.Fatalf("towkt: %v", err)
	}
	if wkt, _ := out["wkt"].(string); len(wkt) == 0 {
		t.Errorf("empty wkt for %s", poly)
	}

	_, err = reg.Execute(ctx, "geometry", "towkt", map[string]interface{}{"geometry": "{not json"}, nil)
	if !errors.Is(err, errors.NotValid) {
		t.Errorf("malformed geometry should be NotValid, got %v", err)
	}
}

func TestSleepProgress(t *testing.T) {
	reg := newBuiltinRegistry(t)
	mon := &recordingMonitor{}
	out, err := reg.Execute(context.Background(), "util", "sleep", map[string]interface{}{"duration": 0.04, "steps": 4.0}, mon)
	if err != nil || out["slept"] != 0.04 {
		t.Fatalf("sleep: %v %v", out, err)
	}
	if len(mon.percents) != 5 || !math.IsNaN(mon.percents[0]) || mon.percents[4] != 100 {
		t.Errorf("unexpected progress %v", mon.percents)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = reg.Execute(ctx, "util", "sleep", map[string]interface{}{"duration": 10.0}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("sleep should stop on cancellation, got %v", err)
	}
}

func TestListServiceProcesses(t *testing.T) {
	reg := newBuiltinRegistry(t)
	ctx := context.Background()

	all, err := ListRegistries(ctx, reg)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 registries, got %v %v", all, err)
	}

	pc := &configuration.ProcessContext{Processes: configuration.Processes{LoadAll: true}}
	got, err := ListServiceProcesses(ctx, reg, pc)
	if err != nil || len(got) != 3 {
		t.Errorf("loadAll should list every registry, got %v %v", got, err)
	}

	pc = &configuration.ProcessContext{Processes: configuration.Processes{
		Factories: []configuration.ProcessFactory{
			{AuthorityCode: "math", LoadAll: true, Exclude: []configuration.Process{{ID: "expression"}}},
			{AuthorityCode: "util", Include: []configuration.Process{{ID: "echo"}}},
			{AuthorityCode: "missing", LoadAll: true},
		},
	}}
	got, err = ListServiceProcesses(ctx, reg, pc)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected math and util, got %+v", got)
	}
	if got[0].Name != "math" || len(got[0].Processes) != 2 {
		t.Errorf("math should list add and multiply, got %+v", got[0])
	}
	if got[1].Name != "util" || len(got[1].Processes) != 1 || got[1].Processes[0].ID != "echo" {
		t.Errorf("util should list echo only, got %+v", got[1])
	}
}

// Package processing holds the catalog of processes a WPS instance can
// publish. Processes are grouped by authority into factories; factories
// are either built into the server or served by remote process workers.
package processing

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("sdi.processing")

// Parameter describes one input or output of a process.
type Parameter struct {
	Name        string `json:"name" xml:"name,attr"`
	Type        string `json:"type" xml:"type,attr"`
	Description string `json:"description,omitempty" xml:",chardata"`
	Optional    bool   `json:"optional,omitempty" xml:"optional,attr,omitempty"`
}

// Descriptor identifies a process within its authority.
type Descriptor struct {
	Code        string      `json:"code"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Inputs      []Parameter `json:"inputs,omitempty"`
	Outputs     []Parameter `json:"outputs,omitempty"`
}

// Monitor receives progress from a running process. Checkpoint blocks
// while the job is paused and returns an error once it is cancelled.
type Monitor interface {
	// Progress reports a percentage in [0, 100]; NaN means the
	// percentage is unknown and only the message is new.
	Progress(percent float64, msg string)
	Checkpoint(ctx context.Context) error
}

type nopMonitor struct{}

func (nopMonitor) Progress(float64, string) {}

func (nopMonitor) Checkpoint(ctx context.Context) error { return ctx.Err() }

// NopMonitor ignores progress and never pauses.
var NopMonitor Monitor = nopMonitor{}

type Process interface {
	Descriptor() Descriptor
	Execute(ctx context.Context, inputs map[string]interface{}, mon Monitor) (map[string]interface{}, error)
}

// Factory provides the processes of one authority.
type Factory interface {
	Authority() string
	Descriptors(ctx context.Context) ([]Descriptor, error)
	Process(ctx context.Context, code string) (Process, error)
}

// ProcessFunc is the body of a process.
type ProcessFunc func(ctx context.Context, inputs map[string]interface{}, mon Monitor) (map[string]interface{}, error)

type funcProcess struct {
	desc Descriptor
	fn   ProcessFunc
}

// NewProcess binds a descriptor to its implementation.
func NewProcess(desc Descriptor, fn ProcessFunc) Process {
	return &funcProcess{desc: desc, fn: fn}
}

func (p *funcProcess) Descriptor() Descriptor { return p.desc }

func (p *funcProcess) Execute(ctx context.Context, inputs map[string]interface{}, mon Monitor) (map[string]interface{}, error) {
	for _, in := range p.desc.Inputs {
		if _, ok := inputs[in.Name]; !ok && !in.Optional {
			return nil, errors.NotValidf("missing input %q of %s", in.Name, p.desc.Code)
		}
	}
	return p.fn(ctx, inputs, mon)
}

// StaticFactory is a Factory over a fixed set of processes.
type StaticFactory struct {
	authority string
	processes map[string]Process
}

func NewStaticFactory(authority string, procs ...Process) *StaticFactory {
	f := &StaticFactory{
		authority: authority,
		processes: make(map[string]Process, len(procs)),
	}
	for _, p := range procs {
		f.processes[p.Descriptor().Code] = p
	}
	return f
}

func (f *StaticFactory) Authority() string { return f.authority }

func (f *StaticFactory) Descriptors(ctx context.Context) ([]Descriptor, error) {
	descs := make([]Descriptor, 0, len(f.processes))
	for _, p := range f.processes {
		descs = append(descs, p.Descriptor())
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Code < descs[j].Code })
	return descs, nil
}

func (f *StaticFactory) Process(ctx context.Context, code string) (Process, error) {
	p, ok := f.processes[code]
	if !ok {
		return nil, errors.NotFoundf("process %s:%s", f.authority, code)
	}
	return p, nil
}

// FloatInput reads a numeric input given as a number or a string.
func FloatInput(inputs map[string]interface{}, name string) (float64, error) {
	switch v := inputs[name].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, errors.NotValidf("input %q value %q", name, v)
		}
		return f, nil
	case nil:
		return 0, errors.NotValidf("missing input %q", name)
	default:
		return 0, errors.NotValidf("input %q of type %T", name, v)
	}
}

// StringInput reads an input as text.
func StringInput(inputs map[string]interface{}, name string) (string, error) {
	switch v := inputs[name].(type) {
	case string:
		return v, nil
	case nil:
		return "", errors.NotValidf("missing input %q", name)
	default:
		return fmt.Sprint(v), nil
	}
}

// Percent clamps p into [0, 100], leaving NaN untouched.
func Percent(p float64) float64 {
	if math.IsNaN(p) {
		return p
	}
	return math.Max(0, math.Min(100, p))
}

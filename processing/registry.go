package processing

import (
	"context"
	"sort"
	"sync"

	"github.com/juju/errors"
)

// Registry maps authority codes to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds f. Authorities are unique.
func (r *Registry) Register(f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[f.Authority()]; ok {
		return errors.AlreadyExistsf("process authority %q", f.Authority())
	}
	r.factories[f.Authority()] = f
	logger.Debugf("registered process authority %s", f.Authority())
	return nil
}

func (r *Registry) Unregister(authority string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, authority)
}

func (r *Registry) Factory(authority string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[authority]
	if !ok {
		return nil, errors.NotFoundf("process authority %q", authority)
	}
	return f, nil
}

// Authorities returns the registered authority codes in order.
func (r *Registry) Authorities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Factories returns the registered factories ordered by authority.
func (r *Registry) Factories() []Factory {
	var out []Factory
	for _, name := range r.Authorities() {
		if f, err := r.Factory(name); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// Process resolves authority:code.
func (r *Registry) Process(ctx context.Context, authority, code string) (Process, error) {
	f, err := r.Factory(authority)
	if err != nil {
		return nil, err
	}
	return f.Process(ctx, code)
}

// Execute runs authority:code with inputs. A nil monitor is replaced by
// NopMonitor.
func (r *Registry) Execute(ctx context.Context, authority, code string, inputs map[string]interface{}, mon Monitor) (map[string]interface{}, error) {
	p, err := r.Process(ctx, authority, code)
	if err != nil {
		return nil, err
	}
	if mon == nil {
		mon = NopMonitor
	}
	if inputs == nil {
		inputs = map[string]interface{}{}
	}
	logger.Debugf("executing %s:%s", authority, code)
	out, err := p.Execute(ctx, inputs, mon)
	if err != nil {
		return nil, errors.Annotatef(err, "%s:%s", authority, code)
	}
	return out, nil
}

// Package registry binds specifications to their configurer and runtime
// worker, and tracks which service instances are running.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/im7mortal/kmutex"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"golang.org/x/sync/errgroup"

	"github.com/nci/sdi/configuration"
	"github.com/nci/sdi/configurer"
	"github.com/nci/sdi/metrics"
	"github.com/nci/sdi/servicedef"
)

var logger = loggo.GetLogger("sdi.registry")

// Binding is what a specification needs to be served.
type Binding struct {
	Configurer configurer.Constructor
	Worker     WorkerFunc
}

// DefaultBinding serves spec with its standard configurer and a
// ConfiguredWorker.
func DefaultBinding() Binding {
	return Binding{
		Configurer: configurer.New,
		Worker:     NewConfiguredWorker,
	}
}

type instanceState struct {
	worker  Worker
	status  configuration.Status
	message string
}

// ServiceInfo describes a registered specification.
type ServiceInfo struct {
	Spec     servicedef.Specification `json:"spec" xml:"spec"`
	Versions []string                 `json:"versions" xml:"versions>version"`
}

type Registry struct {
	deps configurer.Deps
	// lifecycle serialises start, stop and restart of one instance
	lifecycle *kmutex.Kmutex

	mu        sync.RWMutex
	bindings  map[servicedef.Specification]Binding
	instances map[string]*instanceState
}

func New(deps configurer.Deps) *Registry {
	return &Registry{
		deps:      deps,
		lifecycle: kmutex.New(),
		bindings:  make(map[servicedef.Specification]Binding),
		instances: make(map[string]*instanceState),
	}
}

func key(spec servicedef.Specification, id string) string {
	return string(spec) + "/" + id
}

// Register binds spec, replacing any earlier binding.
func (r *Registry) Register(spec servicedef.Specification, b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[spec] = b
	logger.Debugf("registered %s service", spec)
}

func (r *Registry) binding(spec servicedef.Specification) (Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[spec]
	if !ok {
		return Binding{}, &configuration.NotRunningServiceError{Spec: spec}
	}
	return b, nil
}

// Services lists the registered specifications in display order.
func (r *Registry) Services() []ServiceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ServiceInfo
	for _, spec := range servicedef.Specifications {
		if _, ok := r.bindings[spec]; ok {
			out = append(out, ServiceInfo{Spec: spec, Versions: servicedef.Versions(spec)})
		}
	}
	return out
}

// NewConfigurer instantiates the configurer of spec. It fails with
// NotRunningServiceError when spec is not registered.
func (r *Registry) NewConfigurer(spec servicedef.Specification) (configurer.Configurer, error) {
	b, err := r.binding(spec)
	if err != nil {
		return nil, err
	}
	c := b.Configurer(spec, r.deps)
	if c == nil {
		return nil, &configuration.NotRunningServiceError{Spec: spec}
	}
	return c, nil
}

func (r *Registry) setState(spec servicedef.Specification, id string, st *instanceState) {
	r.mu.Lock()
	r.instances[key(spec, id)] = st
	r.mu.Unlock()
	metrics.InstanceTransitions.WithLabelValues(string(spec), string(st.status)).Inc()
}

// Start loads an existing instance and runs its worker. A worker that
// fails to start leaves the instance in ERROR.
func (r *Registry) Start(ctx context.Context, spec servicedef.Specification, id string) error {
	r.lifecycle.Lock(key(spec, id))
	defer r.lifecycle.Unlock(key(spec, id))
	return r.start(ctx, spec, id)
}

func (r *Registry) start(ctx context.Context, spec servicedef.Specification, id string) error {
	b, err := r.binding(spec)
	if err != nil {
		return err
	}
	c, err := r.NewConfigurer(spec)
	if err != nil {
		return err
	}
	if err := c.EnsureExistingInstance(id); err != nil {
		return err
	}

	r.mu.RLock()
	st, ok := r.instances[key(spec, id)]
	r.mu.RUnlock()
	if ok && st.status == configuration.StatusStarted {
		return nil
	}

	w, err := b.Worker(ctx, c, id)
	if err != nil {
		logger.Errorf("starting %s instance %s: %v", spec, id, err)
		r.setState(spec, id, &instanceState{status: configuration.StatusError, message: err.Error()})
		return errors.Annotatef(err, "starting %s instance %q", spec, id)
	}
	r.setState(spec, id, &instanceState{worker: w, status: configuration.StatusStarted})
	logger.Infof("started %s instance %s", spec, id)
	return nil
}

// Stop stops a running instance.
func (r *Registry) Stop(spec servicedef.Specification, id string) error {
	r.lifecycle.Lock(key(spec, id))
	defer r.lifecycle.Unlock(key(spec, id))
	return r.stop(spec, id)
}

func (r *Registry) stop(spec servicedef.Specification, id string) error {
	if _, err := r.binding(spec); err != nil {
		return err
	}
	r.mu.RLock()
	st, ok := r.instances[key(spec, id)]
	r.mu.RUnlock()
	if !ok || st.status != configuration.StatusStarted {
		return errors.NotFoundf("running %s instance %q", spec, id)
	}
	if err := st.worker.Close(); err != nil {
		logger.Warningf("stopping %s instance %s: %v", spec, id, err)
	}
	r.setState(spec, id, &instanceState{status: configuration.StatusStopped})
	logger.Infof("stopped %s instance %s", spec, id)
	return nil
}

// Restart stops the instance when running and starts it again, calling
// the configurer hooks around it.
func (r *Registry) Restart(ctx context.Context, spec servicedef.Specification, id string) error {
	c, err := r.NewConfigurer(spec)
	if err != nil {
		return err
	}
	r.lifecycle.Lock(key(spec, id))
	defer r.lifecycle.Unlock(key(spec, id))
	c.BeforeRestart(id)
	if err := r.stop(spec, id); err != nil && !errors.Is(err, errors.NotFound) {
		return err
	}
	if err := r.start(ctx, spec, id); err != nil {
		return err
	}
	c.AfterRestart(id)
	return nil
}

// Forget drops every trace of an instance, stopping it first.
func (r *Registry) Forget(spec servicedef.Specification, id string) {
	r.lifecycle.Lock(key(spec, id))
	defer r.lifecycle.Unlock(key(spec, id))
	r.mu.Lock()
	st, ok := r.instances[key(spec, id)]
	delete(r.instances, key(spec, id))
	r.mu.Unlock()
	if ok && st.worker != nil {
		st.worker.Close()
	}
}

// Running reports whether an instance is started.
func (r *Registry) Running(spec servicedef.Specification, id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.instances[key(spec, id)]
	return ok && st.status == configuration.StatusStarted
}

// Worker returns the worker of a started instance.
func (r *Registry) Worker(spec servicedef.Specification, id string) (Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.instances[key(spec, id)]
	if !ok || st.worker == nil {
		return nil, errors.NotFoundf("running %s instance %q", spec, id)
	}
	return st.worker, nil
}

// Instances lists every configured instance of spec with its status.
func (r *Registry) Instances(spec servicedef.Specification) ([]configuration.Instance, error) {
	if _, err := r.binding(spec); err != nil {
		return nil, err
	}
	ids, err := r.deps.Dir.ListInstances(spec)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []configuration.Instance{}
	for _, id := range ids {
		inst := configuration.Instance{
			Identifier: id,
			Type:       spec,
			Status:     configuration.StatusNotStarted,
			Versions:   servicedef.Versions(spec),
		}
		if st, ok := r.instances[key(spec, id)]; ok {
			inst.Status = st.status
			inst.Message = st.message
		}
		out = append(out, inst)
	}
	return out, nil
}

func (r *Registry) specs() []servicedef.Specification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []servicedef.Specification
	for spec := range r.bindings {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// StartAll starts every configured instance of every registered
// specification concurrently. Instances that fail are left in ERROR and
// the first failure is returned.
func (r *Registry) StartAll(ctx context.Context) error {
	var g errgroup.Group
	for _, spec := range r.specs() {
		ids, err := r.deps.Dir.ListInstances(spec)
		if err != nil {
			return err
		}
		for _, id := range ids {
			spec, id := spec, id
			g.Go(func() error {
				return r.Start(ctx, spec, id)
			})
		}
	}
	return g.Wait()
}

// RestartRunning restarts every started instance, as on SIGHUP.
func (r *Registry) RestartRunning(ctx context.Context) {
	r.mu.RLock()
	type target struct {
		spec servicedef.Specification
		id   string
	}
	var targets []target
	for k, st := range r.instances {
		if st.status != configuration.StatusStarted {
			continue
		}
		spec, id := splitKey(k)
		targets = append(targets, target{spec, id})
	}
	r.mu.RUnlock()

	for _, t := range targets {
		if err := r.Restart(ctx, t.spec, t.id); err != nil {
			logger.Errorf("restarting %s instance %s: %v", t.spec, t.id, err)
		}
	}
}

// StopAll stops every started instance.
func (r *Registry) StopAll() {
	r.mu.RLock()
	var keys []string
	for k, st := range r.instances {
		if st.status == configuration.StatusStarted {
			keys = append(keys, k)
		}
	}
	r.mu.RUnlock()
	for _, k := range keys {
		spec, id := splitKey(k)
		r.Stop(spec, id)
	}
}

func splitKey(k string) (servicedef.Specification, string) {
	for i := 0; i < len(k); i++ {
		if k[i] == '/' {
			return servicedef.Specification(k[:i]), k[i+1:]
		}
	}
	return servicedef.Specification(k), ""
}

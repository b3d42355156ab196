package registry

import (
	"context"
	"sync"

	"github.com/juju/errors"

	"github.com/nci/sdi/configurer"
	"github.com/nci/sdi/servicedef"
)

// Worker is the runtime side of a started instance.
type Worker interface {
	Spec() servicedef.Specification
	Identifier() string
	// Configuration is the configuration the worker was started with.
	Configuration() interface{}
	Close() error
}

// WorkerFunc starts the worker of an existing instance.
type WorkerFunc func(ctx context.Context, c configurer.Configurer, id string) (Worker, error)

// ConfiguredWorker holds the loaded configuration of an instance. Data
// store backed instances have their store checked before they start.
type ConfiguredWorker struct {
	spec   servicedef.Specification
	id     string
	config interface{}

	mu     sync.Mutex
	closed bool
}

func NewConfiguredWorker(ctx context.Context, c configurer.Configurer, id string) (Worker, error) {
	config, err := c.InstanceConfiguration(id)
	if err != nil {
		return nil, err
	}
	if checker, ok := c.(configurer.DataSourceChecker); ok {
		if err := checker.CheckDataSource(ctx, id); err != nil {
			return nil, errors.Annotate(err, "data source")
		}
	}
	return &ConfiguredWorker{spec: c.Spec(), id: id, config: config}, nil
}

func (w *ConfiguredWorker) Spec() servicedef.Specification { return w.spec }
func (w *ConfiguredWorker) Identifier() string             { return w.id }
func (w *ConfiguredWorker) Configuration() interface{}     { return w.config }

func (w *ConfiguredWorker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.Errorf("%s instance %q already stopped", w.spec, w.id)
	}
	w.closed = true
	return nil
}

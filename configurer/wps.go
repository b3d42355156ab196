package configurer

import (
	"context"
	"os"
	"path/filepath"

	"github.com/juju/errors"

	"github.com/nci/sdi/configuration"
	"github.com/nci/sdi/processing"
	"github.com/nci/sdi/servicedef"
)

// WPSConfigurer manages processing services. Which processes an instance
// publishes is selected by the factories of its ProcessContext.
type WPSConfigurer struct {
	*Base
}

func NewWPSConfigurer(spec servicedef.Specification, deps Deps) Configurer {
	return &WPSConfigurer{Base: newBase(spec, deps,
		func() interface{} { return &configuration.ProcessContext{} },
		func(dir string) interface{} {
			return &configuration.ProcessContext{
				Processes:    configuration.Processes{LoadAll: true},
				TmpDirectory: filepath.Join(os.TempDir(), "sdi-wps"),
			}
		},
	)}
}

func (c *WPSConfigurer) processContext(id string) (*configuration.ProcessContext, error) {
	config, err := c.InstanceConfiguration(id)
	if err != nil {
		return nil, err
	}
	return config.(*configuration.ProcessContext), nil
}

func (c *WPSConfigurer) registry() (*processing.Registry, error) {
	if c.deps.Processes == nil {
		return nil, errors.NotSupportedf("process registry")
	}
	return c.deps.Processes, nil
}

// ListProcesses projects the processes published by an instance.
func (c *WPSConfigurer) ListProcesses(ctx context.Context, id string) ([]processing.RegistryDTO, error) {
	reg, err := c.registry()
	if err != nil {
		return nil, err
	}
	pc, err := c.processContext(id)
	if err != nil {
		return nil, err
	}
	return processing.ListServiceProcesses(ctx, reg, pc)
}

// AddProcesses publishes the given processes. A registry without
// processes publishes its whole authority. Nothing changes when the
// instance already publishes everything.
func (c *WPSConfigurer) AddProcesses(id string, registries []processing.RegistryDTO) error {
	_, err := c.update(id, func(config interface{}) (bool, error) {
		pc := config.(*configuration.ProcessContext)
		if pc.Processes.LoadAll {
			return false, nil
		}
		for _, reg := range registries {
			if reg.Name == "" {
				return false, errors.NotValidf("registry without name")
			}
			f := pc.Factory(reg.Name)
			if f == nil {
				pc.Processes.Factories = append(pc.Processes.Factories, configuration.ProcessFactory{
					AuthorityCode: reg.Name,
					LoadAll:       len(reg.Processes) == 0,
				})
				f = &pc.Processes.Factories[len(pc.Processes.Factories)-1]
			} else if len(reg.Processes) == 0 {
				f.LoadAll = true
				f.Include = nil
				f.Exclude = nil
			}
			for _, p := range reg.Processes {
				f.Add(p.ID)
			}
		}
		return true, nil
	})
	return err
}

// expand replaces a load everything selection by one full factory per
// registered authority, so that single authorities or processes can be
// taken out of it.
func (c *WPSConfigurer) expand(pc *configuration.ProcessContext) error {
	if !pc.Processes.LoadAll {
		return nil
	}
	reg, err := c.registry()
	if err != nil {
		return err
	}
	pc.Processes.LoadAll = false
	pc.Processes.Factories = nil
	for _, authority := range reg.Authorities() {
		pc.Processes.Factories = append(pc.Processes.Factories, configuration.ProcessFactory{
			AuthorityCode: authority,
			LoadAll:       true,
		})
	}
	return nil
}

// RemoveAuthority stops publishing every process of an authority.
func (c *WPSConfigurer) RemoveAuthority(id, code string) error {
	_, err := c.update(id, func(config interface{}) (bool, error) {
		pc := config.(*configuration.ProcessContext)
		if err := c.expand(pc); err != nil {
			return false, err
		}
		if !pc.RemoveFactory(code) {
			return false, errors.NotFoundf("process authority %q in %s instance %q", code, c.Spec(), id)
		}
		return true, nil
	})
	return err
}

// RemoveProcess stops publishing a single process.
func (c *WPSConfigurer) RemoveProcess(id, code, processID string) error {
	_, err := c.update(id, func(config interface{}) (bool, error) {
		pc := config.(*configuration.ProcessContext)
		if err := c.expand(pc); err != nil {
			return false, err
		}
		f := pc.Factory(code)
		if f == nil {
			return false, errors.NotFoundf("process authority %q in %s instance %q", code, c.Spec(), id)
		}
		if !f.Includes(processID) {
			return false, nil
		}
		f.Remove(processID)
		return true, nil
	})
	return err
}

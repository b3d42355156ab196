package configurer

import (
	"context"

	"github.com/juju/errors"

	"github.com/nci/sdi/configuration"
	"github.com/nci/sdi/servicedef"
)

// DataSourceChecker is implemented by configurers whose instances read
// from a data store.
type DataSourceChecker interface {
	CheckDataSource(ctx context.Context, id string) error
}

// CSWConfigurer manages catalogue instances backed by one metadata store.
type CSWConfigurer struct {
	*Base
}

func NewCSWConfigurer(spec servicedef.Specification, deps Deps) Configurer {
	return &CSWConfigurer{Base: newBase(spec, deps,
		func() interface{} { return &configuration.Automatic{} },
		func(dir string) interface{} {
			return &configuration.Automatic{
				Format:        configuration.FormatFilesystem,
				DataDirectory: dir,
				Profile:       string(servicedef.CSWISO),
			}
		},
	)}
}

func (c *CSWConfigurer) CheckDataSource(ctx context.Context, id string) error {
	config, err := c.InstanceConfiguration(id)
	if err != nil {
		return err
	}
	return configuration.CheckDataSource(ctx, *config.(*configuration.Automatic))
}

// SOSConfigurer manages observation services with a sensor description
// store and an observation store.
type SOSConfigurer struct {
	*Base
}

func NewSOSConfigurer(spec servicedef.Specification, deps Deps) Configurer {
	return &SOSConfigurer{Base: newBase(spec, deps,
		func() interface{} { return &configuration.SOSConfiguration{} },
		func(dir string) interface{} {
			return &configuration.SOSConfiguration{
				SMLConfiguration: configuration.Automatic{Format: configuration.FormatFilesystem, DataDirectory: dir},
				OMConfiguration:  configuration.Automatic{Format: configuration.FormatFilesystem, DataDirectory: dir},
				Profile:          "discovery",
			}
		},
	)}
}

// CheckDataSource checks the sensor store then the observation store.
func (c *SOSConfigurer) CheckDataSource(ctx context.Context, id string) error {
	config, err := c.InstanceConfiguration(id)
	if err != nil {
		return err
	}
	sos := config.(*configuration.SOSConfiguration)
	if err := configuration.CheckDataSource(ctx, sos.SMLConfiguration); err != nil {
		return errors.Annotate(err, "sensor store")
	}
	if err := configuration.CheckDataSource(ctx, sos.OMConfiguration); err != nil {
		return errors.Annotate(err, "observation store")
	}
	return nil
}

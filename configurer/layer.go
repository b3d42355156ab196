package configurer

import (
	"github.com/juju/errors"

	"github.com/nci/sdi/configuration"
	"github.com/nci/sdi/servicedef"
)

// LayerConfigurer manages the map services, whose configuration is a
// LayerContext.
type LayerConfigurer struct {
	*Base
}

func NewLayerConfigurer(spec servicedef.Specification, deps Deps) Configurer {
	return &LayerConfigurer{Base: newBase(spec, deps,
		func() interface{} { return &configuration.LayerContext{} },
		func(string) interface{} { return &configuration.LayerContext{} },
	)}
}

func (c *LayerConfigurer) layerContext(id string) (*configuration.LayerContext, error) {
	config, err := c.InstanceConfiguration(id)
	if err != nil {
		return nil, err
	}
	return config.(*configuration.LayerContext), nil
}

// Layers lists the explicitly published layers of an instance.
func (c *LayerConfigurer) Layers(id string) ([]configuration.Layer, error) {
	ctx, err := c.layerContext(id)
	if err != nil {
		return nil, err
	}
	layers := ctx.Layers()
	if layers == nil {
		layers = []configuration.Layer{}
	}
	return layers, nil
}

func (c *LayerConfigurer) AddLayer(id, sourceID string, layer configuration.Layer) error {
	if layer.Name == "" {
		return errors.NotValidf("layer without name")
	}
	if sourceID == "" {
		return errors.NotValidf("layer %q without source", layer.Name)
	}
	_, err := c.update(id, func(config interface{}) (bool, error) {
		config.(*configuration.LayerContext).AddLayer(sourceID, layer)
		return true, nil
	})
	return err
}

// RemoveLayer unpublishes name from every source of the instance.
func (c *LayerConfigurer) RemoveLayer(id, name string) (bool, error) {
	return c.update(id, func(config interface{}) (bool, error) {
		return config.(*configuration.LayerContext).RemoveLayer(name), nil
	})
}

// SetLayerIncluded publishes or hides a layer of a source. Setting the
// value the layer already has writes nothing and reports false.
func (c *LayerConfigurer) SetLayerIncluded(id, sourceID, name string, included bool) (bool, error) {
	return c.update(id, func(config interface{}) (bool, error) {
		src := config.(*configuration.LayerContext).Source(sourceID)
		if src == nil {
			return false, errors.NotFoundf("source %q of %s instance %q", sourceID, c.Spec(), id)
		}
		return src.SetIncluded(name, included), nil
	})
}

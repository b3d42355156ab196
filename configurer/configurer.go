// Package configurer reads and modifies the configuration of service
// instances on behalf of the administration API.
package configurer

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/im7mortal/kmutex"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/nci/sdi/configuration"
	"github.com/nci/sdi/processing"
	"github.com/nci/sdi/servicedef"
)

var logger = loggo.GetLogger("sdi.configurer")

// instanceLocks serialise configuration updates of an instance across
// every configurer of the process.
var instanceLocks = kmutex.New()

// Deps are the shared resources every configurer works with.
type Deps struct {
	Dir       *configuration.Directory
	Cache     configuration.Cache
	Processes *processing.Registry
}

// Configurer manages the instances of one specification.
type Configurer interface {
	Spec() servicedef.Specification

	CreateInstance(id string, md *configuration.ServiceMetadata) error
	DeleteInstance(id string) error
	RenameInstance(id, newID string) error

	// NewConfiguration returns an empty configuration value of the
	// type this configurer stores, suitable for decoding into.
	NewConfiguration() interface{}
	Configure(id string, config interface{}) error
	InstanceConfiguration(id string) (interface{}, error)
	EnsureExistingInstance(id string) error

	ServiceMetadata(id string) (*configuration.ServiceMetadata, error)
	SetServiceMetadata(id string, md *configuration.ServiceMetadata) error

	BeforeRestart(id string)
	AfterRestart(id string)
}

// Constructor builds the configurer bound to a specification.
type Constructor func(spec servicedef.Specification, deps Deps) Configurer

// Base implements the parts of Configurer common to every specification.
type Base struct {
	spec          servicedef.Specification
	deps          Deps
	locks         *kmutex.Kmutex
	newConfig     func() interface{}
	defaultConfig func(instanceDir string) interface{}
}

func newBase(spec servicedef.Specification, deps Deps, newConfig func() interface{}, defaultConfig func(string) interface{}) *Base {
	if deps.Cache == nil {
		deps.Cache = configuration.NoCache
	}
	return &Base{
		spec:          spec,
		deps:          deps,
		locks:         instanceLocks,
		newConfig:     newConfig,
		defaultConfig: defaultConfig,
	}
}

func (b *Base) Spec() servicedef.Specification { return b.spec }

func (b *Base) NewConfiguration() interface{} { return b.newConfig() }

func (b *Base) key(id string) string { return string(b.spec) + "/" + id }

func (b *Base) configKey(id string) string {
	return configuration.CacheKey(b.spec, id, configuration.ConfigFileName(b.spec))
}

func (b *Base) metadataKey(id string) string {
	return configuration.CacheKey(b.spec, id, configuration.MetadataFileName)
}

func (b *Base) EnsureExistingInstance(id string) error {
	return b.deps.Dir.EnsureExistingInstance(b.spec, id)
}

func (b *Base) defaultMetadata(id string) *configuration.ServiceMetadata {
	return &configuration.ServiceMetadata{
		Identifier: id,
		Name:       id,
		Versions:   servicedef.Versions(b.spec),
		Lang:       "eng",
	}
}

// CreateInstance creates the instance directory with a default
// configuration and metadata.
func (b *Base) CreateInstance(id string, md *configuration.ServiceMetadata) error {
	if err := b.deps.Dir.CreateInstanceDir(b.spec, id); err != nil {
		return err
	}
	if err := b.deps.Dir.WriteConfig(b.spec, id, b.defaultConfig(b.deps.Dir.InstanceDir(b.spec, id))); err != nil {
		return err
	}
	if md == nil {
		md = b.defaultMetadata(id)
	}
	if err := b.SetServiceMetadata(id, md); err != nil {
		return err
	}
	logger.Infof("created %s instance %s", b.spec, id)
	return nil
}

func (b *Base) DeleteInstance(id string) error {
	b.locks.Lock(b.key(id))
	defer b.locks.Unlock(b.key(id))
	if err := b.deps.Dir.DeleteInstanceDir(b.spec, id); err != nil {
		return err
	}
	b.deps.Cache.Delete(b.configKey(id))
	b.deps.Cache.Delete(b.metadataKey(id))
	logger.Infof("deleted %s instance %s", b.spec, id)
	return nil
}

func (b *Base) RenameInstance(id, newID string) error {
	b.locks.Lock(b.key(id))
	defer b.locks.Unlock(b.key(id))
	if err := b.deps.Dir.RenameInstanceDir(b.spec, id, newID); err != nil {
		return err
	}
	b.deps.Cache.Delete(b.configKey(id))
	b.deps.Cache.Delete(b.metadataKey(id))

	md := &configuration.ServiceMetadata{}
	err := b.deps.Dir.ReadFile(b.spec, newID, configuration.MetadataFileName, md)
	switch {
	case errors.Is(err, errors.NotFound):
	case err != nil:
		return err
	case md.Identifier == id:
		md.Identifier = newID
		if err := b.deps.Dir.WriteFile(b.spec, newID, configuration.MetadataFileName, md); err != nil {
			return err
		}
	}
	logger.Infof("renamed %s instance %s to %s", b.spec, id, newID)
	return nil
}

func (b *Base) checkType(id string, config interface{}) error {
	want := fmt.Sprintf("%T", b.newConfig())
	if got := fmt.Sprintf("%T", config); got != want {
		return &configuration.ConfigurationError{
			Spec:       b.spec,
			Identifier: id,
			Reason:     fmt.Sprintf("expected configuration of type %s, got %s", want, got),
		}
	}
	return nil
}

// Configure replaces the configuration of an instance. The instance
// directory must exist but its configuration file may be missing.
func (b *Base) Configure(id string, config interface{}) error {
	if err := b.checkType(id, config); err != nil {
		return err
	}
	if err := b.deps.Dir.WriteConfig(b.spec, id, config); err != nil {
		return err
	}
	b.deps.Cache.Delete(b.configKey(id))
	logger.Debugf("configured %s instance %s", b.spec, id)
	return nil
}

// InstanceConfiguration loads the configuration of an existing instance,
// from the cache when possible.
func (b *Base) InstanceConfiguration(id string) (interface{}, error) {
	if err := b.EnsureExistingInstance(id); err != nil {
		return nil, err
	}
	config := b.newConfig()
	key := b.configKey(id)
	if data, ok := b.deps.Cache.Get(key); ok {
		if err := xml.Unmarshal(data, config); err == nil {
			return config, nil
		}
		b.deps.Cache.Delete(key)
		config = b.newConfig()
	}

	if err := b.deps.Dir.ReadConfig(b.spec, id, config); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := xml.NewEncoder(&buf).Encode(config); err == nil {
		b.deps.Cache.Set(key, buf.Bytes())
	}
	return config, nil
}

// ServiceMetadata returns the stored metadata, or defaults when the
// instance has none.
func (b *Base) ServiceMetadata(id string) (*configuration.ServiceMetadata, error) {
	if err := b.EnsureExistingInstance(id); err != nil {
		return nil, err
	}
	md := &configuration.ServiceMetadata{}
	err := b.deps.Dir.ReadFile(b.spec, id, configuration.MetadataFileName, md)
	if errors.Is(err, errors.NotFound) {
		return b.defaultMetadata(id), nil
	}
	if err != nil {
		return nil, err
	}
	return md, nil
}

func (b *Base) SetServiceMetadata(id string, md *configuration.ServiceMetadata) error {
	if err := b.deps.Dir.EnsureInstanceDir(b.spec, id); err != nil {
		return err
	}
	md.Identifier = id
	if len(md.Versions) == 0 {
		md.Versions = servicedef.Versions(b.spec)
	}
	for _, v := range md.Versions {
		if _, err := servicedef.Lookup(b.spec, v); err != nil {
			return errors.NotValidf("%s version %s", b.spec, v)
		}
	}
	if err := b.deps.Dir.WriteFile(b.spec, id, configuration.MetadataFileName, md); err != nil {
		return err
	}
	b.deps.Cache.Delete(b.metadataKey(id))
	return nil
}

// BeforeRestart does nothing, must be overridden if needed.
func (b *Base) BeforeRestart(id string) {
	logger.Debugf("before restart of %s instance %s", b.spec, id)
}

// AfterRestart does nothing, must be overridden if needed.
func (b *Base) AfterRestart(id string) {
	logger.Debugf("after restart of %s instance %s", b.spec, id)
}

// update applies fn to the stored configuration under the instance lock
// and writes it back when fn reports a change.
func (b *Base) update(id string, fn func(config interface{}) (bool, error)) (bool, error) {
	b.locks.Lock(b.key(id))
	defer b.locks.Unlock(b.key(id))

	config, err := b.InstanceConfiguration(id)
	if err != nil {
		return false, err
	}
	changed, err := fn(config)
	if err != nil || !changed {
		return false, err
	}
	if err := b.Configure(id, config); err != nil {
		return false, err
	}
	return true, nil
}

// New builds the configurer matching spec.
func New(spec servicedef.Specification, deps Deps) Configurer {
	switch spec {
	case servicedef.WMS, servicedef.WMTS, servicedef.WFS, servicedef.WCS:
		return NewLayerConfigurer(spec, deps)
	case servicedef.CSW:
		return NewCSWConfigurer(spec, deps)
	case servicedef.SOS:
		return NewSOSConfigurer(spec, deps)
	case servicedef.WPS:
		return NewWPSConfigurer(spec, deps)
	}
	return nil
}

package configurer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/require"

	"github.com/nci/sdi/configuration"
	"github.com/nci/sdi/processing"
	"github.com/nci/sdi/servicedef"
)

// countingCache records writes to detect configuration rewrites.
type countingCache struct {
	*configuration.MemoryCache
	deletes int
}

func (c *countingCache) Delete(key string) {
	c.deletes++
	c.MemoryCache.Delete(key)
}

func newDeps(t *testing.T) (Deps, *countingCache) {
	reg := processing.NewRegistry()
	require.NoError(t, processing.RegisterBuiltins(reg, ""))
	cache := &countingCache{MemoryCache: configuration.NewMemoryCache()}
	return Deps{
		Dir:       configuration.NewDirectory(t.TempDir()),
		Cache:     cache,
		Processes: reg,
	}, cache
}

func TestCreateInstance(t *testing.T) {
	deps, _ := newDeps(t)
	c := New(servicedef.WMS, deps)

	require.NoError(t, c.CreateInstance("map", nil))
	require.NoError(t, c.EnsureExistingInstance("map"))

	err := c.CreateInstance("map", nil)
	require.True(t, errors.Is(err, errors.AlreadyExists), "got %v", err)

	md, err := c.ServiceMetadata("map")
	require.NoError(t, err)
	require.Equal(t, "map", md.Identifier)
	require.Equal(t, []string{"1.1.1", "1.3.0"}, md.Versions)

	config, err := c.InstanceConfiguration("map")
	require.NoError(t, err)
	require.IsType(t, &configuration.LayerContext{}, config)
}

func TestMissingConfigurationIsDistinct(t *testing.T) {
	deps, _ := newDeps(t)
	c := New(servicedef.CSW, deps)

	_, err := c.InstanceConfiguration("nothing")
	require.True(t, errors.Is(err, configuration.ErrNoSuchInstance), "got %v", err)

	require.NoError(t, os.MkdirAll(deps.Dir.InstanceDir(servicedef.CSW, "half"), 0755))
	_, err = c.InstanceConfiguration("half")
	require.True(t, errors.Is(err, configuration.ErrMissingConfiguration), "got %v", err)
	require.Contains(t, err.Error(), "directory exists but no configuration file")

	// Configure repairs the instance
	require.NoError(t, c.Configure("half", &configuration.Automatic{Format: configuration.FormatFilesystem, DataDirectory: "/tmp"}))
	require.NoError(t, c.EnsureExistingInstance("half"))
}

func TestConfigureRejectsWrongType(t *testing.T) {
	deps, _ := newDeps(t)
	c := New(servicedef.WPS, deps)
	require.NoError(t, c.CreateInstance("proc", nil))

	err := c.Configure("proc", &configuration.LayerContext{})
	require.True(t, errors.Is(err, configuration.ErrConfiguration), "got %v", err)
}

func TestInstanceConfigurationUsesCache(t *testing.T) {
	deps, _ := newDeps(t)
	c := New(servicedef.CSW, deps)
	require.NoError(t, c.CreateInstance("cat", nil))

	_, err := c.InstanceConfiguration("cat")
	require.NoError(t, err)

	// remove the file behind the cache's back; the directory check still
	// runs first so the instance is reported as broken
	path := deps.Dir.ConfigFile(servicedef.CSW, "cat")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))
	_, err = c.InstanceConfiguration("cat")
	require.True(t, errors.Is(err, configuration.ErrMissingConfiguration))

	require.NoError(t, os.WriteFile(path, data, 0644))
	config, err := c.InstanceConfiguration("cat")
	require.NoError(t, err)
	require.Equal(t, configuration.FormatFilesystem, config.(*configuration.Automatic).Format)
}

func TestRenameAndDelete(t *testing.T) {
	deps, _ := newDeps(t)
	c := New(servicedef.SOS, deps)
	require.NoError(t, c.CreateInstance("obs", &configuration.ServiceMetadata{Name: "Observations"}))

	require.NoError(t, c.RenameInstance("obs", "observations"))
	md, err := c.ServiceMetadata("observations")
	require.NoError(t, err)
	require.Equal(t, "observations", md.Identifier)
	require.Equal(t, "Observations", md.Name)

	err = c.DeleteInstance("obs")
	require.True(t, errors.Is(err, configuration.ErrNoSuchInstance), "got %v", err)
	require.NoError(t, c.DeleteInstance("observations"))
}

func TestSetServiceMetadataValidatesVersions(t *testing.T) {
	deps, _ := newDeps(t)
	c := New(servicedef.WFS, deps)
	require.NoError(t, c.CreateInstance("features", nil))

	err := c.SetServiceMetadata("features", &configuration.ServiceMetadata{Versions: []string{"3.0.0"}})
	require.True(t, errors.Is(err, errors.NotValid), "got %v", err)
}

func TestSetLayerIncludedIsIdempotent(t *testing.T) {
	deps, cache := newDeps(t)
	c := New(servicedef.WMS, deps).(*LayerConfigurer)
	require.NoError(t, c.CreateInstance("map", nil))
	require.NoError(t, c.AddLayer("map", "shapefiles", configuration.Layer{Name: "rivers"}))

	changed, err := c.SetLayerIncluded("map", "shapefiles", "roads", true)
	require.NoError(t, err)
	require.True(t, changed)

	writes := cache.deletes
	changed, err = c.SetLayerIncluded("map", "shapefiles", "roads", true)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, writes, cache.deletes, "second toggle must not write")

	layers, err := c.Layers("map")
	require.NoError(t, err)
	require.Len(t, layers, 2)

	removed, err := c.RemoveLayer("map", "rivers")
	require.NoError(t, err)
	require.True(t, removed)

	_, err = c.SetLayerIncluded("map", "nosuchsource", "roads", false)
	require.True(t, errors.Is(err, errors.NotFound), "got %v", err)
}

func TestAddLayerKeepsMetadataOnLoadAllSource(t *testing.T) {
	deps, _ := newDeps(t)
	c := New(servicedef.WMS, deps).(*LayerConfigurer)
	require.NoError(t, c.CreateInstance("map", nil))
	require.NoError(t, c.Configure("map", &configuration.LayerContext{
		Sources: []configuration.Source{{ID: "postgis", LoadAll: true}},
	}))

	require.NoError(t, c.AddLayer("map", "postgis", configuration.Layer{
		Name: "rivers", Title: "Rivers", Alias: "hydro", Styles: []string{"blue"},
	}))

	layers, err := c.Layers("map")
	require.NoError(t, err)
	require.Len(t, layers, 1)
	require.Equal(t, "Rivers", layers[0].Title)
	require.Equal(t, "hydro", layers[0].Alias)
	require.Equal(t, []string{"blue"}, layers[0].Styles)

	config, err := c.InstanceConfiguration("map")
	require.NoError(t, err)
	src := config.(*configuration.LayerContext).Source("postgis")
	require.True(t, src.LoadAll)
	require.True(t, src.IsIncluded("lakes"))
}

func TestCheckDataSource(t *testing.T) {
	deps, _ := newDeps(t)
	csw := New(servicedef.CSW, deps).(*CSWConfigurer)
	require.NoError(t, csw.CreateInstance("cat", nil))
	require.NoError(t, csw.CheckDataSource(context.Background(), "cat"))

	sos := New(servicedef.SOS, deps).(*SOSConfigurer)
	require.NoError(t, sos.CreateInstance("obs", nil))
	require.NoError(t, sos.CheckDataSource(context.Background(), "obs"))

	bad := &configuration.SOSConfiguration{
		SMLConfiguration: configuration.Automatic{Format: configuration.FormatFilesystem, DataDirectory: deps.Dir.Root},
		OMConfiguration:  configuration.Automatic{Format: configuration.FormatFilesystem, DataDirectory: filepath.Join(deps.Dir.Root, "none")},
	}
	require.NoError(t, sos.Configure("obs", bad))
	err := sos.CheckDataSource(context.Background(), "obs")
	require.True(t, errors.Is(err, errors.NotFound), "got %v", err)
	require.Contains(t, err.Error(), "observation store")
}

// Package configuration reads and writes the on-disk configuration of
// service instances. Each instance lives in
// <configDir>/<SPEC>/<identifier>/ and holds one XML configuration file
// whose name depends on the specification.
package configuration

import (
	"bytes"
	"encoding/xml"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/im7mortal/kmutex"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/nci/sdi/servicedef"
)

var logger = loggo.GetLogger("sdi.configuration")

const MetadataFileName = "serviceMetadata.xml"

var configFileNames = map[servicedef.Specification]string{
	servicedef.WMS:  "layerContext.xml",
	servicedef.WMTS: "layerContext.xml",
	servicedef.WFS:  "layerContext.xml",
	servicedef.WCS:  "layerContext.xml",
	servicedef.CSW:  "config.xml",
	servicedef.SOS:  "config.xml",
	servicedef.WPS:  "processContext.xml",
}

// ConfigFileName returns the configuration file name used by spec.
func ConfigFileName(spec servicedef.Specification) string {
	if name, ok := configFileNames[spec]; ok {
		return name
	}
	return "config.xml"
}

var identifierRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidateIdentifier rejects identifiers that are not usable as a single
// directory name.
func ValidateIdentifier(id string) error {
	if !identifierRE.MatchString(id) {
		return errors.NotValidf("instance identifier %q", id)
	}
	return nil
}

// Directory is the root of the instance configuration tree.
type Directory struct {
	Root  string
	locks *kmutex.Kmutex

	mu sync.Mutex
	// written holds the last content WriteFile put at each path
	written map[string][]byte
}

func NewDirectory(root string) *Directory {
	return &Directory{
		Root:    root,
		locks:   kmutex.New(),
		written: make(map[string][]byte),
	}
}

// WrittenHere reports whether path still holds the content this
// Directory last wrote to it.
func (d *Directory) WrittenHere(path string) bool {
	d.mu.Lock()
	want, ok := d.written[filepath.Clean(path)]
	d.mu.Unlock()
	if !ok {
		return false
	}
	got, err := ioutil.ReadFile(path)
	return err == nil && bytes.Equal(got, want)
}

func lockKey(spec servicedef.Specification, id string) string {
	return string(spec) + "/" + id
}

func (d *Directory) SpecDir(spec servicedef.Specification) string {
	return filepath.Join(d.Root, string(spec))
}

func (d *Directory) InstanceDir(spec servicedef.Specification, id string) string {
	return filepath.Join(d.SpecDir(spec), id)
}

func (d *Directory) ConfigFile(spec servicedef.Specification, id string) string {
	return filepath.Join(d.InstanceDir(spec, id), ConfigFileName(spec))
}

func isDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Trace(err)
	}
	return info.IsDir(), nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Trace(err)
	}
	return info.Mode().IsRegular(), nil
}

// EnsureInstanceDir fails with NoSuchInstanceError when the instance
// directory is absent.
func (d *Directory) EnsureInstanceDir(spec servicedef.Specification, id string) error {
	if err := ValidateIdentifier(id); err != nil {
		return err
	}
	ok, err := isDir(d.InstanceDir(spec, id))
	if err != nil {
		return err
	}
	if !ok {
		return &NoSuchInstanceError{Spec: spec, Identifier: id}
	}
	return nil
}

// EnsureExistingInstance fails with NoSuchInstanceError when the instance
// directory is absent and with MissingConfigurationError when the
// directory exists without its configuration file.
func (d *Directory) EnsureExistingInstance(spec servicedef.Specification, id string) error {
	if err := d.EnsureInstanceDir(spec, id); err != nil {
		return err
	}
	ok, err := isFile(d.ConfigFile(spec, id))
	if err != nil {
		return err
	}
	if !ok {
		return &MissingConfigurationError{Spec: spec, Identifier: id, File: ConfigFileName(spec)}
	}
	return nil
}

// ListInstances returns the identifiers of every existing instance of
// spec. Directories lacking a configuration file are skipped.
func (d *Directory) ListInstances(spec servicedef.Specification) ([]string, error) {
	entries, err := ioutil.ReadDir(d.SpecDir(spec))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "listing %s instances", spec)
	}

	var ids []string
	for _, e := range entries {
		if !e.IsDir() || ValidateIdentifier(e.Name()) != nil {
			continue
		}
		if err := d.EnsureExistingInstance(spec, e.Name()); err != nil {
			logger.Debugf("skipping %s/%s: %v", spec, e.Name(), err)
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// CreateInstanceDir creates an empty instance directory.
func (d *Directory) CreateInstanceDir(spec servicedef.Specification, id string) error {
	if err := ValidateIdentifier(id); err != nil {
		return err
	}
	d.locks.Lock(lockKey(spec, id))
	defer d.locks.Unlock(lockKey(spec, id))

	dir := d.InstanceDir(spec, id)
	ok, err := isDir(dir)
	if err != nil {
		return err
	}
	if ok {
		return errors.AlreadyExistsf("%s instance %q", spec, id)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Annotatef(err, "creating instance directory %s", dir)
	}
	return nil
}

// DeleteInstanceDir removes the instance directory and everything in it.
func (d *Directory) DeleteInstanceDir(spec servicedef.Specification, id string) error {
	if err := d.EnsureInstanceDir(spec, id); err != nil {
		return err
	}
	d.locks.Lock(lockKey(spec, id))
	defer d.locks.Unlock(lockKey(spec, id))

	if err := os.RemoveAll(d.InstanceDir(spec, id)); err != nil {
		return errors.Annotatef(err, "deleting %s instance %q", spec, id)
	}
	return nil
}

// RenameInstanceDir moves an instance to a new identifier.
func (d *Directory) RenameInstanceDir(spec servicedef.Specification, id, newID string) error {
	if err := d.EnsureInstanceDir(spec, id); err != nil {
		return err
	}
	if err := ValidateIdentifier(newID); err != nil {
		return err
	}
	ok, err := isDir(d.InstanceDir(spec, newID))
	if err != nil {
		return err
	}
	if ok {
		return errors.AlreadyExistsf("%s instance %q", spec, newID)
	}

	d.locks.Lock(lockKey(spec, id))
	defer d.locks.Unlock(lockKey(spec, id))
	if err := os.Rename(d.InstanceDir(spec, id), d.InstanceDir(spec, newID)); err != nil {
		return errors.Annotatef(err, "renaming %s instance %q to %q", spec, id, newID)
	}
	return nil
}

// ReadFile decodes the XML file name of an instance into v.
func (d *Directory) ReadFile(spec servicedef.Specification, id, name string, v interface{}) error {
	path := filepath.Join(d.InstanceDir(spec, id), name)
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NotFoundf("%s of %s instance %q", name, spec, id)
		}
		return &ConfigurationError{Spec: spec, Identifier: id, Reason: "reading " + name, Err: err}
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return &ConfigurationError{Spec: spec, Identifier: id, Reason: "parsing " + name, Err: err}
	}
	return nil
}

// WriteFile encodes v as XML into the file name of an instance. The file
// is replaced atomically and writers to the same instance are serialised.
func (d *Directory) WriteFile(spec servicedef.Specification, id, name string, v interface{}) error {
	data, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return &ConfigurationError{Spec: spec, Identifier: id, Reason: "encoding " + name, Err: err}
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.Write(data)
	buf.WriteByte('\n')

	d.locks.Lock(lockKey(spec, id))
	defer d.locks.Unlock(lockKey(spec, id))

	dir := d.InstanceDir(spec, id)
	tmp, err := ioutil.TempFile(dir, "."+name+".")
	if err != nil {
		return &ConfigurationError{Spec: spec, Identifier: id, Reason: "writing " + name, Err: err}
	}
	_, err = tmp.Write(buf.Bytes())
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	target := filepath.Join(dir, name)
	if err == nil {
		d.mu.Lock()
		d.written[filepath.Clean(target)] = buf.Bytes()
		d.mu.Unlock()
		err = os.Rename(tmp.Name(), target)
	}
	if err != nil {
		d.mu.Lock()
		delete(d.written, filepath.Clean(target))
		d.mu.Unlock()
		os.Remove(tmp.Name())
		return &ConfigurationError{Spec: spec, Identifier: id, Reason: "writing " + name, Err: err}
	}
	return nil
}

// ReadConfig loads the configuration file of an existing instance.
func (d *Directory) ReadConfig(spec servicedef.Specification, id string, v interface{}) error {
	if err := d.EnsureExistingInstance(spec, id); err != nil {
		return err
	}
	return d.ReadFile(spec, id, ConfigFileName(spec), v)
}

// WriteConfig stores the configuration file of an instance whose
// directory exists, repairing a missing file if necessary.
func (d *Directory) WriteConfig(spec servicedef.Specification, id string, v interface{}) error {
	if err := d.EnsureInstanceDir(spec, id); err != nil {
		return err
	}
	return d.WriteFile(spec, id, ConfigFileName(spec), v)
}

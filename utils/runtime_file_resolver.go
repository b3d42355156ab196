package utils

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("sdi.utils")

// RuntimeFileResolver finds data files such as templates by searching a
// colon separated list of directories, then the working directory and
// finally the directory of the executable.
type RuntimeFileResolver struct {
	DataDirs []string

	mu         sync.Mutex
	fileLookup map[string]string
}

func NewRuntimeFileResolver(searchPath string) *RuntimeFileResolver {
	resolver := &RuntimeFileResolver{
		fileLookup: make(map[string]string),
	}

	for _, dataDir := range strings.Split(searchPath, ":") {
		dataDir = strings.TrimSpace(dataDir)
		if len(dataDir) == 0 {
			continue
		}
		resolver.DataDirs = append(resolver.DataDirs, dataDir)
	}

	cwd, err := os.Getwd()
	if err == nil {
		resolver.DataDirs = append(resolver.DataDirs, cwd)
	} else {
		logger.Warningf("failed to get working directory: %v", err)
	}

	resolver.DataDirs = append(resolver.DataDirs, filepath.Dir(os.Args[0]))
	return resolver
}

// Resolve returns the first existing candidate for filePath.
func (r *RuntimeFileResolver) Resolve(filePath string) (string, error) {
	if filepath.IsAbs(filePath) {
		return filePath, checkFile(filePath)
	}

	for _, dataDir := range r.DataDirs {
		path := filepath.Clean(filepath.Join(dataDir, filePath))
		if checkFile(path) == nil {
			return path, nil
		}
	}
	return filePath, errors.NotFoundf("%s in %v", filePath, r.DataDirs)
}

// Lookup is Resolve with memoisation of successful lookups.
func (r *RuntimeFileResolver) Lookup(filePath string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if path, found := r.fileLookup[filePath]; found {
		return path, nil
	}

	path, err := r.Resolve(filePath)
	if err != nil {
		return "", err
	}
	r.fileLookup[filePath] = path
	return path, nil
}

func checkFile(filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return errors.NotFoundf("%s", filePath)
	} else if err != nil {
		return errors.Trace(err)
	}
	return nil
}

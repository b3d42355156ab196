package configuration

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/juju/errors"

	"github.com/nci/sdi/servicedef"
)

// ChangeFunc is told about a file of an instance being modified by
// anything but the Directory being watched.
type ChangeFunc func(spec servicedef.Specification, id, file string)

// Watch follows the configuration tree until ctx is done. Every change to
// an instance file drops its cache entry. Changes are reported to onChange
// unless the file holds what dir itself last wrote.
// Receiving SIGHUP calls onReload.
func Watch(ctx context.Context, dir *Directory, cache Cache, onChange ChangeFunc, onReload func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Annotate(err, "creating configuration watcher")
	}

	if err := os.MkdirAll(dir.Root, 0755); err != nil {
		w.Close()
		return errors.Annotatef(err, "creating configuration directory %s", dir.Root)
	}
	addTree(w, dir.Root, 0)

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)

	go func() {
		defer w.Close()
		defer signal.Stop(sighup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sighup:
				logger.Infof("caught SIGHUP, reloading services")
				if onReload != nil {
					onReload()
				}
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				handleEvent(w, dir, cache, onChange, event)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Errorf("configuration watcher: %v", err)
			}
		}
	}()
	return nil
}

// addTree watches root, the spec directories and the instance directories.
func addTree(w *fsnotify.Watcher, path string, depth int) {
	if err := w.Add(path); err != nil {
		logger.Warningf("cannot watch %s: %v", path, err)
		return
	}
	if depth >= 2 {
		return
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			addTree(w, filepath.Join(path, e.Name()), depth+1)
		}
	}
}

func handleEvent(w *fsnotify.Watcher, dir *Directory, cache Cache, onChange ChangeFunc, event fsnotify.Event) {
	rel, err := filepath.Rel(dir.Root, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")

	if event.Op&fsnotify.Create != 0 && len(parts) < 3 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			addTree(w, event.Name, len(parts))
		}
		return
	}
	if len(parts) != 3 || strings.HasPrefix(parts[2], ".") {
		return
	}

	spec, err := servicedef.ParseSpecification(parts[0])
	if err != nil {
		return
	}
	id, file := parts[1], parts[2]
	logger.Debugf("%s changed (%s)", event.Name, event.Op)
	cache.Delete(CacheKey(spec, id, file))
	if onChange == nil || dir.WrittenHere(event.Name) {
		return
	}
	onChange(spec, id, file)
}

package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher reports changes to configuration files. It watches the parent
// directories so that files replaced by editors or package managers are
// still noticed.
type Watcher struct {
	w       *fsnotify.Watcher
	files   map[string]bool
	changes chan struct{}
}

// NewWatcher watches the given files. Files whose directory does not exist
// are skipped.
func NewWatcher(paths ...string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	w := &Watcher{
		w:       fw,
		files:   make(map[string]bool),
		changes: make(chan struct{}, 1),
	}
	dirs := make(map[string]bool)
	for _, p := range paths {
		p = filepath.Clean(p)
		w.files[p] = true
		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			log.WithError(err).WithField("dir", dir).Warn("Not watching config directory")
			continue
		}
		dirs[dir] = true
	}
	return w, nil
}

// Changes delivers at most one pending notification however many changes
// happened since it was last drained.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Run forwards file events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if !w.files[filepath.Clean(ev.Name)] {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			log.WithField("path", ev.Name).Debugf("Config changed (%s)", ev.Op)
			select {
			case w.changes <- struct{}{}:
			default:
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("Config watcher error")
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.w.Close()
}

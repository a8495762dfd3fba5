package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"video-transcriber/internal/domain"
)

const reloadDebounce = 200 * time.Millisecond

// Watcher reloads settings whenever the settings file is written, created or
// renamed into place. The parent directory is watched so editors that replace
// the file atomically are still noticed.
type Watcher struct {
	store    *JSONStore
	log      *logrus.Logger
	onChange func(domain.Settings)
}

// NewWatcher binds a watcher to a store. onChange runs on the watcher goroutine.
func NewWatcher(store *JSONStore, log *logrus.Logger, onChange func(domain.Settings)) *Watcher {
	return &Watcher{store: store, log: log, onChange: onChange}
}

// Run blocks until ctx is done or the underlying watcher fails to start.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dir := filepath.Dir(w.store.Path())
	if err := fw.Add(dir); err != nil {
		return err
	}

	target := filepath.Clean(w.store.Path())
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			pending = time.After(reloadDebounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("settings watcher error")
		case <-pending:
			pending = nil
			settings, err := w.store.Load()
			if err != nil {
				w.log.WithError(err).WithField("path", target).Warn("reload settings")
				continue
			}
			w.log.WithField("path", target).Info("settings reloaded")
			if w.onChange != nil {
				w.onChange(settings)
			}
		}
	}
}

package param

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch monitors the parameter file at path and calls onChange with the
// reloaded document each time it is written. It runs until ctx is cancelled.
//
// The directory is watched rather than the file because editors and
// WriteFile replace the file by rename. A document that fails to parse is
// logged and skipped.
func Watch(ctx context.Context, path string, onChange func(Document)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	target := filepath.Clean(path)
	log.WithField("path", path).Info("param: watching for changes")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			doc, err := ReadFile(path)
			if err != nil {
				log.WithField("path", path).Errorf("param: reload failed, keeping current values: %v", err)
				continue
			}
			onChange(doc)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorf("param: watcher error: %v", err)
		}
	}
}

package web

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/edaniels/golog"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/mapeval/submap"
)

// WatchDirectory processes every new map file appearing in dir until the
// context is cancelled. Files with unrelated extensions are ignored.
// Processing failures are logged and do not stop the watcher.
func WatchDirectory(ctx context.Context, dir string, processor MapProcessor, logger golog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "cannot create file watcher")
	}
	defer utils.UncheckedErrorFunc(watcher.Close)

	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "cannot watch %q", dir)
	}
	logger.Infow("watching for new maps", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) || !isMapFile(event.Name) {
				continue
			}
			logger.Infow("new map detected", "path", event.Name)
			if err := processor.ProcessMap(ctx, event.Name); err != nil {
				logger.Errorw("map processing failed", "path", event.Name, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Errorw("watcher error", "error", err)
		}
	}
}

func isMapFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case submap.ExtCollection, submap.ExtField:
		return true
	}
	return false
}

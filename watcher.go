package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ManifestWatcher publishes *.yaml files from a directory into the store and
// republishes them when they change.
type ManifestWatcher struct {
	dir      string
	store    *ManifestStore
	log      *zap.Logger
	debounce time.Duration
}

// NewManifestWatcher returns a watcher for dir.
func NewManifestWatcher(dir string, store *ManifestStore, log *zap.Logger) *ManifestWatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &ManifestWatcher{dir: dir, store: store, log: log, debounce: 200 * time.Millisecond}
}

// isManifestFile reports whether path looks like a YAML manifest.
func isManifestFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	return ext == ".yaml" || ext == ".yml"
}

func manifestNameFor(path string) string {
	base := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

// ImportAll publishes every manifest file in the directory once.
func (w *ManifestWatcher) ImportAll(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading manifest dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !isManifestFile(e.Name()) {
			continue
		}
		w.importFile(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

// importFile publishes path unless its content is already effective. Bad
// files are logged and skipped.
func (w *ManifestWatcher) importFile(ctx context.Context, path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		w.log.Warn("reading manifest file", zap.String("path", path), zap.Error(err))
		return false
	}
	name := manifestNameFor(path)
	if _, current, err := w.store.Get(ctx, name); err == nil && current.Content == string(data) {
		return false
	}
	v, err := w.store.Publish(ctx, PublishRequest{
		Name:    name,
		Content: string(data),
		Author:  "watcher",
		Message: "imported from " + filepath.Base(path),
	})
	if err != nil {
		w.log.Warn("importing manifest file", zap.String("path", path), zap.Error(err))
		return false
	}
	w.log.Debug("manifest imported", zap.String("name", name), zap.Int("version", v.Version))
	return true
}

// Run imports the directory and then watches it until ctx is done.
func (w *ManifestWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	if err := w.ImportAll(ctx); err != nil {
		return err
	}

	// Editors often write a file in several steps; settle before importing.
	pending := map[string]struct{}{}
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isManifestFile(event.Name) || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("manifest watcher", zap.Error(err))
		case <-timer.C:
			for path := range pending {
				w.importFile(ctx, path)
			}
			clear(pending)
		}
	}
}

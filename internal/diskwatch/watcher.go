// Package diskwatch feeds edits of real source files into a build context.
//
// A Watcher observes the source tree with fsnotify, reloads changed files
// into the context's FileCache and publishes buildfs.TopicActivity once per
// debounced batch, which wakes any listening Aggregator.
package diskwatch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/absfs/buildfs"
)

// Watcher provides recursive watching of a source tree
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	matcher   *Matcher
	cache     *buildfs.FileCache
	events    *buildfs.Channel
	logger    *zap.Logger
}

// New creates a recursive watcher on the matcher's root. Every directory
// that is not skipped is registered.
func New(bctx *buildfs.Context, m *Matcher, interval time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		debouncer: NewDebouncer(interval),
		matcher:   m,
		cache:     bctx.Cache(),
		events:    bctx.Events(),
		logger:    bctx.Logger().Named("diskwatch"),
	}

	err = filepath.WalkDir(m.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if m.SkipDir(path) {
			return filepath.SkipDir
		}
		if watchErr := fsWatcher.Add(path); watchErr != nil {
			w.logger.Warn("failed to watch directory", zap.String("path", path), zap.Error(watchErr))
		}
		return nil
	})
	if err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

// Run processes filesystem events until ctx is done or the watcher is
// closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case batch := <-w.debouncer.Output():
			w.apply(batch)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	// start watching new directories
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.matcher.SkipDir(path) {
				if err := w.fsWatcher.Add(path); err != nil {
					w.logger.Warn("failed to watch new directory", zap.String("path", path), zap.Error(err))
				}
			}
			return
		}
	}

	if !w.matcher.Includes(path) {
		return
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.debouncer.Add(path, OpWrite)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.debouncer.Add(path, OpRemove)
	}
}

// apply loads a batch into the cache and signals activity once
func (w *Watcher) apply(batch []Change) {
	if len(batch) == 0 {
		return
	}

	for _, c := range batch {
		key := buildfs.Canonical(c.Path)
		if c.Op == OpRemove {
			w.cache.Remove(key)
			continue
		}

		data, err := os.ReadFile(c.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				w.cache.Remove(key)
				continue
			}
			w.logger.Warn("failed to reload file", zap.String("path", c.Path), zap.Error(err))
			continue
		}
		w.cache.Put(key, buildfs.FileRecord{Content: string(data)})
	}

	w.logger.Debug("source changes loaded", zap.Int("paths", len(batch)))
	w.events.Publish(buildfs.Event{
		Topic: buildfs.TopicActivity,
		Path:  buildfs.Canonical(batch[0].Path),
	})
}

// Close stops the watcher and releases resources
func (w *Watcher) Close() error {
	return w.fsWatcher.Close()
}

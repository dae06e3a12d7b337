package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the dataset directory and the catalog file and rebuilds
// the store once changes settle.
type Watcher struct {
	builder      *Builder
	watcher      *fsnotify.Watcher
	exts         map[string]bool
	catalog      string
	debounceTime time.Duration
	mu           sync.Mutex
	pending      map[string]time.Time
	done         chan struct{}
	logger       *slog.Logger
	onRebuild    func(*Stats, error)
}

// NewWatcher creates a file system watcher for the builder's inputs.
func NewWatcher(builder *Builder) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	cfg := builder.Config()
	catalog := cfg.CatalogPath
	if abs, err := filepath.Abs(catalog); err == nil {
		catalog = abs
	}

	return &Watcher{
		builder:      builder,
		watcher:      fsWatcher,
		exts:         extensionSet(cfg.Extensions),
		catalog:      catalog,
		debounceTime: 500 * time.Millisecond,
		pending:      make(map[string]time.Time),
		done:         make(chan struct{}),
		logger:       builder.logger,
	}, nil
}

// OnRebuild registers a callback invoked after every triggered rebuild.
func (w *Watcher) OnRebuild(fn func(*Stats, error)) {
	w.onRebuild = fn
}

// Start begins watching for changes. Blocks until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	cfg := w.builder.Config()
	if err := w.addRecursive(expandPath(cfg.DatasetDir)); err != nil {
		w.logger.Warn("watching dataset", "path", cfg.DatasetDir, "error", err)
	}
	if err := w.watcher.Add(filepath.Dir(w.catalog)); err != nil {
		w.logger.Warn("watching catalog", "path", w.catalog, "error", err)
	}

	// Start debounce goroutine.
	go w.debounceLoop(ctx)

	// Process events.
	for {
		select {
		case <-ctx.Done():
			close(w.done)
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// handleEvent queues a change that affects the store.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}

	// For new directories, start watching them.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addRecursive(event.Name)
			return
		}
	}

	if !w.relevant(event.Name) {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// relevant reports whether path is the catalog or a collection image.
func (w *Watcher) relevant(path string) bool {
	if abs, err := filepath.Abs(path); err == nil && abs == w.catalog {
		return true
	}
	return w.exts[lowerExt(path)]
}

// debounceLoop periodically processes pending changes.
func (w *Watcher) debounceLoop(ctx context.Context) {
	ticker := time.NewTicker(w.debounceTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

// processPending rebuilds once when every pending change has settled
// (no changes within the debounce window).
func (w *Watcher) processPending(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	now := time.Now()
	for _, lastChange := range w.pending {
		if now.Sub(lastChange) < w.debounceTime {
			w.mu.Unlock()
			return
		}
	}
	changed := len(w.pending)
	w.pending = make(map[string]time.Time)
	w.mu.Unlock()

	w.logger.Info("rebuilding embedding store", "changes", changed)
	stats, err := w.builder.Build(ctx)
	if err != nil {
		w.logger.Error("rebuild failed", "error", err)
	}
	if w.onRebuild != nil {
		w.onRebuild(stats, err)
	}
}

// addRecursive adds a directory and all subdirectories to the watcher.
func (w *Watcher) addRecursive(path string) error {
	return filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != path && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return w.watcher.Add(p)
		}
		return nil
	})
}

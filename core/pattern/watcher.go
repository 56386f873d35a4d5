package pattern

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses bursts of editor writes into one reload.
const DefaultDebounce = 100 * time.Millisecond

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce sets the reload debounce interval.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithReloadHook registers fn to run after every successful reload.
func WithReloadHook(fn func(*Library)) WatcherOption {
	return func(w *Watcher) {
		if fn != nil {
			w.hooks = append(w.hooks, fn)
		}
	}
}

// Watcher serves the library loaded from a pattern file and swaps in a new
// library when the file changes. A file that fails to load is logged and the
// previous library stays active.
type Watcher struct {
	path     string
	logger   *slog.Logger
	debounce time.Duration
	hooks    []func(*Library)

	current atomic.Pointer[Library]
	reloads atomic.Int64

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher loads path and returns a watcher serving it. Call Run to start
// watching for changes.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     filepath.Clean(path),
		logger:   slog.Default(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}

	lib, err := LoadFile(w.path)
	if err != nil {
		return nil, err
	}
	w.current.Store(lib)
	return w, nil
}

// Current implements Source.
func (w *Watcher) Current() *Library {
	return w.current.Load()
}

// Reloads returns the number of successful reloads since creation.
func (w *Watcher) Reloads() int64 {
	return w.reloads.Load()
}

// Reload loads the file now. On error the active library is unchanged.
func (w *Watcher) Reload() error {
	lib, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn("pattern reload failed, keeping previous library",
			"path", w.path, "error", err)
		return err
	}

	w.current.Store(lib)
	w.reloads.Add(1)
	w.logger.Info("pattern library reloaded", "path", w.path, "patterns", lib.Len())

	for _, fn := range w.hooks {
		fn(lib)
	}
	return nil
}

// Run watches the pattern file until ctx is cancelled. The parent directory
// is watched so that editors replacing the file by rename are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("pattern watcher error", "path", w.path, "error", err)
		}
	}
}

// handleEvent schedules a reload for relevant events on the watched file.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	w.scheduleReload()
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		_ = w.Reload()
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

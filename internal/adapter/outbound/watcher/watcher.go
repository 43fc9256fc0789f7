// Package watcher implements the File Watcher: it watches the rule file's
// parent directory for filesystem events, debounces bursts of them, and
// triggers a Rule Store reload.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	debounce "github.com/romdo/go-debounce"
)

// Reloader is the Rule Store contract the watcher drives.
type Reloader interface {
	Reload() error
}

// DefaultDebounceInterval is applied when Watcher is constructed with a
// zero interval.
const DefaultDebounceInterval = 1 * time.Second

// Watcher watches a single rule file for changes and debounces reload
// triggers. Must not be started twice; Stop is idempotent.
type Watcher struct {
	path     string
	filename string
	reloader Reloader
	logger   *slog.Logger
	interval time.Duration

	fsw       *fsnotify.Watcher
	debounced func(func())

	started atomic.Bool
	stopped atomic.Bool
	done    chan struct{}
	mu      sync.Mutex
}

// New constructs a Watcher for the rule file at path. If interval is zero,
// DefaultDebounceInterval is used.
func New(path string, reloader Reloader, logger *slog.Logger, interval time.Duration) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{
		path:     absPath,
		filename: filepath.Base(absPath),
		reloader: reloader,
		logger:   logger,
		interval: interval,
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	w.debounced = debounce.New(interval)
	return w, nil
}

// Start begins watching the rule file's parent directory. Calling Start
// twice is a programming error; the second call is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return nil
	}
	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.filename {
				continue
			}
			w.debounced(w.TriggerReload)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// TriggerReload verifies the file still exists then reloads the Rule
// Store, exposed for manual/test invocation bypassing the debounce timer.
func (w *Watcher) TriggerReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := os.Stat(w.path); err != nil {
		w.logger.Warn("rule file not found, skipping reload", "path", w.path, "error", err)
		return
	}
	if err := w.reloader.Reload(); err != nil {
		w.logger.Warn("rule reload failed, keeping previous snapshot", "error", err)
		return
	}
	w.logger.Info("rule reload triggered by file watcher", "path", w.path)
}

// Stop stops watching. Idempotent.
func (w *Watcher) Stop() error {
	if !w.stopped.CompareAndSwap(false, true) {
		return nil
	}
	err := w.fsw.Close()
	if w.started.Load() {
		<-w.done
	}
	return err
}

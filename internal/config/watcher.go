package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

// DebounceDelay collapses the burst of events an editor produces on save.
const DebounceDelay = 500 * time.Millisecond

// TuningWatcher hot-reloads a tuning file and notifies subscribers.
type TuningWatcher struct {
	path   string
	base   Tuning
	logger *zap.Logger

	mu        sync.RWMutex
	current   Tuning
	callbacks []func(Tuning)

	watcher  *fsnotify.Watcher
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewTuningWatcher creates a watcher for path. base supplies the values for
// keys the file leaves out. The file is read once immediately; a missing file
// keeps base, an unparsable one is an error. An empty path serves base and
// never reloads.
func NewTuningWatcher(path string, base Tuning, logger *zap.Logger) (*TuningWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &TuningWatcher{
		path:     path,
		base:     base,
		current:  base,
		logger:   logger,
		debounce: DebounceDelay,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if path == "" {
		return w, nil
	}
	w.path = filepath.Clean(path)
	t, err := w.read()
	switch {
	case err == nil:
		w.current = t
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}
	return w, nil
}

// Start begins watching. The directory is watched rather than the file so
// that editors replacing the file by rename are still seen.
func (w *TuningWatcher) Start() error {
	if w.path == "" {
		return nil
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		fsWatcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}
	w.watcher = fsWatcher
	go w.watchLoop()

	w.logger.Info("Tuning hot reloading enabled", zap.String("file", w.path))
	return nil
}

// Stop ends the watch loop and waits for it to exit.
func (w *TuningWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.watcher != nil {
			<-w.doneCh
		}
	})
}

// Current returns the last applied tuning.
func (w *TuningWatcher) Current() Tuning {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback run after every effective change.
func (w *TuningWatcher) OnChange(callback func(Tuning)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

func (w *TuningWatcher) watchLoop() {
	defer close(w.doneCh)
	defer w.watcher.Close()

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("Tuning file changed",
				zap.String("file", event.Name),
				zap.String("operation", event.Op.String()),
			)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.Reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-w.stopCh:
			w.logger.Info("Stopping tuning watcher")
			return
		}
	}
}

func (w *TuningWatcher) read() (Tuning, error) {
	t, err := LoadTuningFile(w.path, w.base)
	if err != nil {
		return Tuning{}, err
	}
	clamped, adjusted := t.Clamped()
	if len(adjusted) > 0 {
		w.logger.Warn("Tuning values clamped", zap.Strings("fields", adjusted))
	}
	return clamped, nil
}

// Reload rereads the file and notifies subscribers if anything changed. A file
// that fails to parse leaves the current tuning in place.
func (w *TuningWatcher) Reload() {
	if w.path == "" {
		return
	}
	next, err := w.read()
	if err != nil {
		w.logger.Error("Invalid tuning file after change, keeping current values",
			zap.String("file", w.path),
			zap.Error(err),
		)
		return
	}

	w.mu.Lock()
	prev := w.current
	if prev == next {
		w.mu.Unlock()
		w.logger.Debug("Tuning unchanged after reload")
		return
	}
	w.current = next
	callbacks := append([]func(Tuning){}, w.callbacks...)
	w.mu.Unlock()

	w.logger.Info("Tuning reloaded",
		zap.String("diff", cmp.Diff(prev, next)),
		zap.Int("callbacks_notified", len(callbacks)),
	)
	for _, cb := range callbacks {
		w.notify(cb, next)
	}
}

func (w *TuningWatcher) notify(cb func(Tuning), t Tuning) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Tuning callback panicked", zap.Any("panic", r))
		}
	}()
	cb(t)
}

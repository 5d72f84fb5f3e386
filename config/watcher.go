package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/oxbowlabs/faultline/errors"
	"github.com/oxbowlabs/faultline/logger"
)

// ReloadCallback is called when a watched file changes, after debouncing.
type ReloadCallback func(path string) error

// Watcher watches a configuration file (the main config or the patterns
// file) and triggers reload callbacks when it changes. Rapid successive
// writes are debounced.
type Watcher struct {
	path           string
	watcher        *fsnotify.Watcher
	mu             sync.RWMutex
	callbacks      []ReloadCallback
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
}

// NewWatcher creates a watcher for the given file.
func NewWatcher(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}

	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "failed to watch file %s", path)
	}

	return &Watcher{
		path:           path,
		watcher:        fsw,
		debouncePeriod: 500 * time.Millisecond, // Debounce rapid file changes
	}, nil
}

// OnReload registers a callback to be called when the file changes.
func (w *Watcher) OnReload(callback ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching for file changes.
func (w *Watcher) Start() {
	go w.watchLoop()
}

// Stop stops watching.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Only reload on Write or Create events
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				logger.Infow("Watched file changed",
					"file", event.Name,
					"op", event.Op.String())
				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnw("File watcher error",
				logger.FieldError, err)
		}
	}
}

// scheduleReload debounces rapid file changes and triggers reload
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(w.debouncePeriod, w.reload)
}

// reload calls all registered callbacks. A failing callback does not stop
// the remaining ones.
func (w *Watcher) reload() {
	w.mu.RLock()
	callbacks := make([]ReloadCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback(w.path); err != nil {
			logger.Warnw("Reload callback error",
				"file", w.path,
				logger.FieldError, err)
		}
	}
}

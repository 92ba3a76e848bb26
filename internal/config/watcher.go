package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadDebounce is the delay used to coalesce bursts of filesystem events
// (editors commonly write via a temp file + rename) into a single reload.
const ReloadDebounce = 100 * time.Millisecond

// Watcher reloads a child-config file whenever it changes on disk and
// delivers the new list to a callback. It watches the file's parent
// directory rather than the file itself, so it survives editors that
// replace the file via rename instead of in-place write.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func([]ChildConfig, error)
	logger   *slog.Logger

	debounceMu    sync.Mutex
	debounceTimer *time.Timer

	done    chan struct{}
	stopped chan struct{}
}

// NewWatcher creates a watcher for path. Call Start to begin watching.
func NewWatcher(path string, onChange func([]ChildConfig, error), logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		path:     path,
		watcher:  fsw,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Start begins the event-processing loop in a new goroutine.
func (w *Watcher) Start() {
	go w.eventLoop()
}

// Close stops the watcher. After Close returns, onChange will not be called
// again.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	<-w.stopped
	return err
}

func (w *Watcher) eventLoop() {
	defer close(w.stopped)

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)) {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("config watcher error", "error", err)
			}
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(ReloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	children, err := Load(w.path)
	if w.logger != nil {
		if err != nil {
			w.logger.Warn("config reload failed", "path", w.path, "error", err)
		} else {
			w.logger.Info("config reloaded", "path", w.path, "children", len(children))
		}
	}
	w.onChange(children, err)
}

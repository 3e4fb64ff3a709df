package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher signals when the config file has settled after an edit, so the
// viewer can reload endpoints without a restart.
type Watcher struct {
	watcher   *fsnotify.Watcher
	path      string
	debounce  time.Duration
	log       *slog.Logger
	onChange  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewWatcher creates a watcher for the given config path.
// It watches the parent directory so editors that replace the file by rename
// are still seen.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher := &Watcher{
		watcher:  w,
		path:     path,
		debounce: 100 * time.Millisecond,
		log:      logger.With("component", "config"),
		onChange: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	go watcher.loop()
	return watcher, nil
}

// Path returns the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Changes returns a channel that receives a signal when the file changes.
func (w *Watcher) Changes() <-chan struct{} {
	return w.onChange
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

// reloadOps are the events that can change what Load would read. Editors
// that save atomically write a temp file and rename it over the config, which
// arrives as Create (or Rename on some platforms) for the config's name; others
// remove the file before writing it again.
const reloadOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove

func (w *Watcher) loop() {
	var timer *time.Timer
	base := filepath.Base(w.path)
	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base || event.Op&reloadOps == 0 {
				continue
			}
			w.log.Debug("config event", "op", event.Op.String())
			// Debounce: a save is often several events.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.settle)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "path", w.path, "error", err)
		}
	}
}

// settle signals a change once the burst is over. A config that is gone
// (mid-save, or deleted) is not signalled; its reappearance will be.
func (w *Watcher) settle() {
	if !isFile(w.path) {
		w.log.Debug("config missing, waiting for it to reappear", "path", w.path)
		return
	}
	select {
	case w.onChange <- struct{}{}:
	default: // already signaled
	}
}

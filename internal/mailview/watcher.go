// Package mailview turns changes to message files on disk into view-change
// notifications for the scan trigger.
package mailview

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/raysh454/mailtrust/internal/logging"
)

// Notifier receives a change signal. *trigger.Trigger satisfies it.
type Notifier interface {
	Notify()
}

// Watcher watches message files and notifies the view bound to each one.
// Parent directories are watched so that atomic saves (write to temp, rename
// over the target) are seen.
type Watcher struct {
	logger  logging.Logger
	watcher *fsnotify.Watcher
	running atomic.Bool
	closed  atomic.Bool

	mu      sync.RWMutex
	targets map[string][]Notifier
	dirs    map[string]struct{}

	notified atomic.Int64
}

func NewWatcher(logger logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	return &Watcher{
		logger:  logger.With(logging.Field{Key: "component", Value: "mailview"}),
		watcher: fw,
		targets: make(map[string][]Notifier),
		dirs:    make(map[string]struct{}),
	}, nil
}

// Add binds n to path. It may be called before or after Start.
func (w *Watcher) Add(path string, n Notifier) error {
	if n == nil {
		return errors.New("mailview: notifier is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.dirs[dir]; !ok {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watching directory %s: %w", dir, err)
		}
		w.dirs[dir] = struct{}{}
	}
	w.targets[abs] = append(w.targets[abs], n)
	w.logger.Debug("watching message", logging.Field{Key: "path", Value: abs})
	return nil
}

// Start processes file events until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if w.closed.Load() {
		return errors.New("watcher stopped")
	}
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("watcher already running")
	}
	go w.processEvents(ctx)
	return nil
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.dispatch(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", logging.Field{Key: "error", Value: err.Error()})

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) dispatch(name string) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return
	}
	w.mu.RLock()
	targets := append([]Notifier(nil), w.targets[abs]...)
	w.mu.RUnlock()

	for _, n := range targets {
		w.notified.Add(1)
		n.Notify()
	}
}

// Notified counts notifications delivered so far.
func (w *Watcher) Notified() int64 {
	return w.notified.Load()
}

// Stop closes the underlying watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	return w.watcher.Close()
}

package registry

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback is called after the crawlers root has changed and the
// debounce window has elapsed.
type ChangeCallback func()

// Watcher monitors the crawlers root for installs and removals so callers
// can refresh derived state (web extension mounts) while serving.
type Watcher struct {
	watcher  *fsnotify.Watcher
	callback ChangeCallback
	debounce time.Duration

	timer  *time.Timer
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewWatcher creates a watcher over the registry's root directory
func NewWatcher(reg *Registry, callback ChangeCallback) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(reg.Root()); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		watcher:  fsw,
		callback: callback,
		debounce: 500 * time.Millisecond, // Debounce rapid changes
	}, nil
}

// Start begins processing filesystem events until the context is done
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	go w.loop(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.scheduleCallback()
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) scheduleCallback() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.callback)
}

// Stop stops the watcher and releases its resources
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

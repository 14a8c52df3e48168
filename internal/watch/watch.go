// Package watch reloads files that are edited while the bot runs.
package watch

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events an editor produces on save.
const DefaultDebounce = 100 * time.Millisecond

// Watcher calls a callback when a watched file changes.
//
// Files are replaced by rename on every write, so the parent directory is
// watched and events are matched by file name.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu     sync.Mutex
	files  map[string]func()
	timers map[string]*time.Timer
}

func New(debounce time.Duration) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:  watcher,
		debounce: debounce,
		files:    make(map[string]func()),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Add registers onChange for path. The file does not need to exist yet.
func (w *Watcher) Add(path string, onChange func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	w.mu.Lock()
	w.files[abs] = onChange
	w.mu.Unlock()
	return nil
}

// Start processes events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Start(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("File watcher error: %v", err)

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	name := filepath.Clean(event.Name)
	onChange, ok := w.files[name]
	if !ok {
		return
	}

	if t, ok := w.timers[name]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[name] = time.AfterFunc(w.debounce, func() {
		log.Printf("%s changed on disk, reloading", name)
		onChange()
	})
}

// Close stops watching. Pending callbacks are cancelled.
func (w *Watcher) Close() error {
	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

// Package watcher reports changes to individual files such as the
// knowledge base, surviving editors that replace files by rename.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/perftune/pkg/perftune/logging"
)

// DefaultDebounce coalesces the burst of events a single save produces.
const DefaultDebounce = 200 * time.Millisecond

// relevant are the operations that can change a watched file's content.
const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename

// Watcher watches files through their parent directories.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu     sync.Mutex
	dirs   map[string]map[string]bool // dir -> watched file names
	timers map[string]*time.Timer
	closed bool
}

// New creates a new Watcher. A non-positive debounce uses DefaultDebounce.
func New(debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		watcher:  fsw,
		debounce: debounce,
		dirs:     make(map[string]map[string]bool),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Watch starts watching file. The file itself may not exist yet, but its
// directory must.
func (w *Watcher) Watch(file string) error {
	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	dir, name := filepath.Split(abs)
	dir = filepath.Clean(dir)

	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "watch", Path: dir, Err: os.ErrInvalid}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	names, ok := w.dirs[dir]
	if !ok {
		if err := w.watcher.Add(dir); err != nil {
			logging.Get("watcher").Warn("failed to add watch", "path", dir, "error", err)
			return err
		}
		names = make(map[string]bool)
		w.dirs[dir] = names
	}
	names[name] = true
	return nil
}

// Unwatch stops watching file, dropping the directory watch once no
// watched file remains in it.
func (w *Watcher) Unwatch(file string) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return
	}
	dir, name := filepath.Split(abs)
	dir = filepath.Clean(dir)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	names, ok := w.dirs[dir]
	if !ok {
		return
	}
	delete(names, name)
	if len(names) == 0 {
		_ = w.watcher.Remove(dir)
		delete(w.dirs, dir)
	}
	if t, ok := w.timers[abs]; ok {
		t.Stop()
		delete(w.timers, abs)
	}
}

// Watched returns the absolute paths currently watched.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []string
	for dir, names := range w.dirs {
		for name := range names {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out
}

// Run starts the event loop. It blocks until the context is cancelled or
// the watcher is closed. onChange is called once per quiet period for each
// watched file that was written, created or renamed.
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) {
	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			w.handleEvent(event, onChange)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get("watcher").Error("watcher error", "error", err)
		}
	}
}

// handleEvent (re)arms the debounce timer of a watched file.
func (w *Watcher) handleEvent(event fsnotify.Event, onChange func(path string)) {
	if event.Op&relevant == 0 || onChange == nil {
		return
	}

	path := filepath.Clean(event.Name)
	dir, name := filepath.Split(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || !w.dirs[filepath.Clean(dir)][name] {
		return
	}

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		closed := w.closed
		w.mu.Unlock()
		if !closed {
			onChange(path)
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = make(map[string]*time.Timer)
	w.dirs = make(map[string]map[string]bool)
	return w.watcher.Close()
}

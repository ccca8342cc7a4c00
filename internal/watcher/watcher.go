// Package watcher follows the local state file so changes written by other
// hrconnect processes reach the running tracker.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventType is the kind of change seen on the state file.
type EventType int

const (
	EventStateWritten EventType = iota
	EventStateRemoved
)

func (t EventType) String() string {
	switch t {
	case EventStateWritten:
		return "state_written"
	case EventStateRemoved:
		return "state_removed"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Event is a debounced change of the watched file.
type Event struct {
	Type EventType
	Path string
}

// Watcher monitors one file. The parent directory is watched so atomic
// replace-by-rename is seen.
type Watcher struct {
	path string
	dir  string

	fsWatcher *fsnotify.Watcher
	events    chan Event
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once

	debouncer *debouncer

	emitMu sync.Mutex
	closed bool

	wg sync.WaitGroup
}

const (
	defaultDebounceDelay = 100 * time.Millisecond
	defaultEventsBuffer  = 16
	defaultErrorsBuffer  = 10
)

// New creates a watcher for path using the default debounce delay (100ms).
func New(path string) (*Watcher, error) {
	return NewWithDebounceDelay(path, defaultDebounceDelay)
}

// NewWithDebounceDelay creates a watcher with a configurable debounce delay.
func NewWithDebounceDelay(path string, delay time.Duration) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("ensure state dir exists: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		path:      absPath,
		dir:       dir,
		fsWatcher: fsw,
		events:    make(chan Event, defaultEventsBuffer),
		errors:    make(chan error, defaultErrorsBuffer),
		done:      make(chan struct{}),
		debouncer: newDebouncer(delay),
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run()
	}()

	return w, nil
}

// Path returns the watched file.
func (w *Watcher) Path() string { return w.path }

func (w *Watcher) run() {
	defer func() {
		w.debouncer.Stop()
		w.emitMu.Lock()
		w.closed = true
		close(w.events)
		close(w.errors)
		w.emitMu.Unlock()
	}()

	for {
		select {
		case <-w.done:
			return
		case evt, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if translated := w.translateEvent(evt); translated != nil {
				e := *translated
				w.debouncer.Trigger(e.Path, func() { w.emitEvent(e) })
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.emitError(err)
		}
	}
}

// Events returns a channel of debounced changes.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns a channel of watcher errors.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Close stops the watcher and releases OS resources.
func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	w.closeOnce.Do(func() {
		close(w.done)
	})
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) emitEvent(e Event) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.events <- e:
	default:
		// Best-effort: drop if consumer is stalled.
	}
}

func (w *Watcher) emitError(err error) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

func (w *Watcher) translateEvent(e fsnotify.Event) *Event {
	if e.Name == "" || filepath.Clean(e.Name) != w.path {
		return nil
	}
	switch {
	case e.Op&(fsnotify.Create|fsnotify.Write) != 0:
		return &Event{Type: EventStateWritten, Path: w.path}
	case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		return &Event{Type: EventStateRemoved, Path: w.path}
	default:
		return nil
	}
}

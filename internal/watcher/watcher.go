// Package watcher reports changes to a single document on disk.
//
// The parent directory is watched rather than the file itself, so editors
// that save by writing a temporary file and renaming it over the document
// keep producing events, and a document that does not exist yet can be
// watched until it appears.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"

	"github.com/conneroisu/livedown/internal/errors"
	"github.com/conneroisu/livedown/internal/logging"
	"github.com/conneroisu/livedown/internal/monitoring"
)

// DefaultDebounce is the quiet period applied when no WithDebounce option is given.
const DefaultDebounce = 50 * time.Millisecond

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
	// Coalesced is the number of filesystem notifications folded into this event.
	Coalesced int
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Watcher delivers debounced change events for one file.
type Watcher struct {
	path      string
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	logger    logging.Logger
	metrics   *monitoring.Metrics

	events chan ChangeEvent
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

type options struct {
	debounce   time.Duration
	clock      clockwork.Clock
	logger     logging.Logger
	metrics    *monitoring.Metrics
	bufferSize int
}

// Option configures a Watcher.
type Option func(*options)

// WithDebounce sets the quiet period. Zero disables coalescing.
func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// WithClock replaces the clock driving the debouncer.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Open starts watching path. The file itself may be missing, its directory
// may not.
func Open(path string, opts ...Option) (*Watcher, error) {
	o := options{
		debounce:   DefaultDebounce,
		clock:      clockwork.NewRealClock(),
		logger:     logging.NewNopLogger(),
		bufferSize: 16,
	}
	for _, opt := range opts {
		opt(&o)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeWatchFailed, "cannot resolve document path").WithPath(path)
	}
	abs = filepath.Clean(abs)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeWatchFailed, "cannot create file watcher").WithPath(abs)
	}

	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, errors.WrapIO(err, errors.ErrCodeWatchFailed, "cannot watch document directory").WithPath(abs)
	}

	w := &Watcher{
		path:    abs,
		fsw:     fsw,
		logger:  o.logger.WithComponent("watcher").With("path", abs),
		metrics: o.metrics,
		events:  make(chan ChangeEvent, o.bufferSize),
		errors:  make(chan error, o.bufferSize),
		done:    make(chan struct{}),
	}
	w.debouncer = NewDebouncer(o.clock, o.debounce, w.emit)

	w.wg.Add(1)
	go w.watchLoop()

	w.logger.Debug(context.Background(), "Watching document", "debounce", o.debounce)
	return w, nil
}

// Path returns the absolute, cleaned path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Events returns the channel of debounced changes. It is closed by Close.
func (w *Watcher) Events() <-chan ChangeEvent {
	return w.events
}

// Errors returns the channel of recoverable watch errors. It is closed by Close.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Close stops watching. Once it returns no further event is delivered and
// both channels are closed. Calling Close again returns the first result.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.closeErr = w.fsw.Close()
		w.wg.Wait()
		w.debouncer.Stop()
		close(w.events)
		close(w.errors)
		w.logger.Debug(context.Background(), "Stopped watching document")
	})
	return w.closeErr
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.reportError(err)
		}
	}
}

func (w *Watcher) handleFsnotifyEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	// Permission changes do not alter content
	if event.Op == fsnotify.Chmod {
		return
	}

	var eventType EventType
	switch {
	case event.Op.Has(fsnotify.Create):
		eventType = EventTypeCreated
	case event.Op.Has(fsnotify.Write):
		eventType = EventTypeModified
	case event.Op.Has(fsnotify.Remove):
		eventType = EventTypeDeleted
	case event.Op.Has(fsnotify.Rename):
		eventType = EventTypeRenamed
	default:
		eventType = EventTypeModified
	}

	changeEvent := ChangeEvent{
		Type: eventType,
		Path: w.path,
	}
	if info, err := os.Stat(w.path); err == nil {
		changeEvent.ModTime = info.ModTime()
		changeEvent.Size = info.Size()
	}

	w.debouncer.Trigger(changeEvent)
}

// emit runs under the debouncer lock. A full buffer already holds an event
// that will make the consumer read the latest content, so dropping is safe.
func (w *Watcher) emit(event ChangeEvent) {
	select {
	case w.events <- event:
		w.metrics.FileEvent(event.Type.String())
	default:
		w.logger.Debug(context.Background(), "Event buffer full, dropping change", "type", event.Type.String())
	}
}

func (w *Watcher) reportError(err error) {
	if err == nil {
		return
	}
	le := errors.WrapIO(err, errors.ErrCodeWatchFailed, "file watcher error").WithPath(w.path)
	le.Recoverable = true
	w.logger.Warn(context.Background(), err, "File watcher error")

	select {
	case w.errors <- le:
	default:
	}
}

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	mcerrors "github.com/juergengeck/memory.core/internal/errors"
)

// Watcher observes a single spool directory for record files. The directory
// is watched flat: subdirectories are ignored, as are hidden files and the
// scratch files editors and atomic writers leave behind.
type Watcher struct {
	dir       string
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	events    chan Event
	errors    chan error
	logger    *slog.Logger
	stopCh    chan struct{}
	mu        sync.Mutex
	stopped   bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a changed file is emitted.
func WithDebounce(window time.Duration) WatcherOption {
	return func(w *Watcher) {
		if window > 0 {
			w.debouncer = NewDebouncer(window)
		}
	}
}

// WithWatcherLogger sets the logger. A nil logger is ignored.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a watcher for the given spool directory.
func NewWatcher(dir string, opts ...WatcherOption) (*Watcher, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("spool directory is required")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		dir:       dir,
		fsw:       fsw,
		debouncer: NewDebouncer(DefaultDebounce),
		events:    make(chan Event, 64),
		errors:    make(chan error, 10),
		logger:    slog.Default(),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start watches the spool directory until ctx is cancelled or Stop is
// called. The directory is created if it does not exist.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return mcerrors.New(mcerrors.ErrCodeSpoolIO, fmt.Sprintf("failed to create spool directory %s", w.dir), err)
	}
	if err := w.fsw.Add(w.dir); err != nil {
		return mcerrors.New(mcerrors.ErrCodeSpoolIO, fmt.Sprintf("failed to watch spool directory %s", w.dir), err)
	}

	w.logger.Info("watching spool directory",
		slog.String("dir", w.dir),
		slog.Duration("debounce", w.debouncer.window),
	)

	go w.forward(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// handleEvent filters and converts a raw fsnotify event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if skipSpoolName(filepath.Base(event.Name)) {
		return
	}

	// Subdirectories are not watched; a spool is flat by convention.
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		return
	}

	var op Op
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		// A file renamed out of the spool is gone from our point of view;
		// renaming one in arrives as a separate Create.
		op = OpDelete
	default:
		return
	}

	w.debouncer.Add(Event{Path: event.Name, Op: op, Timestamp: time.Now()})
}

// skipSpoolName reports whether a file name is spool housekeeping noise.
func skipSpoolName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return true
	}
	if strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, ".swp") {
		return true
	}
	return false
}

// forward relays debounced events to the output channel.
func (w *Watcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			w.emitEvent(event)
		}
	}
}

func (w *Watcher) emitEvent(event Event) {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}

	select {
	case w.events <- event:
	default:
		w.logger.Warn("spool event buffer full, dropping event",
			slog.String("path", event.Path),
			slog.String("op", event.Op.String()),
		)
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}

	select {
	case w.errors <- err:
	default:
	}
}

// Events returns the channel of debounced spool events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop stops the watcher and releases resources. Safe to call multiple
// times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true

	close(w.stopCh)
	w.debouncer.Stop()
	err := w.fsw.Close()

	close(w.events)
	close(w.errors)
	return err
}

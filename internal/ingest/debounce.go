package ingest

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultDebounce is the quiet period applied when none is configured.
const DefaultDebounce = 500 * time.Millisecond

// Debouncer coalesces rapid file events so a spool file is processed once
// per burst of writes. Every path gets its own timer; an event is emitted
// when its path has been quiet for the debounce window, independent of
// activity on other paths.
type Debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending map[string]*pendingEvent
	output  chan Event
	stopped bool
}

type pendingEvent struct {
	event   Event
	firstOp Op // the operation that opened this window, drives coalescing
	timer   *time.Timer
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
		output:  make(chan Event, 64),
	}
}

// Add records an event. Events for the same path within the window are
// merged; CREATE followed by DELETE cancels outright.
func (d *Debouncer) Add(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	path := event.Path
	existing, ok := d.pending[path]
	if !ok {
		pe := &pendingEvent{event: event, firstOp: event.Op}
		pe.timer = time.AfterFunc(d.window, func() { d.flushPath(path) })
		d.pending[path] = pe
		return
	}

	coalesced := coalesce(existing, event)
	if coalesced == nil {
		existing.timer.Stop()
		delete(d.pending, path)
		return
	}

	existing.event = *coalesced
	// Restart the quiet period. A timer that fired just before Stop still
	// runs flushPath; it then emits the coalesced event slightly early,
	// which is harmless.
	existing.timer.Stop()
	existing.timer = time.AfterFunc(d.window, func() { d.flushPath(path) })
}

// coalesce merges a new event into the pending one. Nil means the two
// cancelled each other out.
func coalesce(existing *pendingEvent, next Event) *Event {
	switch existing.firstOp {
	case OpCreate:
		switch next.Op {
		case OpModify:
			// Still a brand-new file.
			kept := existing.event
			kept.Timestamp = next.Timestamp
			return &kept
		case OpDelete:
			return nil
		default:
			return &next
		}

	case OpModify:
		// MODIFY absorbs further modifies; DELETE wins.
		return &next

	case OpDelete:
		if next.Op == OpCreate {
			// The file was replaced.
			replaced := next
			replaced.Op = OpModify
			return &replaced
		}
		return &next

	default:
		return &next
	}
}

func (d *Debouncer) flushPath(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	pe, ok := d.pending[path]
	if !ok {
		return
	}
	delete(d.pending, path)

	select {
	case d.output <- pe.event:
	default:
		slog.Warn("spool debouncer output full, dropping event",
			slog.String("path", path),
			slog.String("op", pe.event.Op.String()),
		)
	}
}

// Output returns the channel of debounced events.
func (d *Debouncer) Output() <-chan Event {
	return d.output
}

// Stop cancels all pending timers and closes the output channel.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true

	for path, pe := range d.pending {
		pe.timer.Stop()
		delete(d.pending, path)
	}
	close(d.output)
}

// Package ticker implements the Background Ticker (§4.14): the
// Sleeptime driver that, at a fixed cadence, dispatches a canonical
// "context sync" trigger message into a designated group, skipping
// the first post-startup tick and never running two ticks
// concurrently. Grounded on the teacher's heartbeat.Runner: a
// time.Ticker-driven loop selecting over context cancellation, an
// explicit stop channel, and the ticker's own channel.
package ticker

import (
	"context"
	"sync"
	"time"

	"github.com/pattern-run/pattern/internal/observability"
)

// Dispatcher performs one context-sync dispatch, given the state the
// previous tick's Complete event produced (nil on the very first
// dispatch), and returns the state the next tick should be given.
type Dispatcher interface {
	Dispatch(priorState map[string]any) (stateChanges map[string]any, err error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(priorState map[string]any) (map[string]any, error)

func (f DispatcherFunc) Dispatch(priorState map[string]any) (map[string]any, error) {
	return f(priorState)
}

// EventKind classifies one ticker lifecycle event.
type EventKind string

const (
	EventTick           EventKind = "tick"
	EventSkippedOverlap EventKind = "skipped_overlap"
	EventError          EventKind = "error"
	EventStop           EventKind = "stop"
)

// Event is emitted on every tick outcome, analogous to the §6
// observability stream's warning-on-skip requirement.
type Event struct {
	Kind      EventKind
	Timestamp time.Time
	Detail    string
}

// EventFunc receives ticker lifecycle events.
type EventFunc func(Event)

// Ticker drives one designated group's periodic context-sync trigger.
type Ticker struct {
	interval time.Duration
	dispatch Dispatcher
	onEvent  EventFunc

	mu       sync.Mutex
	running  bool
	inFlight bool
	state    map[string]any
	stopCh   chan struct{}
	doneCh   chan struct{}

	name    string
	metrics *observability.Metrics
	logger  *observability.Logger
}

// New constructs a Ticker. interval <= 0 defaults to one minute.
func New(interval time.Duration, dispatch Dispatcher, onEvent EventFunc) *Ticker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Ticker{interval: interval, dispatch: dispatch, onEvent: onEvent, name: "default"}
}

// SetMetrics installs the collector receiving skip-count observations
// under the given ticker name. Passing a nil metrics disables
// reporting.
func (t *Ticker) SetMetrics(name string, metrics *observability.Metrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.name = name
	t.metrics = metrics
}

// SetLogger installs the logger warned on a skipped tick.
func (t *Ticker) SetLogger(logger *observability.Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logger = logger
}

// Start begins the ticker loop. Calling Start on an already-running
// Ticker is a no-op.
func (t *Ticker) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	t.mu.Unlock()

	go t.run()
}

func (t *Ticker) run() {
	defer func() {
		t.mu.Lock()
		t.running = false
		close(t.doneCh)
		t.mu.Unlock()
	}()

	clock := time.NewTicker(t.interval)
	defer clock.Stop()

	firstTick := true
	for {
		select {
		case <-t.stopCh:
			t.emit(Event{Kind: EventStop, Timestamp: time.Now(), Detail: "stopped"})
			return
		case <-clock.C:
			if firstTick {
				firstTick = false
				continue
			}
			t.fire()
		}
	}
}

// fire runs one dispatch if no prior dispatch is still in flight,
// otherwise skips this tick and surfaces a warning event. Dispatch
// runs on its own goroutine so a slow dispatch never delays the
// ticker's ability to detect and skip the *next* overlapping tick.
func (t *Ticker) fire() {
	t.mu.Lock()
	if t.inFlight {
		name, metrics, logger := t.name, t.metrics, t.logger
		t.mu.Unlock()
		if metrics != nil {
			metrics.RecordTickerSkipped(name)
		}
		if logger != nil {
			logger.Warn(context.Background(), "ticker skipped overlapping tick", "ticker", name)
		}
		t.emit(Event{Kind: EventSkippedOverlap, Timestamp: time.Now(), Detail: "previous tick still in flight"})
		return
	}
	t.inFlight = true
	priorState := t.state
	t.mu.Unlock()

	go func() {
		defer func() {
			t.mu.Lock()
			t.inFlight = false
			t.mu.Unlock()
		}()

		changes, err := t.dispatch.Dispatch(priorState)
		if err != nil {
			t.emit(Event{Kind: EventError, Timestamp: time.Now(), Detail: err.Error()})
			return
		}

		t.mu.Lock()
		t.state = changes
		t.mu.Unlock()
		t.emit(Event{Kind: EventTick, Timestamp: time.Now()})
	}()
}

// Stop halts the ticker loop and waits for it to exit. In-flight
// dispatches are not cancelled; they run to completion.
func (t *Ticker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	close(t.stopCh)
	doneCh := t.doneCh
	t.mu.Unlock()
	<-doneCh
}

// IsRunning reports whether the ticker loop is active.
func (t *Ticker) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Ticker) emit(e Event) {
	if t.onEvent != nil {
		t.onEvent(e)
	}
}

// Package heartbeat drives the additional-turn loop the Tool-Rule
// Engine's heartbeat signal (§4.9) requests: once a tool result asks
// for another turn without new external input, Runner keeps invoking
// turns back to back, delivering each turn's acknowledgment text and
// surfacing progress events, until a turn stops requesting another,
// a consecutive-turn cap is hit, or the run is stopped. Grounded on
// the teacher's own heartbeat.Runner: a stop-channel/done-channel run
// loop with retrying, timed-out delivery.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config configures the additional-turn driver.
type Config struct {
	// MaxConsecutiveTurns bounds how many heartbeat-triggered turns may
	// run back to back before the runner stops itself, guarding
	// against a turn that always requests another.
	MaxConsecutiveTurns int
	// TurnTimeout bounds a single turn's execution.
	TurnTimeout time.Duration
	// AckMaxChars bounds a delivered acknowledgment's length.
	AckMaxChars int
	// DeliveryTimeout bounds a single delivery attempt.
	DeliveryTimeout time.Duration
	// DeliveryRetries is the number of delivery attempts before giving up.
	DeliveryRetries int
	// DeliveryRetryDelay is the base exponential-backoff delay between
	// delivery attempts.
	DeliveryRetryDelay time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxConsecutiveTurns: 10,
		TurnTimeout:         30 * time.Second,
		AckMaxChars:         500,
		DeliveryTimeout:     10 * time.Second,
		DeliveryRetries:     3,
		DeliveryRetryDelay:  time.Second,
	}
}

// TurnResult is what one additional turn reports back to the runner.
type TurnResult struct {
	// Ack is the text to surface for this turn, e.g. a short summary
	// of what it did. Empty means nothing is delivered.
	Ack string
	// NeedsAnother mirrors toolrules.Engine.NeedsHeartbeat() as
	// evaluated after this turn completed.
	NeedsAnother bool
}

// TurnFunc runs one additional agent turn.
type TurnFunc func(ctx context.Context) (TurnResult, error)

// DeliverFunc delivers one turn's acknowledgment text, e.g. through an
// endpoint.Sink.
type DeliverFunc func(ctx context.Context, text string) error

// EventKind classifies one runner lifecycle event.
type EventKind string

const (
	EventStart        EventKind = "start"
	EventTurnStart    EventKind = "turn_start"
	EventAck          EventKind = "ack"
	EventCapped       EventKind = "capped"
	EventTurnError    EventKind = "turn_error"
	EventDeliverError EventKind = "deliver_error"
	EventStop         EventKind = "stop"
)

// Event is emitted on every runner lifecycle transition.
type Event struct {
	Kind      EventKind
	Timestamp time.Time
	RunID     string
	Turn      int
	Message   string
	Error     string
}

// EventFunc receives runner lifecycle events.
type EventFunc func(event Event)

// Runner drives one agent run's consecutive heartbeat-triggered turns.
type Runner struct {
	config  *Config
	turn    TurnFunc
	deliver DeliverFunc
	onEvent EventFunc

	runID string

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	lastAck string
}

// NewRunner constructs a Runner. deliver may be nil, in which case
// turn acknowledgments are recorded but never delivered anywhere.
func NewRunner(config *Config, turn TurnFunc, deliver DeliverFunc, onEvent EventFunc) *Runner {
	if config == nil {
		config = DefaultConfig()
	}
	return &Runner{config: config, turn: turn, deliver: deliver, onEvent: onEvent}
}

// Start begins the additional-turn loop for runID (a random id is
// minted if runID is empty). Calling Start on an already-running
// Runner is a no-op.
func (r *Runner) Start(ctx context.Context, runID string) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.runID = runID
	if r.runID == "" {
		r.runID = uuid.New().String()
	}
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	r.emit(Event{Kind: EventStart, Timestamp: time.Now(), RunID: r.runID})
	go r.run(ctx)
}

func (r *Runner) run(ctx context.Context) {
	defer func() {
		r.mu.Lock()
		r.running = false
		close(r.doneCh)
		r.mu.Unlock()
	}()

	for turnNumber := 1; ; turnNumber++ {
		select {
		case <-ctx.Done():
			r.emit(Event{Kind: EventStop, Timestamp: time.Now(), RunID: r.runID, Message: "context cancelled"})
			return
		case <-r.stopCh:
			r.emit(Event{Kind: EventStop, Timestamp: time.Now(), RunID: r.runID, Message: "stopped"})
			return
		default:
		}

		if turnNumber > r.config.MaxConsecutiveTurns {
			r.emit(Event{Kind: EventCapped, Timestamp: time.Now(), RunID: r.runID, Turn: turnNumber - 1})
			return
		}

		again, err := r.runOneTurn(ctx, turnNumber)
		if err != nil {
			return
		}
		if !again {
			r.emit(Event{Kind: EventStop, Timestamp: time.Now(), RunID: r.runID, Turn: turnNumber, Message: "no further heartbeat requested"})
			return
		}
	}
}

func (r *Runner) runOneTurn(ctx context.Context, turnNumber int) (needsAnother bool, err error) {
	r.emit(Event{Kind: EventTurnStart, Timestamp: time.Now(), RunID: r.runID, Turn: turnNumber})

	turnCtx, cancel := context.WithTimeout(ctx, r.config.TurnTimeout)
	defer cancel()

	result, turnErr := r.turn(turnCtx)
	if turnErr != nil {
		r.emit(Event{Kind: EventTurnError, Timestamp: time.Now(), RunID: r.runID, Turn: turnNumber, Error: turnErr.Error()})
		return false, turnErr
	}

	if ack := r.truncateAck(result.Ack); ack != "" {
		if deliverErr := r.deliverWithRetry(ctx, ack); deliverErr != nil {
			r.emit(Event{Kind: EventDeliverError, Timestamp: time.Now(), RunID: r.runID, Turn: turnNumber, Error: deliverErr.Error()})
		} else {
			r.mu.Lock()
			r.lastAck = ack
			r.mu.Unlock()
			r.emit(Event{Kind: EventAck, Timestamp: time.Now(), RunID: r.runID, Turn: turnNumber, Message: ack})
		}
	}

	return result.NeedsAnother, nil
}

func (r *Runner) deliverWithRetry(ctx context.Context, ack string) error {
	if r.deliver == nil {
		return nil
	}

	maxAttempts := r.config.DeliveryRetries
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.config.DeliveryTimeout)
		err := r.deliver(attemptCtx, ack)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < maxAttempts-1 {
			sleep := r.config.DeliveryRetryDelay * time.Duration(1<<uint(attempt))
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func (r *Runner) truncateAck(text string) string {
	maxChars := r.config.AckMaxChars
	if maxChars <= 0 {
		maxChars = 500
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	if maxChars > 3 {
		return string(runes[:maxChars-3]) + "..."
	}
	return string(runes[:maxChars])
}

// Stop halts the run loop and waits for it to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	close(r.stopCh)
	doneCh := r.doneCh
	r.mu.Unlock()
	<-doneCh
}

// IsRunning reports whether the run loop is active.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// LastAck returns the most recently delivered acknowledgment text.
func (r *Runner) LastAck() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastAck
}

func (r *Runner) emit(e Event) {
	if r.onEvent != nil {
		r.onEvent(e)
	}
}

// Scheduler tracks one Runner per in-flight agent run.
type Scheduler struct {
	mu      sync.Mutex
	runners map[string]*Runner
	config  *Config
}

// NewScheduler constructs a Scheduler sharing config across runners it creates.
func NewScheduler(config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{runners: make(map[string]*Runner), config: config}
}

// GetOrCreate returns runID's existing Runner, or creates one.
func (s *Scheduler) GetOrCreate(runID string, turn TurnFunc, deliver DeliverFunc, onEvent EventFunc) *Runner {
	s.mu.Lock()
	defer s.mu.Unlock()

	if runner, ok := s.runners[runID]; ok {
		return runner
	}
	configCopy := *s.config
	runner := NewRunner(&configCopy, turn, deliver, onEvent)
	s.runners[runID] = runner
	return runner
}

// StopAll stops every tracked runner.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	runners := make([]*Runner, 0, len(s.runners))
	for _, r := range s.runners {
		runners = append(runners, r)
	}
	s.runners = make(map[string]*Runner)
	s.mu.Unlock()

	for _, r := range runners {
		r.Stop()
	}
}

// StopRun stops and forgets runID's runner, if any.
func (s *Scheduler) StopRun(runID string) {
	s.mu.Lock()
	runner, ok := s.runners[runID]
	if ok {
		delete(s.runners, runID)
	}
	s.mu.Unlock()

	if runner != nil {
		runner.Stop()
	}
}

// Active returns the count of currently running runners.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, r := range s.runners {
		if r.IsRunning() {
			count++
		}
	}
	return count
}

// Get returns runID's runner, or nil if untracked.
func (s *Scheduler) Get(runID string) *Runner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runners[runID]
}

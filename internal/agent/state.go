package agent

import (
	"sync"
	"time"

	"github.com/pattern-run/pattern/pkg/patternerr"
)

// StateKind is one of the five agent lifecycle states.
type StateKind string

const (
	StateReady      StateKind = "ready"
	StateProcessing StateKind = "processing"
	StateCooldown   StateKind = "cooldown"
	StateSuspended  StateKind = "suspended"
	StateError      StateKind = "error"
)

// State is the agent's current lifecycle state. CooldownUntil is only
// meaningful when Kind is StateCooldown.
type State struct {
	Kind          StateKind
	CooldownUntil time.Time
}

// Ready is the zero value's semantic state: a freshly created agent is
// always Ready.
func Ready() State { return State{Kind: StateReady} }

// Cooldown constructs a StateCooldown state expiring at until.
func Cooldown(until time.Time) State { return State{Kind: StateCooldown, CooldownUntil: until} }

// allowedTransitions encodes the table in the agent state machine:
// Ready->Processing, Processing->Ready, Processing->Cooldown,
// Cooldown->Ready, any->Suspended, any->Error.
func allowed(from, to StateKind) bool {
	if to == StateSuspended || to == StateError {
		return true
	}
	switch from {
	case StateReady:
		return to == StateProcessing
	case StateProcessing:
		return to == StateReady || to == StateCooldown
	case StateCooldown:
		return to == StateReady
	default:
		return false
	}
}

// StateMachine guards an agent's state behind valid transitions only;
// invalid transitions are rejected without side effects.
type StateMachine struct {
	mu      sync.RWMutex
	current State
}

// NewStateMachine creates a state machine starting in Ready.
func NewStateMachine() *StateMachine {
	return &StateMachine{current: Ready()}
}

// Current returns the current state.
func (m *StateMachine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to next. On success it returns the new
// state; on failure the machine is left unchanged and an error of kind
// patternerr.Validation is returned.
func (m *StateMachine) Transition(next State) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Cooldown->Ready requires the cooldown to have actually elapsed;
	// the caller driving the clock is responsible for only attempting
	// this once CooldownUntil has passed, but the machine re-checks it
	// as its own invariant.
	if m.current.Kind == StateCooldown && next.Kind == StateReady && time.Now().Before(m.current.CooldownUntil) {
		return m.current, patternerr.New(patternerr.Validation, "cooldown has not elapsed")
	}

	if !allowed(m.current.Kind, next.Kind) {
		return m.current, patternerr.New(patternerr.Validation, "invalid state transition from "+string(m.current.Kind)+" to "+string(next.Kind))
	}
	m.current = next
	return m.current, nil
}

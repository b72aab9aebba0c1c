package agent

import (
	"testing"
	"time"
)

func TestStateMachineReadyToProcessingToReady(t *testing.T) {
	m := NewStateMachine()
	if m.Current().Kind != StateReady {
		t.Fatalf("initial state = %s, want ready", m.Current().Kind)
	}
	if _, err := m.Transition(State{Kind: StateProcessing}); err != nil {
		t.Fatalf("Ready->Processing rejected: %v", err)
	}
	if _, err := m.Transition(State{Kind: StateReady}); err != nil {
		t.Fatalf("Processing->Ready rejected: %v", err)
	}
}

func TestStateMachineRejectsReadyToReady(t *testing.T) {
	m := NewStateMachine()
	before := m.Current()
	if _, err := m.Transition(State{Kind: StateReady}); err == nil {
		t.Fatal("expected Ready->Ready to be rejected")
	}
	if m.Current() != before {
		t.Fatal("rejected transition must not mutate state")
	}
}

func TestStateMachineCooldownBlocksEarlyReady(t *testing.T) {
	m := NewStateMachine()
	m.Transition(State{Kind: StateProcessing})
	until := time.Now().Add(time.Hour)
	if _, err := m.Transition(Cooldown(until)); err != nil {
		t.Fatalf("Processing->Cooldown rejected: %v", err)
	}
	if _, err := m.Transition(State{Kind: StateReady}); err == nil {
		t.Fatal("expected early Cooldown->Ready to be rejected")
	}
}

func TestStateMachineCooldownAllowsReadyAfterElapsed(t *testing.T) {
	m := NewStateMachine()
	m.Transition(State{Kind: StateProcessing})
	m.Transition(Cooldown(time.Now().Add(-time.Millisecond)))
	if _, err := m.Transition(State{Kind: StateReady}); err != nil {
		t.Fatalf("expected elapsed Cooldown->Ready to succeed: %v", err)
	}
}

func TestStateMachineAnyStateCanSuspendOrError(t *testing.T) {
	for _, from := range []StateKind{StateReady, StateProcessing, StateCooldown, StateSuspended} {
		m := &StateMachine{current: State{Kind: from}}
		if _, err := m.Transition(State{Kind: StateSuspended}); err != nil {
			t.Fatalf("%s->Suspended rejected: %v", from, err)
		}
		m2 := &StateMachine{current: State{Kind: from}}
		if _, err := m2.Transition(State{Kind: StateError}); err != nil {
			t.Fatalf("%s->Error rejected: %v", from, err)
		}
	}
}

func TestStateMachineErrorIsTerminalExceptViaOperator(t *testing.T) {
	m := &StateMachine{current: State{Kind: StateError}}
	if _, err := m.Transition(State{Kind: StateReady}); err == nil {
		t.Fatal("expected Error->Ready to be rejected")
	}
	if _, err := m.Transition(State{Kind: StateSuspended}); err != nil {
		t.Fatalf("Error->Suspended should be allowed (operator escape hatch): %v", err)
	}
}

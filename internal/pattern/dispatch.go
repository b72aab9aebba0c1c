// Package pattern implements the six Pattern Managers: Round-Robin,
// Supervisor, Pipeline, Voting, Dynamic, and Sleeptime. Each manager
// takes a group, its dispatchable members, and a message, and produces
// an event stream plus the group's next pattern-specific state.
package pattern

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pattern-run/pattern/internal/group"
	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/pkg/models"
)

// sequencer stamps a monotonic Sequence and a fixed GroupID onto every
// event a Pattern Manager emits, so individual managers don't thread a
// counter through their own dispatch logic.
type sequencer struct {
	groupID id.ID
	n       uint64
	emit    func(models.AgentEvent)
}

func newSequencer(groupID id.ID, emit func(models.AgentEvent)) *sequencer {
	return &sequencer{groupID: groupID, emit: emit}
}

func (s *sequencer) send(e models.AgentEvent) {
	e.GroupID = s.groupID
	e.Sequence = atomic.AddUint64(&s.n, 1)
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	s.emit(e)
}

func (s *sequencer) started(pattern group.PatternKind, agentCount int) {
	s.send(models.AgentEvent{
		Kind:    models.EventGroupStarted,
		Started: &models.GroupStartedPayload{Pattern: string(pattern), AgentCount: agentCount},
	})
}

func (s *sequencer) agentStarted(agentID id.ID, name, role string) {
	s.send(models.AgentEvent{
		Kind:         models.EventAgentStarted,
		AgentStarted: &models.AgentStartedPayload{AgentID: agentID, AgentName: name, Role: role},
	})
}

func (s *sequencer) agentCompleted(agentID id.ID, name string, messageID id.ID) {
	s.send(models.AgentEvent{
		Kind:           models.EventAgentCompleted,
		AgentCompleted: &models.AgentCompletedPayload{AgentID: agentID, AgentName: name, MessageID: messageID},
	})
}

func (s *sequencer) complete(pattern group.PatternKind, started time.Time, responses []models.AgentResponseSummary, stateChanges map[string]any) {
	s.send(models.AgentEvent{
		Kind: models.EventGroupComplete,
		Complete: &models.GroupCompletePayload{
			Pattern:        string(pattern),
			ExecutionTime:  time.Since(started),
			AgentResponses: responses,
			StateChanges:   stateChanges,
		},
	})
}

func (s *sequencer) errorEvent(agentID id.ID, err error, recoverable bool) {
	s.send(models.AgentEvent{
		Kind:  models.EventError,
		Error: &models.AgentErrorPayload{AgentID: agentID, Message: err.Error(), Recoverable: recoverable},
	})
}

// runMember dispatches message to one member, wrapping its own event
// stream with AgentStarted and AgentCompleted events, and returns the
// content it produced.
func runMember(ctx context.Context, seq *sequencer, m group.MemberAgent, role string, message models.Message) (models.Content, id.ID, error) {
	agentID := id.ID(m.ID())
	seq.agentStarted(agentID, m.Name(), role)

	content, err := m.Process(ctx, message, seq.send)
	if err != nil {
		return models.Content{}, id.Nil, err
	}

	msgID := id.New(id.PrefixMessage)
	seq.agentCompleted(agentID, m.Name(), msgID)
	return content, msgID, nil
}

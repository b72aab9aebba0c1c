package group

import (
	"context"

	"github.com/pattern-run/pattern/pkg/models"
)

// MemberAgent is the subset of the Agent Contract a Pattern Manager
// needs to dispatch work, kept narrow so internal/pattern does not
// import internal/agent's full surface.
type MemberAgent interface {
	ID() string
	Name() string
	Process(ctx context.Context, message models.Message, emit func(models.AgentEvent)) (models.Content, error)
}

// Manager is the shared trait all six Pattern Managers implement:
// route a message into the group and compute the group's next state.
// The event stream must end in EventGroupComplete or
// EventError{Recoverable:false}; duplicate ToolCallStarted/Finished
// pairs for the same call_id within one run are forbidden.
type Manager interface {
	// Pattern names which coordination pattern this manager implements.
	Pattern() PatternKind

	// Route dispatches message into the group, given its current
	// members and agents, streaming events via emit and returning the
	// group's updated state to persist.
	Route(ctx context.Context, g *Group, agents map[string]MemberAgent, message models.Message, emit func(models.AgentEvent)) (any, error)
}

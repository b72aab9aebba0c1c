package pattern

import (
	"context"

	"github.com/pattern-run/pattern/internal/agent"
	"github.com/pattern-run/pattern/pkg/models"
)

// AgentAdapter bridges the full Agent Contract down to the narrow
// group.MemberAgent surface a Pattern Manager dispatches against.
type AgentAdapter struct {
	Agent *agent.Agent
}

// ID returns the wrapped agent's identifier.
func (a AgentAdapter) ID() string { return a.Agent.ID() }

// Name returns the wrapped agent's display name.
func (a AgentAdapter) Name() string { return a.Agent.Name() }

// Process delegates to the wrapped agent's Process, discarding the
// reasoning and metadata a Pattern Manager has no use for.
func (a AgentAdapter) Process(ctx context.Context, message models.Message, emit func(models.AgentEvent)) (models.Content, error) {
	resp, err := a.Agent.Process(ctx, message, emit)
	return resp.Content, err
}

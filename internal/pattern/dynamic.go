package pattern

import (
	"context"
	"fmt"
	"time"

	"github.com/pattern-run/pattern/internal/group"
	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/internal/selector"
	"github.com/pattern-run/pattern/pkg/models"
	"github.com/pattern-run/pattern/pkg/patternerr"
)

// DynamicConfig names the selector to resolve and its configuration.
type DynamicConfig struct {
	SelectorName   string            `json:"selector_name"`
	SelectorConfig map[string]string `json:"selector_config,omitempty"`
}

// DynamicState records which members the last run selected.
type DynamicState struct {
	LastSelected []string `json:"last_selected"`
}

// Dynamic resolves a selector from the registry and dispatches to
// whichever subset of members it returns.
type Dynamic struct {
	Config    DynamicConfig
	Selectors *selector.Registry
}

// NewDynamic constructs a Dynamic manager resolving selectors from
// registry.
func NewDynamic(cfg DynamicConfig, registry *selector.Registry) *Dynamic {
	return &Dynamic{Config: cfg, Selectors: registry}
}

// Pattern identifies this manager's PatternKind.
func (p *Dynamic) Pattern() group.PatternKind { return group.PatternDynamic }

// Route resolves the configured selector, runs it over the group's
// dispatchable members, and dispatches the selected subset in
// deterministic membership order.
func (p *Dynamic) Route(ctx context.Context, g *group.Group, agents map[string]group.MemberAgent, message models.Message, emit func(models.AgentEvent)) (any, error) {
	started := time.Now()
	seq := newSequencer(g.ID, emit)

	sel, ok := p.Selectors.Get(p.Config.SelectorName)
	if !ok {
		err := patternerr.New(patternerr.NotFound, fmt.Sprintf("dynamic: selector %q not registered", p.Config.SelectorName))
		seq.errorEvent(id.Nil, err, false)
		return nil, err
	}

	candidates := make([]selector.Candidate, 0, len(g.Members))
	for _, m := range g.Members {
		member, ok := agents[m.AgentID.String()]
		if !ok {
			continue
		}
		candidates = append(candidates, selector.Candidate{Membership: m, Agent: member})
	}

	result, err := sel.Select(ctx, candidates, message, p.Config.SelectorConfig)
	if err != nil {
		seq.errorEvent(id.Nil, err, patternerr.Recoverable(err))
		return nil, err
	}

	seq.started(p.Pattern(), len(candidates))

	var responses []models.AgentResponseSummary
	var selectedIDs []string

	if result.Response != nil {
		msgID := id.New(id.PrefixMessage)
		seq.agentCompleted(id.Nil, sel.Name(), msgID)
		responses = append(responses, models.AgentResponseSummary{AgentName: sel.Name(), MessageID: msgID})
	}

	for _, m := range g.Members {
		selected := false
		for _, c := range result.Selected {
			if c.Membership.AgentID == m.AgentID {
				selected = true
				break
			}
		}
		if !selected {
			continue
		}

		member := agents[m.AgentID.String()]
		_, msgID, err := runMember(ctx, seq, member, m.Role, message)
		if err != nil {
			seq.errorEvent(m.AgentID, err, patternerr.Recoverable(err))
			return nil, err
		}
		responses = append(responses, models.AgentResponseSummary{AgentID: m.AgentID, AgentName: member.Name(), MessageID: msgID})
		selectedIDs = append(selectedIDs, m.AgentID.String())
	}

	next := DynamicState{LastSelected: selectedIDs}
	seq.complete(p.Pattern(), started, responses, nil)
	return next, nil
}

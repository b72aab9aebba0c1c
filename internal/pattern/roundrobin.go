package pattern

import (
	"context"
	"fmt"
	"time"

	"github.com/pattern-run/pattern/internal/group"
	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/pkg/models"
	"github.com/pattern-run/pattern/pkg/patternerr"
)

// RoundRobinState is the {current_index, last_rotation} tagged variant
// persisted on Group.State for the round-robin pattern.
type RoundRobinState struct {
	CurrentIndex int       `json:"current_index"`
	LastRotation time.Time `json:"last_rotation"`
}

// RoundRobinConfig controls whether dispatch skips over members the
// dispatch set does not carry before picking the current index.
type RoundRobinConfig struct {
	SkipUnavailable bool `json:"skip_unavailable" yaml:"skip_unavailable"`
}

// RoundRobin cycles dispatch across a group's active members in a
// fixed order, one member per message.
type RoundRobin struct {
	Config RoundRobinConfig
}

// NewRoundRobin constructs a RoundRobin manager with the given config.
func NewRoundRobin(cfg RoundRobinConfig) *RoundRobin {
	return &RoundRobin{Config: cfg}
}

// Pattern identifies this manager's PatternKind.
func (p *RoundRobin) Pattern() group.PatternKind { return group.PatternRoundRobin }

// Route selects the member at the current index, dispatches to it, and
// advances the index modulo the active-member count.
func (p *RoundRobin) Route(ctx context.Context, g *group.Group, agents map[string]group.MemberAgent, message models.Message, emit func(models.AgentEvent)) (any, error) {
	started := time.Now()
	seq := newSequencer(g.ID, emit)

	active := g.ActiveMembers()
	if len(active) == 0 {
		err := patternerr.New(patternerr.Validation, "round_robin: group has no active members")
		seq.errorEvent(id.Nil, err, false)
		return nil, err
	}

	state, _ := g.State.(RoundRobinState)
	idx := state.CurrentIndex % len(active)
	if idx < 0 {
		idx = 0
	}

	if p.Config.SkipUnavailable {
		for i := 0; i < len(active); i++ {
			candidate := (idx + i) % len(active)
			if _, ok := agents[active[candidate].AgentID.String()]; ok {
				idx = candidate
				break
			}
		}
	}

	picked := active[idx]
	member, ok := agents[picked.AgentID.String()]
	if !ok {
		err := patternerr.New(patternerr.NotFound, fmt.Sprintf("round_robin: agent %s not in dispatch set", picked.AgentID))
		seq.errorEvent(picked.AgentID, err, false)
		return nil, err
	}

	seq.started(p.Pattern(), len(active))

	_, msgID, err := runMember(ctx, seq, member, picked.Role, message)
	if err != nil {
		seq.errorEvent(picked.AgentID, err, patternerr.Recoverable(err))
		return nil, err
	}

	next := RoundRobinState{CurrentIndex: (idx + 1) % len(active), LastRotation: started}
	seq.complete(p.Pattern(), started,
		[]models.AgentResponseSummary{{AgentID: picked.AgentID, AgentName: member.Name(), MessageID: msgID}},
		map[string]any{"next_index": next.CurrentIndex})
	return next, nil
}

package pattern

import (
	"context"
	"time"

	"github.com/pattern-run/pattern/internal/group"
	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/pkg/models"
	"github.com/pattern-run/pattern/pkg/patternerr"
)

// SleeptimeConfig configures the background ticker cadence and an
// optional fixed intervention agent.
type SleeptimeConfig struct {
	CheckInterval       time.Duration `json:"check_interval"`
	InterventionAgentID string        `json:"intervention_agent_id,omitempty"`
}

// SleeptimeState carries round-robin-style cursors for when no fixed
// intervention agent is configured.
type SleeptimeState struct {
	CurrentIndex int       `json:"current_index"`
	LastRotation time.Time `json:"last_rotation"`
}

// Sleeptime routes a background ticker's trigger message to a fixed
// intervention agent, or, absent one, cycles across active members
// the same way Round-Robin does.
type Sleeptime struct {
	Config SleeptimeConfig
}

// NewSleeptime constructs a Sleeptime manager with the given config.
func NewSleeptime(cfg SleeptimeConfig) *Sleeptime {
	return &Sleeptime{Config: cfg}
}

// Pattern identifies this manager's PatternKind.
func (p *Sleeptime) Pattern() group.PatternKind { return group.PatternSleeptime }

// Route dispatches message to the configured (or cursor-selected)
// intervention agent.
func (p *Sleeptime) Route(ctx context.Context, g *group.Group, agents map[string]group.MemberAgent, message models.Message, emit func(models.AgentEvent)) (any, error) {
	started := time.Now()
	seq := newSequencer(g.ID, emit)
	active := g.ActiveMembers()
	if len(active) == 0 {
		err := patternerr.New(patternerr.Validation, "sleeptime: group has no active members")
		seq.errorEvent(id.Nil, err, false)
		return nil, err
	}

	seq.started(p.Pattern(), len(active))

	var pickedIdx int
	var picked group.Membership
	if p.Config.InterventionAgentID != "" {
		found := false
		for i, m := range active {
			if m.AgentID.String() == p.Config.InterventionAgentID {
				pickedIdx, picked, found = i, m, true
				break
			}
		}
		if !found {
			err := patternerr.New(patternerr.NotFound, "sleeptime: intervention agent not an active group member")
			seq.errorEvent(id.Nil, err, false)
			return nil, err
		}
	} else {
		state, _ := g.State.(SleeptimeState)
		pickedIdx = state.CurrentIndex % len(active)
		picked = active[pickedIdx]
	}

	member, ok := agents[picked.AgentID.String()]
	if !ok {
		err := patternerr.New(patternerr.NotFound, "sleeptime: intervention agent not in dispatch set")
		seq.errorEvent(picked.AgentID, err, false)
		return nil, err
	}

	_, msgID, err := runMember(ctx, seq, member, picked.Role, message)
	if err != nil {
		seq.errorEvent(picked.AgentID, err, patternerr.Recoverable(err))
		return nil, err
	}

	next := SleeptimeState{
		CurrentIndex: (pickedIdx + 1) % len(active),
		LastRotation: started,
	}
	seq.complete(p.Pattern(), started,
		[]models.AgentResponseSummary{{AgentID: picked.AgentID, AgentName: member.Name(), MessageID: msgID}}, nil)
	return next, nil
}

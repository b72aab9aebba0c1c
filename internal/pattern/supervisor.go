package pattern

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/pattern-run/pattern/internal/group"
	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/pkg/models"
	"github.com/pattern-run/pattern/pkg/patternerr"
)

// DelegationStrategy names how Supervisor chooses a delegate.
type DelegationStrategy string

const (
	StrategyRoundRobin DelegationStrategy = "round-robin"
	StrategyLeastBusy  DelegationStrategy = "least-busy"
	StrategyCapability DelegationStrategy = "capability"
	StrategyRandom     DelegationStrategy = "random"
)

// FallbackBehavior names what Supervisor does when no delegate is
// eligible.
type FallbackBehavior string

const (
	FallbackHandleSelf FallbackBehavior = "handle-self"
	FallbackQueue      FallbackBehavior = "queue"
	FallbackFail       FallbackBehavior = "fail"
)

// DelegationRules configures Supervisor's delegate-selection policy.
type DelegationRules struct {
	Strategy               DelegationStrategy `json:"strategy"`
	MaxDelegationsPerAgent int                `json:"max_delegations_per_agent,omitempty"`
	RequiredCapability     string             `json:"required_capability,omitempty"`
	Fallback               FallbackBehavior   `json:"fallback"`
}

// SupervisorConfig names the leader and its delegation policy.
type SupervisorConfig struct {
	LeaderID        string          `json:"leader_id"`
	DelegationRules DelegationRules `json:"delegation_rules"`
}

// SupervisorState is the {current_delegations} tagged variant
// persisted on Group.State.
type SupervisorState struct {
	CurrentDelegations map[string]int `json:"current_delegations"`
}

// Supervisor routes each message either to its fixed leader or to a
// delegate the leader's delegation rules select.
type Supervisor struct {
	Config SupervisorConfig
}

// NewSupervisor constructs a Supervisor manager with the given config.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	return &Supervisor{Config: cfg}
}

// Pattern identifies this manager's PatternKind.
func (p *Supervisor) Pattern() group.PatternKind { return group.PatternSupervisor }

// Route decides whether the leader handles the message directly or
// delegates, per the configured strategy and fallback.
func (p *Supervisor) Route(ctx context.Context, g *group.Group, agents map[string]group.MemberAgent, message models.Message, emit func(models.AgentEvent)) (any, error) {
	started := time.Now()
	seq := newSequencer(g.ID, emit)

	leader, ok := agents[p.Config.LeaderID]
	if !ok {
		err := patternerr.New(patternerr.NotFound, fmt.Sprintf("supervisor: leader %s not found", p.Config.LeaderID))
		seq.errorEvent(id.Nil, err, false)
		return nil, err
	}

	state, _ := g.State.(SupervisorState)
	delegations := make(map[string]int, len(state.CurrentDelegations))
	for k, v := range state.CurrentDelegations {
		delegations[k] = v
	}

	rules := p.Config.DelegationRules
	leaderID := id.ID(p.Config.LeaderID)
	shouldDelegate := rules.MaxDelegationsPerAgent > 0 && delegations[p.Config.LeaderID] >= rules.MaxDelegationsPerAgent

	seq.started(p.Pattern(), len(g.ActiveMembers()))

	var (
		responder   group.MemberAgent
		responderID id.ID
		role        string
	)

	if shouldDelegate {
		delegate, delegateMembership := p.selectDelegate(g, agents, delegations, rules)
		if delegate == nil {
			switch rules.Fallback {
			case FallbackHandleSelf:
				responder, responderID, role = leader, leaderID, "leader"
			case FallbackQueue:
				msgID := id.New(id.PrefixMessage)
				seq.agentCompleted(leaderID, leader.Name(), msgID)
				next := SupervisorState{CurrentDelegations: delegations}
				seq.complete(p.Pattern(), started,
					[]models.AgentResponseSummary{{AgentID: leaderID, AgentName: leader.Name(), MessageID: msgID}},
					map[string]any{"queued": true})
				return next, nil
			default:
				err := patternerr.New(patternerr.Validation, "supervisor: no delegate available and fallback is fail")
				seq.errorEvent(leaderID, err, false)
				return nil, err
			}
		} else {
			responder, responderID, role = agents[delegateMembership.AgentID.String()], delegateMembership.AgentID, delegateMembership.Role
		}
	} else {
		responder, responderID, role = leader, leaderID, "leader"
	}

	_, msgID, err := runMember(ctx, seq, responder, role, message)
	if err != nil {
		seq.errorEvent(responderID, err, patternerr.Recoverable(err))
		return nil, err
	}

	if responderID.String() != p.Config.LeaderID {
		delegations[responderID.String()]++
	}
	next := SupervisorState{CurrentDelegations: delegations}
	seq.complete(p.Pattern(), started,
		[]models.AgentResponseSummary{{AgentID: responderID, AgentName: responder.Name(), MessageID: msgID}},
		map[string]any{"delegations": delegations})
	return next, nil
}

// selectDelegate filters out the leader and members at or over their
// delegation cap, then applies the configured strategy to what
// remains.
func (p *Supervisor) selectDelegate(g *group.Group, agents map[string]group.MemberAgent, delegations map[string]int, rules DelegationRules) (group.MemberAgent, group.Membership) {
	var eligible []group.Membership
	for _, m := range g.ActiveMembers() {
		key := m.AgentID.String()
		if key == p.Config.LeaderID {
			continue
		}
		if rules.MaxDelegationsPerAgent > 0 && delegations[key] >= rules.MaxDelegationsPerAgent {
			continue
		}
		if _, ok := agents[key]; !ok {
			continue
		}
		eligible = append(eligible, m)
	}
	if len(eligible) == 0 {
		return nil, group.Membership{}
	}

	switch rules.Strategy {
	case StrategyCapability:
		for _, m := range eligible {
			if contains(m.Capabilities, rules.RequiredCapability) {
				return agents[m.AgentID.String()], m
			}
		}
		return nil, group.Membership{}
	case StrategyRandom:
		pick := eligible[rand.Intn(len(eligible))]
		return agents[pick.AgentID.String()], pick
	default: // round-robin and least-busy both reduce to fewest-so-far here
		best := eligible[0]
		for _, m := range eligible[1:] {
			if delegations[m.AgentID.String()] < delegations[best.AgentID.String()] {
				best = m
			}
		}
		return agents[best.AgentID.String()], best
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

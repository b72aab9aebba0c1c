package pattern

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/pattern-run/pattern/internal/group"
	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/pkg/models"
	"github.com/pattern-run/pattern/pkg/patternerr"
)

// TieBreaker names how Voting resolves a tie among leading choices.
type TieBreaker string

const (
	TieBreakerRandom     TieBreaker = "random"
	TieBreakerFirstVote  TieBreaker = "first-vote"
	TieBreakerSpecific   TieBreaker = "specific"
	TieBreakerNoDecision TieBreaker = "no-decision"
)

// VotingRules configures the timeout, tie-breaker, and weighting for a
// voting run.
type VotingRules struct {
	Timeout           time.Duration `json:"timeout"`
	TieBreaker        TieBreaker    `json:"tie_breaker"`
	TieBreakerAgentID string        `json:"tie_breaker_agent_id,omitempty"`
	WeightByExpertise bool          `json:"weight_by_expertise"`
}

// VotingConfig is the quorum size plus the voting rules.
type VotingConfig struct {
	Quorum int         `json:"quorum"`
	Rules  VotingRules `json:"voting_rules"`
}

// VotingState records the last decision a run reached.
type VotingState struct {
	LastDecision string `json:"last_decision"`
}

// Voting broadcasts a message to members and tallies their normalized
// final text as votes until quorum or timeout.
type Voting struct {
	Config VotingConfig
}

// NewVoting constructs a Voting manager with the given config.
func NewVoting(cfg VotingConfig) *Voting {
	return &Voting{Config: cfg}
}

// Pattern identifies this manager's PatternKind.
func (p *Voting) Pattern() group.PatternKind { return group.PatternVoting }

// normalizeVote applies the deterministic vote-normalization rule:
// lowercase, whitespace-trimmed, first line up to 64 characters.
func normalizeVote(text string) string {
	line := text
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.ToLower(strings.TrimSpace(line))
	if len(line) > 64 {
		line = line[:64]
	}
	return line
}

type castVote struct {
	agentID id.ID
	choice  string
}

// Route broadcasts message to active members, collects and tallies
// their votes, and decides the winning choice.
func (p *Voting) Route(ctx context.Context, g *group.Group, agents map[string]group.MemberAgent, message models.Message, emit func(models.AgentEvent)) (any, error) {
	started := time.Now()
	seq := newSequencer(g.ID, emit)
	active := g.ActiveMembers()
	seq.started(p.Pattern(), len(active))

	votingCtx := ctx
	if p.Config.Rules.Timeout > 0 {
		var cancel context.CancelFunc
		votingCtx, cancel = context.WithTimeout(ctx, p.Config.Rules.Timeout)
		defer cancel()
	}

	var (
		votes     []castVote
		responses []models.AgentResponseSummary
		tallies   = map[string]int{}
	)

	for _, m := range active {
		member, ok := agents[m.AgentID.String()]
		if !ok {
			continue
		}
		content, msgID, err := runMember(votingCtx, seq, member, m.Role, message)
		if err != nil {
			if votingCtx.Err() != nil {
				break
			}
			seq.errorEvent(m.AgentID, err, true)
			continue
		}
		choice := normalizeVote(content.PlainText)
		votes = append(votes, castVote{agentID: m.AgentID, choice: choice})
		tallies[choice]++
		responses = append(responses, models.AgentResponseSummary{AgentID: m.AgentID, AgentName: member.Name(), MessageID: msgID})

		if p.Config.Quorum > 0 && tallies[choice] >= p.Config.Quorum {
			break
		}
	}

	decision, err := p.decide(votes, tallies)
	if err != nil {
		seq.errorEvent(id.Nil, err, false)
		return nil, err
	}

	next := VotingState{LastDecision: decision}
	seq.complete(p.Pattern(), started, responses, map[string]any{"decision": decision, "tallies": tallies})
	return next, nil
}

// decide picks the winning choice, applying the tie-breaker when more
// than one choice holds the maximum tally.
func (p *Voting) decide(votes []castVote, tallies map[string]int) (string, error) {
	if len(votes) == 0 {
		if p.Config.Rules.TieBreaker == TieBreakerNoDecision {
			return "", nil
		}
		return "", patternerr.New(patternerr.Validation, "voting: no votes collected")
	}

	var leaders []string
	max := -1
	for choice, count := range tallies {
		switch {
		case count > max:
			max = count
			leaders = []string{choice}
		case count == max:
			leaders = append(leaders, choice)
		}
	}
	if len(leaders) == 1 {
		return leaders[0], nil
	}

	switch p.Config.Rules.TieBreaker {
	case TieBreakerFirstVote:
		for _, v := range votes {
			if contains(leaders, v.choice) {
				return v.choice, nil
			}
		}
	case TieBreakerSpecific:
		for _, v := range votes {
			if v.agentID.String() == p.Config.Rules.TieBreakerAgentID {
				return v.choice, nil
			}
		}
	case TieBreakerRandom:
		return leaders[rand.Intn(len(leaders))], nil
	case TieBreakerNoDecision:
		return "", nil
	}
	return "", patternerr.New(patternerr.Validation, fmt.Sprintf("voting: tie among %v with no applicable tie-breaker", leaders))
}

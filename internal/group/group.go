// Package group implements the Group Model: membership, roles, pattern
// configuration, and the per-pattern runtime state a Pattern Manager
// reads and writes on each dispatch.
package group

import (
	"time"

	"github.com/pattern-run/pattern/internal/id"
)

// PatternKind names one of the six coordination patterns.
type PatternKind string

const (
	PatternRoundRobin PatternKind = "round_robin"
	PatternSupervisor PatternKind = "supervisor"
	PatternPipeline   PatternKind = "pipeline"
	PatternVoting     PatternKind = "voting"
	PatternDynamic    PatternKind = "dynamic"
	PatternSleeptime  PatternKind = "sleeptime"
)

// Membership is one agent's participation in a Group.
type Membership struct {
	AgentID      id.ID
	Role         string
	Active       bool
	Capabilities []string
	JoinedAt     time.Time
}

// Group is a named, pattern-governed collection of agent memberships.
type Group struct {
	ID          id.ID
	Name        string
	Description string
	Pattern     PatternKind
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Members     []Membership

	// State is the pattern-specific runtime state (a tagged variant;
	// see internal/pattern for the concrete per-pattern shapes). It is
	// stored here as an opaque value because Group itself has no
	// business interpreting it — only the pattern that owns Pattern
	// does.
	State any
}

// ActiveMembers returns the members with Active set, preserving order.
func (g *Group) ActiveMembers() []Membership {
	out := make([]Membership, 0, len(g.Members))
	for _, m := range g.Members {
		if m.Active {
			out = append(out, m)
		}
	}
	return out
}

// MemberIndex returns the index of agentID within Members, or -1.
func (g *Group) MemberIndex(agentID id.ID) int {
	for i, m := range g.Members {
		if m.AgentID == agentID {
			return i
		}
	}
	return -1
}

// Constellation is a user-owned flat collection of groups and agents.
type Constellation struct {
	ID        id.ID
	OwnerID   id.ID
	Name      string
	GroupIDs  []id.ID
	AgentIDs  []id.ID
	CreatedAt time.Time
	UpdatedAt time.Time
}

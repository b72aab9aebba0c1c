// Package selector implements the Selector Registry: named agent
// selection strategies a Dynamic Pattern Manager resolves by name to
// choose which group members handle a message.
package selector

import (
	"context"
	"sort"
	"sync"

	"github.com/pattern-run/pattern/internal/group"
	"github.com/pattern-run/pattern/pkg/models"
)

// Candidate pairs a dispatchable agent with its group membership, the
// unit a Selector chooses over.
type Candidate struct {
	Membership group.Membership
	Agent      group.MemberAgent
}

// Result is what Select produces: the chosen subset, plus an optional
// synthetic response the selector generated itself (for example a
// supervisor-style selector that answers directly instead of
// delegating).
type Result struct {
	Selected []Candidate
	Response *models.Content
}

// Selector picks a subset of a group's active members to handle a
// message.
type Selector interface {
	Name() string
	Select(ctx context.Context, candidates []Candidate, message models.Message, config map[string]string) (Result, error)
}

// Registry resolves selectors by name.
type Registry struct {
	mu        sync.RWMutex
	selectors map[string]Selector
}

// NewRegistry builds a Registry pre-populated with the built-in
// selectors.
func NewRegistry() *Registry {
	r := &Registry{selectors: make(map[string]Selector)}
	r.Register(RandomSelector{})
	r.Register(CapabilitySelector{})
	r.Register(&LoadBalancingSelector{})
	return r
}

// Register adds or replaces a selector under its own Name().
func (r *Registry) Register(s Selector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selectors[s.Name()] = s
}

// Get looks up a selector by name.
func (r *Registry) Get(name string) (Selector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.selectors[name]
	return s, ok
}

// List returns the registered selector names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.selectors))
	for name := range r.selectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func activeOnly(candidates []Candidate) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Membership.Active {
			out = append(out, c)
		}
	}
	return out
}

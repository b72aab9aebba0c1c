package selector

import (
	"context"
	"sync"

	"github.com/pattern-run/pattern/pkg/models"
)

// LoadBalancingSelector picks the active member with the fewest prior
// selections made through this selector instance.
type LoadBalancingSelector struct {
	mu     sync.Mutex
	counts map[string]int
}

// Name identifies this selector in the registry.
func (s *LoadBalancingSelector) Name() string { return "load_balancing" }

// Select returns the single least-recently-loaded active candidate.
func (s *LoadBalancingSelector) Select(ctx context.Context, candidates []Candidate, message models.Message, config map[string]string) (Result, error) {
	available := activeOnly(candidates)
	if len(available) == 0 {
		return Result{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = make(map[string]int)
	}

	best := available[0]
	for _, c := range available[1:] {
		if s.counts[c.Agent.ID()] < s.counts[best.Agent.ID()] {
			best = c
		}
	}
	s.counts[best.Agent.ID()]++

	return Result{Selected: []Candidate{best}}, nil
}

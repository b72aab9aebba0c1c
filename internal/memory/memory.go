// Package memory implements the agent memory block store: labeled,
// permission-gated blocks plus a semantic search index over them.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/pkg/models"
	"github.com/pattern-run/pattern/pkg/patternerr"
)

// Embedder turns text into a vector. Production embedding providers are
// out of scope; callers inject whatever Embedder fits their deployment,
// or omit one and forgo semantic search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store holds memory blocks for all agents, clone-on-read/write so that
// callers never observe a block mutating out from under them.
type Store struct {
	mu       sync.RWMutex
	byID     map[id.ID]models.MemoryBlock
	embedder Embedder
}

// NewStore creates an empty memory block store. embedder may be nil, in
// which case Search always returns an empty result set.
func NewStore(embedder Embedder) *Store {
	return &Store{byID: make(map[id.ID]models.MemoryBlock), embedder: embedder}
}

// Create stores a new block, minting its ID if unset.
func (s *Store) Create(block models.MemoryBlock) models.MemoryBlock {
	s.mu.Lock()
	defer s.mu.Unlock()
	if block.ID.IsNil() {
		block.ID = id.New(id.PrefixMemoryBlock)
	}
	now := time.Now()
	block.CreatedAt = now
	block.UpdatedAt = now
	s.byID[block.ID] = block
	return block
}

// Get returns a block by label for the given owner.
func (s *Store) Get(owner id.ID, label string) (models.MemoryBlock, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.byID {
		if b.Owner == owner && b.Label == label {
			return b, true
		}
	}
	return models.MemoryBlock{}, false
}

// Labels lists all block labels owned by owner.
func (s *Store) Labels(owner id.ID) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var labels []string
	for _, b := range s.byID {
		if b.Owner == owner {
			labels = append(labels, b.Label)
		}
	}
	sort.Strings(labels)
	return labels
}

// Append appends text to an existing block's value, subject to ACL
// gating performed by the caller (see Check in acl.go).
func (s *Store) Append(id id.ID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[id]
	if !ok {
		return patternerr.New(patternerr.NotFound, "memory block not found")
	}
	b.Value += text
	b.UpdatedAt = time.Now()
	s.byID[id] = b
	return nil
}

// Overwrite replaces an existing block's value wholesale.
func (s *Store) Overwrite(blockID id.ID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[blockID]
	if !ok {
		return patternerr.New(patternerr.NotFound, "memory block not found")
	}
	b.Value = value
	b.UpdatedAt = time.Now()
	s.byID[blockID] = b
	return nil
}

// Delete removes a block outright.
func (s *Store) Delete(blockID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[blockID]; !ok {
		return patternerr.New(patternerr.NotFound, "memory block not found")
	}
	delete(s.byID, blockID)
	return nil
}

// ShareWith changes a block's Owner to recipient, the mechanism behind
// an agent's "share-with" memory op. The original owner loses access;
// higher layers that want co-ownership should instead Create a linked
// copy.
func (s *Store) ShareWith(blockID, recipient id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[blockID]
	if !ok {
		return patternerr.New(patternerr.NotFound, "memory block not found")
	}
	b.Owner = recipient
	b.UpdatedAt = time.Now()
	s.byID[blockID] = b
	return nil
}

// Shared returns all blocks owned by recipient that were shared (all
// blocks owned by recipient are, by construction, "shared" from the
// recipient's point of view once ShareWith has run).
func (s *Store) Shared(recipient id.ID) []models.MemoryBlock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MemoryBlock
	for _, b := range s.byID {
		if b.Owner == recipient {
			out = append(out, b)
		}
	}
	return out
}

// Search performs semantic search over owner's blocks, returning
// (label, block, score) triples sorted by descending score, as the
// Agent Contract's memory ops specify.
func (s *Store) Search(ctx context.Context, owner id.ID, query string, limit int) ([]models.MemorySearchResult, error) {
	if s.embedder == nil {
		return nil, nil
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, patternerr.Wrap(patternerr.Transient, "embedding query failed", err)
	}

	s.mu.RLock()
	candidates := make([]models.MemoryBlock, 0, len(s.byID))
	for _, b := range s.byID {
		if b.Owner == owner {
			candidates = append(candidates, b)
		}
	}
	s.mu.RUnlock()

	results := make([]models.MemorySearchResult, 0, len(candidates))
	for _, b := range candidates {
		vec, err := s.embedder.Embed(ctx, b.Value)
		if err != nil {
			continue
		}
		results = append(results, models.MemorySearchResult{
			Label: b.Label,
			Block: b,
			Score: cosineSimilarity(queryVec, vec),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Package streambuffer implements the Stream Buffer (§4.12): an
// in-memory bounded history of events from one data source, evicted
// by capacity then by age, with range/cursor/relevance queries over
// what remains.
package streambuffer

import (
	"sort"
	"sync"
	"time"

	"github.com/pattern-run/pattern/internal/observability"
)

// StreamEvent is one buffered item, stamped with the cursor a
// source-specific resume point is expressed in.
type StreamEvent[T any, C comparable] struct {
	Timestamp time.Time
	Cursor    C
	Item      T
}

// Searchable is implemented by item types that support relevance
// scoring against a free-text query. Buffer.Search only returns items
// whose concrete type satisfies this.
type Searchable interface {
	Relevance(query string) float32
}

// Stats summarizes a buffer's current occupancy.
type Stats struct {
	ItemCount  int
	OldestItem *time.Time
	NewestItem *time.Time
	MaxItems   int
	MaxAge     time.Duration
}

// Buffer is a fixed-capacity, age-bounded deque of StreamEvents. Safe
// for concurrent use.
type Buffer[T any, C comparable] struct {
	mu       sync.RWMutex
	items    []StreamEvent[T, C]
	maxItems int
	maxAge   time.Duration

	name    string
	metrics *observability.Metrics
}

// New constructs an empty Buffer. maxItems <= 0 disables the
// item-count eviction rule; maxAge <= 0 disables the age-based rule.
func New[T any, C comparable](maxItems int, maxAge time.Duration) *Buffer[T, C] {
	return &Buffer[T, C]{maxItems: maxItems, maxAge: maxAge}
}

// SetMetrics installs the collector receiving occupancy observations
// under the given buffer name. Passing a nil metrics disables
// reporting.
func (b *Buffer[T, C]) SetMetrics(name string, metrics *observability.Metrics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.name = name
	b.metrics = metrics
}

// Push appends event, first evicting from the front while at capacity
// or while the oldest item has aged out, mirroring §4.12's push rule.
func (b *Buffer[T, C]) Push(event StreamEvent[T, C]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.maxItems > 0 && len(b.items) >= b.maxItems {
		b.items = b.items[1:]
	}
	if b.maxAge > 0 {
		cutoff := time.Now().Add(-b.maxAge)
		for len(b.items) > 0 && b.items[0].Timestamp.Before(cutoff) {
			b.items = b.items[1:]
		}
	}
	b.items = append(b.items, event)
	if b.metrics != nil {
		b.metrics.SetBufferOccupancy(b.name, len(b.items))
	}
}

// Range returns every event within [start, end] inclusive; a nil bound
// is unbounded on that side.
func (b *Buffer[T, C]) Range(start, end *time.Time) []StreamEvent[T, C] {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []StreamEvent[T, C]
	for _, e := range b.items {
		if start != nil && e.Timestamp.Before(*start) {
			continue
		}
		if end != nil && e.Timestamp.After(*end) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// After returns every event strictly after the first event whose
// cursor equals cursor. If no event has that cursor, it returns an
// empty slice.
func (b *Buffer[T, C]) After(cursor C) []StreamEvent[T, C] {
	b.mu.RLock()
	defer b.mu.RUnlock()

	found := false
	var out []StreamEvent[T, C]
	for _, e := range b.items {
		if found {
			out = append(out, e)
			continue
		}
		if e.Cursor == cursor {
			found = true
		}
	}
	return out
}

// Search returns up to limit items whose Item implements Searchable
// and scores positively against query, ordered by descending
// (relevance, timestamp).
func (b *Buffer[T, C]) Search(query string, limit int) []StreamEvent[T, C] {
	b.mu.RLock()
	defer b.mu.RUnlock()

	type scored struct {
		event     StreamEvent[T, C]
		relevance float32
	}
	var hits []scored
	for _, e := range b.items {
		s, ok := any(e.Item).(Searchable)
		if !ok {
			continue
		}
		if r := s.Relevance(query); r > 0 {
			hits = append(hits, scored{event: e, relevance: r})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].relevance != hits[j].relevance {
			return hits[i].relevance > hits[j].relevance
		}
		return hits[i].event.Timestamp.After(hits[j].event.Timestamp)
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]StreamEvent[T, C], len(hits))
	for i, h := range hits {
		out[i] = h.event
	}
	return out
}

// Stats reports current occupancy.
func (b *Buffer[T, C]) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Stats{ItemCount: len(b.items), MaxItems: b.maxItems, MaxAge: b.maxAge}
	if len(b.items) > 0 {
		oldest := b.items[0].Timestamp
		newest := b.items[len(b.items)-1].Timestamp
		s.OldestItem = &oldest
		s.NewestItem = &newest
	}
	return s
}

// Clear empties the buffer.
func (b *Buffer[T, C]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
}

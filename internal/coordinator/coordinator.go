// Package coordinator implements the Coordinator (§4.13): the per-
// agent owner of active data sources, their cursors, their buffers,
// and their background subscriptions. No direct original_source file
// was retrieved for `data_source::coordinator` (only its sibling
// `mod.rs`, `buffer.rs`, and `cursor_store.rs` were); built fresh atop
// internal/cursorstore and internal/streambuffer, which together are
// this package's grounding.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/pattern-run/pattern/internal/cursorstore"
	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/internal/streambuffer"
	"github.com/pattern-run/pattern/pkg/patternerr"
)

// Item is one ingested payload from a data source. Payload implements
// streambuffer.Searchable if the source wants results.search to find
// it by relevance.
type Item struct {
	Payload any
}

// Relevance satisfies streambuffer.Searchable by delegating to Payload
// when it supports relevance scoring; otherwise the item never
// surfaces in a search result.
func (i Item) Relevance(query string) float32 {
	if s, ok := i.Payload.(streambuffer.Searchable); ok {
		return s.Relevance(query)
	}
	return 0
}

// Event is one entry in a source's buffer: an ingested item stamped
// with its timestamp and resume cursor.
type Event = streambuffer.StreamEvent[Item, string]

// Source is the minimal shape a data source exposes to the
// coordinator; ingestion itself happens out of band (a firehose
// listener, a file watcher) that calls Ingest as it produces items.
type Source interface {
	ID() string
	SourceType() string
}

type entry struct {
	source     Source
	buffer     *streambuffer.Buffer[Item, string]
	paused     bool
	subscriber chan Event
}

// Coordinator owns every agent's active data sources.
type Coordinator struct {
	mu       sync.Mutex
	cursors  *cursorstore.Store
	sources  map[id.ID]map[string]*entry
	maxItems int
	maxAge   time.Duration
}

// New constructs a Coordinator. cursors may be nil if callers never
// need cross-restart resume (tests, ephemeral sources).
func New(cursors *cursorstore.Store, maxItems int, maxAge time.Duration) *Coordinator {
	return &Coordinator{
		cursors:  cursors,
		sources:  make(map[id.ID]map[string]*entry),
		maxItems: maxItems,
		maxAge:   maxAge,
	}
}

var (
	ErrSourceExists   = patternerr.New(patternerr.Validation, "coordinator: source already added")
	ErrSourceNotFound = patternerr.New(patternerr.NotFound, "coordinator: source not found")
)

// AddSource registers source as active for agent.
func (c *Coordinator) AddSource(agent id.ID, source Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	byAgent, ok := c.sources[agent]
	if !ok {
		byAgent = make(map[string]*entry)
		c.sources[agent] = byAgent
	}
	if _, exists := byAgent[source.ID()]; exists {
		return ErrSourceExists
	}
	byAgent[source.ID()] = &entry{
		source: source,
		buffer: streambuffer.New[Item, string](c.maxItems, c.maxAge),
	}
	return nil
}

// RemoveSource drops a source and its buffer and subscription.
// Cursors are left intact so re-adding the same source resumes.
func (c *Coordinator) RemoveSource(agent id.ID, sourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.lookupLocked(agent, sourceID)
	if err != nil {
		return err
	}
	if e.subscriber != nil {
		close(e.subscriber)
	}
	delete(c.sources[agent], sourceID)
	return nil
}

// PauseSource stops a source from accepting new Ingest calls without
// losing its buffer history.
func (c *Coordinator) PauseSource(agent id.ID, sourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.lookupLocked(agent, sourceID)
	if err != nil {
		return err
	}
	e.paused = true
	return nil
}

// ResumeSource re-enables a paused source.
func (c *Coordinator) ResumeSource(agent id.ID, sourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.lookupLocked(agent, sourceID)
	if err != nil {
		return err
	}
	e.paused = false
	return nil
}

// Ingest appends one item from sourceID's upstream feed into its
// buffer (a no-op, dropping the item, while the source is paused) and
// forwards it to any active subscriber.
func (c *Coordinator) Ingest(agent id.ID, sourceID string, cursor string, timestamp time.Time, payload any) error {
	c.mu.Lock()
	e, err := c.lookupLocked(agent, sourceID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if e.paused {
		c.mu.Unlock()
		return nil
	}
	event := Event{Timestamp: timestamp, Cursor: cursor, Item: Item{Payload: payload}}
	e.buffer.Push(event)
	sub := e.subscriber
	c.mu.Unlock()

	if sub != nil {
		select {
		case sub <- event:
		default:
		}
	}
	return nil
}

// ReadSource returns up to limit of the most recent buffered events
// for sourceID, optionally restricted to those at or after since.
func (c *Coordinator) ReadSource(agent id.ID, sourceID string, limit int, since *time.Time) ([]Event, error) {
	c.mu.Lock()
	e, err := c.lookupLocked(agent, sourceID)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	events := e.buffer.Range(since, nil)
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// SearchSource ranks sourceID's buffered events by relevance to query.
func (c *Coordinator) SearchSource(agent id.ID, sourceID, query string, limit int) ([]Event, error) {
	c.mu.Lock()
	e, err := c.lookupLocked(agent, sourceID)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return e.buffer.Search(query, limit), nil
}

// Subscribe returns a channel of every item ingested for sourceID from
// now on. The channel is closed when the source is removed. Only one
// subscriber is supported per source; a second Subscribe call replaces
// the first.
func (c *Coordinator) Subscribe(ctx context.Context, agent id.ID, sourceID string) (<-chan Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.lookupLocked(agent, sourceID)
	if err != nil {
		return nil, err
	}
	ch := make(chan Event, 32)
	e.subscriber = ch

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		if cur, ok := c.sources[agent][sourceID]; ok && cur.subscriber == ch {
			cur.subscriber = nil
		}
		c.mu.Unlock()
	}()

	return ch, nil
}

// BufferStats reports sourceID's buffer occupancy.
func (c *Coordinator) BufferStats(agent id.ID, sourceID string) (streambuffer.Stats, error) {
	c.mu.Lock()
	e, err := c.lookupLocked(agent, sourceID)
	c.mu.Unlock()
	if err != nil {
		return streambuffer.Stats{}, err
	}
	return e.buffer.Stats(), nil
}

// Cursors exposes the shared cursor store so a source's ingestion
// loop can call Save/Load directly, per §4.11's "a stream source MUST
// call save before acknowledging a processed event" contract.
func (c *Coordinator) Cursors() *cursorstore.Store {
	return c.cursors
}

func (c *Coordinator) lookupLocked(agent id.ID, sourceID string) (*entry, error) {
	byAgent, ok := c.sources[agent]
	if !ok {
		return nil, ErrSourceNotFound
	}
	e, ok := byAgent[sourceID]
	if !ok {
		return nil, ErrSourceNotFound
	}
	return e, nil
}

// Package queue implements the Message Queue (§4.7) and Scheduled
// Wakeups (§4.8): FIFO per-recipient delivery with loop prevention,
// and a durable min-heap of wakeups a single dispatcher drains.
package queue

import (
	"sync"
	"time"

	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/internal/observability"
	"github.com/pattern-run/pattern/pkg/patternerr"
)

// QueuedMessage is one agent-to-agent or user-to-agent delivery,
// carrying the call chain loop prevention is computed from.
type QueuedMessage struct {
	ID        id.ID
	FromAgent id.ID // empty if from a user
	FromUser  id.ID // empty if from an agent
	ToAgent   id.ID
	Content   string
	Metadata  map[string]any
	CallChain []id.ID
	Read      bool
	CreatedAt time.Time
	ReadAt    time.Time
}

// NewAgentToAgent builds a queued message from one agent to another,
// seeding the call chain with the sender.
func NewAgentToAgent(from, to id.ID, content string, metadata map[string]any) QueuedMessage {
	return QueuedMessage{
		ID:        id.New(id.PrefixQueuedMessage),
		FromAgent: from,
		ToAgent:   to,
		Content:   content,
		Metadata:  metadata,
		CallChain: []id.ID{from},
		CreatedAt: time.Now(),
	}
}

// NewUserToAgent builds a queued message from a user, with an empty
// call chain.
func NewUserToAgent(from, to id.ID, content string, metadata map[string]any) QueuedMessage {
	return QueuedMessage{
		ID:        id.New(id.PrefixQueuedMessage),
		FromUser:  from,
		ToAgent:   to,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
}

// CountInCallChain counts how many times agentID appears in the call
// chain, the basis for loop prevention.
func (m QueuedMessage) CountInCallChain(agentID id.ID) int {
	n := 0
	for _, a := range m.CallChain {
		if a == agentID {
			n++
		}
	}
	return n
}

// MarkRead marks the message read, stamping ReadAt.
func (m *QueuedMessage) MarkRead() {
	m.Read = true
	m.ReadAt = time.Now()
}

// DefaultLoopLimit is how many times an agent may appear in a
// message's call chain before dequeue rejects it.
const DefaultLoopLimit = 1

// ErrAlreadyRead is returned when a message that was already marked
// read is read again.
var ErrAlreadyRead = patternerr.New(patternerr.Validation, "queue: message already read")

// Queue is a FIFO-per-recipient in-memory message queue with loop
// prevention on dequeue.
type Queue struct {
	mu        sync.Mutex
	byAgent   map[id.ID][]*QueuedMessage
	loopLimit int
	metrics   *observability.Metrics
}

// NewQueue constructs a Queue. loopLimit <= 0 uses DefaultLoopLimit.
func NewQueue(loopLimit int) *Queue {
	if loopLimit <= 0 {
		loopLimit = DefaultLoopLimit
	}
	return &Queue{byAgent: make(map[id.ID][]*QueuedMessage), loopLimit: loopLimit}
}

// SetMetrics installs the collector receiving per-agent queue-depth
// observations. Passing nil disables reporting.
func (q *Queue) SetMetrics(metrics *observability.Metrics) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.metrics = metrics
}

// Enqueue appends message to its recipient's FIFO.
func (q *Queue) Enqueue(message QueuedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	m := message
	q.byAgent[message.ToAgent] = append(q.byAgent[message.ToAgent], &m)
	q.reportDepthLocked(message.ToAgent)
}

func (q *Queue) reportDepthLocked(agent id.ID) {
	if q.metrics == nil {
		return
	}
	q.metrics.SetQueueDepth(agent.String(), len(q.byAgent[agent]))
}

// Dequeue pops the next undelivered message for agent, enforcing loop
// prevention: if agent already appears loopLimit times in the call
// chain, the message is rejected with a LoopLimit error and left
// dequeued (the caller decides whether to drop or dead-letter it). On
// acceptance, agent is appended to the call chain for downstream hops.
func (q *Queue) Dequeue(agent id.ID) (QueuedMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	fifo := q.byAgent[agent]
	if len(fifo) == 0 {
		return QueuedMessage{}, patternerr.New(patternerr.NotFound, "queue: no messages for agent")
	}

	next := fifo[0]
	q.byAgent[agent] = fifo[1:]
	q.reportDepthLocked(agent)

	if count := next.CountInCallChain(agent); count >= q.loopLimit {
		return QueuedMessage{}, patternerr.New(patternerr.LoopLimit, "queue: loop limit exceeded")
	}

	next.CallChain = append(next.CallChain, agent)
	return *next, nil
}

// Read marks a dequeued message as read, idempotently failing if it
// was already marked.
func (q *Queue) Read(message *QueuedMessage) error {
	if message.Read {
		return ErrAlreadyRead
	}
	message.MarkRead()
	return nil
}

// Len returns how many undelivered messages are queued for agent.
func (q *Queue) Len(agent id.ID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byAgent[agent])
}

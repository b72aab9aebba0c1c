package queue

import (
	"time"

	"github.com/pattern-run/pattern/internal/id"
)

// MessageStore is the Message Queue's (§4.7) storage contract: a FIFO
// per-recipient queue with loop-prevention on dequeue. Queue is the
// in-memory implementation; RedisQueue is the durable one, both of
// which satisfy this interface.
type MessageStore interface {
	Enqueue(message QueuedMessage)
	Dequeue(agent id.ID) (QueuedMessage, error)
	Read(message *QueuedMessage) error
	Len(agent id.ID) int
}

// WakeupStore is the Scheduled Wakeup's (§4.8) storage contract: a
// durable min-heap keyed by scheduled_for. WakeupScheduler is the
// in-memory implementation; RedisWakeupScheduler is the durable one,
// both of which satisfy this interface.
type WakeupStore interface {
	Schedule(w ScheduledWakeup)
	Cancel(wakeupID id.ID)
	DrainDue(now time.Time) []ScheduledWakeup
	Len() int
}

var (
	_ MessageStore = (*Queue)(nil)
	_ MessageStore = (*RedisQueue)(nil)
	_ WakeupStore  = (*WakeupScheduler)(nil)
	_ WakeupStore  = (*RedisWakeupScheduler)(nil)
)

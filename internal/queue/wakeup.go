package queue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/pattern-run/pattern/internal/id"
)

// ScheduledWakeup is a durable heap entry: a one-shot or recurring
// reminder to deliver a synthesized message to an agent.
type ScheduledWakeup struct {
	ID               id.ID
	AgentID          id.ID
	ScheduledFor     time.Time
	Reason           string
	RecurringSeconds int64 // 0 means one-shot
	Active           bool
	CreatedAt        time.Time
	LastTriggered    time.Time
}

// Once builds a one-shot wakeup.
func Once(agentID id.ID, scheduledFor time.Time, reason string) ScheduledWakeup {
	return ScheduledWakeup{
		ID:           id.New(id.PrefixWakeup),
		AgentID:      agentID,
		ScheduledFor: scheduledFor,
		Reason:       reason,
		Active:       true,
		CreatedAt:    time.Now(),
	}
}

// Recurring builds a recurring wakeup firing every intervalSeconds.
func Recurring(agentID id.ID, scheduledFor time.Time, reason string, intervalSeconds int64) ScheduledWakeup {
	return ScheduledWakeup{
		ID:               id.New(id.PrefixWakeup),
		AgentID:          agentID,
		ScheduledFor:     scheduledFor,
		Reason:           reason,
		RecurringSeconds: intervalSeconds,
		Active:           true,
		CreatedAt:        time.Now(),
	}
}

// IsDue reports whether the wakeup should fire as of now.
func (w ScheduledWakeup) IsDue(now time.Time) bool {
	return w.Active && !now.Before(w.ScheduledFor)
}

// AdvanceForRecurrence moves a recurring wakeup's ScheduledFor forward
// to the smallest future slot strictly after now, avoiding a burst
// replay of every interval the dispatcher slept through. A one-shot
// wakeup is deactivated instead.
func (w *ScheduledWakeup) AdvanceForRecurrence(now time.Time) {
	if w.RecurringSeconds <= 0 {
		w.Active = false
		w.LastTriggered = now
		return
	}
	w.LastTriggered = w.ScheduledFor
	interval := time.Duration(w.RecurringSeconds) * time.Second
	next := w.ScheduledFor.Add(interval)
	for !next.After(now) {
		next = next.Add(interval)
	}
	w.ScheduledFor = next
}

// wakeupHeap is a container/heap.Interface min-heap keyed by
// ScheduledFor.
type wakeupHeap []*ScheduledWakeup

func (h wakeupHeap) Len() int { return len(h) }
func (h wakeupHeap) Less(i, j int) bool {
	return h[i].ScheduledFor.Before(h[j].ScheduledFor)
}
func (h wakeupHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *wakeupHeap) Push(x any)   { *h = append(*h, x.(*ScheduledWakeup)) }
func (h *wakeupHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// WakeupScheduler is the durable min-heap the dispatcher drains. It is
// safe for concurrent use.
type WakeupScheduler struct {
	mu   sync.Mutex
	heap wakeupHeap
	byID map[id.ID]*ScheduledWakeup
}

// NewWakeupScheduler constructs an empty WakeupScheduler.
func NewWakeupScheduler() *WakeupScheduler {
	return &WakeupScheduler{byID: make(map[id.ID]*ScheduledWakeup)}
}

// Schedule adds a wakeup to the heap.
func (s *WakeupScheduler) Schedule(w ScheduledWakeup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := w
	heap.Push(&s.heap, &entry)
	s.byID[entry.ID] = &entry
}

// Cancel deactivates a wakeup by id; it remains in the heap until
// popped but DrainDue skips inactive entries.
func (s *WakeupScheduler) Cancel(wakeupID id.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.byID[wakeupID]; ok {
		w.Active = false
	}
}

// DrainDue pops and returns every due entry in scheduled order as of
// now, re-pushing recurring ones at their next future slot. This is
// the dispatcher's skew-recovery catch-up: a late wake processes every
// entry that came due while it slept, in order, without bursting a
// recurring entry's missed intermediate slots.
func (s *WakeupScheduler) DrainDue(now time.Time) []ScheduledWakeup {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []ScheduledWakeup
	for s.heap.Len() > 0 {
		top := s.heap[0]
		if !top.Active {
			heap.Pop(&s.heap)
			delete(s.byID, top.ID)
			continue
		}
		if !top.IsDue(now) {
			break
		}

		entry := heap.Pop(&s.heap).(*ScheduledWakeup)
		fired := *entry
		due = append(due, fired)

		entry.AdvanceForRecurrence(now)
		if entry.Active {
			heap.Push(&s.heap, entry)
		} else {
			delete(s.byID, entry.ID)
		}
	}
	return due
}

// Len returns how many wakeups remain scheduled.
func (s *WakeupScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Len()
}

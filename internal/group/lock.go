package group

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pattern-run/pattern/internal/id"
)

// ErrLockTimeout is returned when acquiring a group's writer lock times
// out.
var ErrLockTimeout = errors.New("group: writer lock acquisition timeout")

// DefaultLockTimeout bounds how long a dispatch waits for a group's
// writer lock before giving up.
const DefaultLockTimeout = 5 * time.Second

const lockPollInterval = 5 * time.Millisecond

type groupMutex struct {
	mu     sync.Mutex
	locked bool
}

// Locker enforces the single-writer-per-group discipline (§5): only
// one in-flight Pattern Manager dispatch may mutate a given group's
// state at a time.
type Locker struct {
	locks   sync.Map // map[id.ID]*groupMutex
	timeout time.Duration
}

// NewLocker creates a Locker with the given default acquisition
// timeout. If timeout <= 0, DefaultLockTimeout is used.
func NewLocker(timeout time.Duration) *Locker {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &Locker{timeout: timeout}
}

func (l *Locker) mutexFor(groupID id.ID) *groupMutex {
	if m, ok := l.locks.Load(groupID); ok {
		return m.(*groupMutex)
	}
	actual, _ := l.locks.LoadOrStore(groupID, &groupMutex{})
	return actual.(*groupMutex)
}

// Lock acquires the writer lock for groupID, blocking until acquired,
// the context is cancelled, or the default timeout elapses.
func (l *Locker) Lock(ctx context.Context, groupID id.ID) error {
	m := l.mutexFor(groupID)
	deadline := time.Now().Add(l.timeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		m.mu.Lock()
		if !m.locked {
			m.locked = true
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()

		if time.Now().After(deadline) {
			return ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// Unlock releases the writer lock for groupID. Safe to call even if
// the lock is not held.
func (l *Locker) Unlock(groupID id.ID) {
	if m, ok := l.locks.Load(groupID); ok {
		mu := m.(*groupMutex)
		mu.mu.Lock()
		mu.locked = false
		mu.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
func (l *Locker) TryLock(groupID id.ID) bool {
	m := l.mutexFor(groupID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return false
	}
	m.locked = true
	return true
}

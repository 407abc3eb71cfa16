package service

import (
	"sync"
	"time"

	registrystore "github.com/metanexus/metadata-service/internal/registry/store"
)

// DefaultLockTimeout is the edit lock auto-release interval.
const DefaultLockTimeout = 30 * time.Second

// LockManager hands out advisory per-entity edit locks for UI clients. A lock
// auto-releases after the timeout unless the holder re-acquires it; release
// cancels the pending timer, so a released and re-acquired lock never gets
// torn down by a stale expiry.
type LockManager struct {
	mu      sync.Mutex
	timeout time.Duration
	held    map[string]*editLock
	gen     uint64
}

type editLock struct {
	owner string
	timer *time.Timer
	gen   uint64
}

// NewLockManager creates a LockManager with the given auto-release timeout.
// Zero or negative uses DefaultLockTimeout.
func NewLockManager(timeout time.Duration) *LockManager {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &LockManager{
		timeout: timeout,
		held:    map[string]*editLock{},
	}
}

// Acquire takes the edit lock for id. Re-acquiring by the current holder
// resets the auto-release timer. A lock held by someone else yields a
// ConflictError.
func (m *LockManager) Acquire(id, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.held[id]; ok && l.owner != owner {
		return &registrystore.ConflictError{Message: "locked by " + l.owner}
	}
	if l, ok := m.held[id]; ok {
		l.timer.Stop()
	}

	m.gen++
	l := &editLock{owner: owner, gen: m.gen}
	l.timer = m.expiryTimer(id, l.gen)
	m.held[id] = l
	return nil
}

// Release gives up the lock and cancels its timer. Releasing a lock that is
// not held, or held by someone else, is a no-op.
func (m *LockManager) Release(id, owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.held[id]
	if !ok || l.owner != owner {
		return
	}
	l.timer.Stop()
	delete(m.held, id)
}

// Holder returns the current lock owner, or "" when unlocked.
func (m *LockManager) Holder(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.held[id]; ok {
		return l.owner
	}
	return ""
}

// expiryTimer schedules the auto-release. The generation check makes a stale
// callback harmless: a timer that lost the Stop race against a re-acquire
// finds a newer generation in the map and leaves it alone.
func (m *LockManager) expiryTimer(id string, gen uint64) *time.Timer {
	return time.AfterFunc(m.timeout, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if l, ok := m.held[id]; ok && l.gen == gen {
			delete(m.held, id)
		}
	})
}

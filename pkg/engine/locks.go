package engine

import (
	"sync"

	"github.com/google/uuid"
)

// LockManager serializes conflicting operations on the same object. Every job
// declares its full lock set before running; the set is granted atomically
// and released atomically when the job reaches a terminal status. Grant order
// between conflicting jobs is FIFO by submission, which also makes deadlock
// structurally impossible: there is no incremental acquisition.
type LockManager struct {
	mu      sync.Mutex
	granted map[ObjectRef][]grant
	waiters []*lockWaiter
}

type grant struct {
	jobID uuid.UUID
	write bool
}

type lockWaiter struct {
	jobID uuid.UUID
	seq   int64
	locks []Lock
	ready chan struct{}
}

// NewLockManager creates an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{granted: make(map[ObjectRef][]grant)}
}

// Acquire queues a grant request for the job's full lock set and returns a
// channel closed once every lock is granted. seq is the job's submission
// sequence number and fixes FIFO fairness between conflicting jobs.
func (lm *LockManager) Acquire(jobID uuid.UUID, seq int64, locks []Lock) <-chan struct{} {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	w := &lockWaiter{jobID: jobID, seq: seq, locks: locks, ready: make(chan struct{})}
	if len(locks) == 0 {
		close(w.ready)
		return w.ready
	}

	// Insert in submission order; Submit calls arrive roughly ordered but a
	// dependent job may queue later than a younger independent one.
	idx := len(lm.waiters)
	for i, other := range lm.waiters {
		if seq < other.seq {
			idx = i
			break
		}
	}
	lm.waiters = append(lm.waiters, nil)
	copy(lm.waiters[idx+1:], lm.waiters[idx:])
	lm.waiters[idx] = w

	lm.sweep()
	return w.ready
}

// Release atomically drops every lock held by the job and grants any waiters
// that became compatible.
func (lm *LockManager) Release(jobID uuid.UUID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	for item, grants := range lm.granted {
		kept := grants[:0]
		for _, g := range grants {
			if g.jobID != jobID {
				kept = append(kept, g)
			}
		}
		if len(kept) == 0 {
			delete(lm.granted, item)
		} else {
			lm.granted[item] = kept
		}
	}
	lm.sweep()
}

// Withdraw removes a not-yet-granted request, used when a waiting job is
// cancelled. A request that was already granted must be Released instead.
func (lm *LockManager) Withdraw(jobID uuid.UUID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	for i, w := range lm.waiters {
		if w.jobID == jobID {
			lm.waiters = append(lm.waiters[:i], lm.waiters[i+1:]...)
			break
		}
	}
	lm.sweep()
}

// Held reports the number of granted locks on an item.
func (lm *LockManager) Held(item ObjectRef) int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.granted[item])
}

// HoldsWrite reports whether the job currently holds a write lock on item.
func (lm *LockManager) HoldsWrite(jobID uuid.UUID, item ObjectRef) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for _, g := range lm.granted[item] {
		if g.jobID == jobID && g.write {
			return true
		}
	}
	return false
}

// sweep grants waiters in FIFO order. An item wanted by an earlier waiter
// that could not be granted is barred for later waiters, so a younger read
// lock can never starve an older write lock. Caller holds lm.mu.
func (lm *LockManager) sweep() {
	barred := make(map[ObjectRef]bool)
	kept := lm.waiters[:0]

	for _, w := range lm.waiters {
		if lm.compatible(w, barred) {
			for _, l := range w.locks {
				lm.granted[l.Item] = append(lm.granted[l.Item], grant{jobID: w.jobID, write: l.Write})
			}
			close(w.ready)
			continue
		}
		for _, l := range w.locks {
			barred[l.Item] = true
		}
		kept = append(kept, w)
	}

	// Zero the tail so withdrawn waiters are not retained.
	for i := len(kept); i < len(lm.waiters); i++ {
		lm.waiters[i] = nil
	}
	lm.waiters = kept
}

// compatible reports whether the waiter's entire lock set can be granted now.
func (lm *LockManager) compatible(w *lockWaiter, barred map[ObjectRef]bool) bool {
	for _, l := range w.locks {
		if barred[l.Item] {
			return false
		}
		grants := lm.granted[l.Item]
		if l.Write && len(grants) > 0 {
			return false
		}
		if !l.Write {
			for _, g := range grants {
				if g.write {
					return false
				}
			}
		}
	}
	return true
}

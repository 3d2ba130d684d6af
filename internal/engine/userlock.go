package engine

import "sync"

// userLocks serializes reconciliation per user. Reconciliation is a
// read-modify-write over the user's record set; concurrent runs for the
// same user must not interleave there. Different users proceed
// independently.
type userLocks struct {
	locks map[string]*sync.Mutex
	mu    sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the given user's mutex and returns the unlock function.
// Lock entries are never removed; the user population is small and the
// ordering guarantee depends on all runs contending on the same mutex.
func (l *userLocks) acquire(userID string) func() {
	l.mu.Lock()
	lock, ok := l.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[userID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

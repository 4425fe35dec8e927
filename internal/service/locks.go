package service

import "sync"

// QueueLocks is a keyed mutex: one lock per queue ID, dropped once nobody holds or waits on it.
type QueueLocks struct {
	mu    sync.Mutex
	locks map[string]*queueLock
}

type queueLock struct {
	mu   sync.Mutex
	refs int
}

// NewQueueLocks creates an empty lock table
func NewQueueLocks() *QueueLocks {
	return &QueueLocks{locks: make(map[string]*queueLock)}
}

// Lock blocks until the queue's lock is held and returns its release func.
func (l *QueueLocks) Lock(queueID string) func() {
	l.mu.Lock()
	ql, ok := l.locks[queueID]
	if !ok {
		ql = &queueLock{}
		l.locks[queueID] = ql
	}
	ql.refs++
	l.mu.Unlock()

	ql.mu.Lock()
	return func() {
		ql.mu.Unlock()
		l.mu.Lock()
		ql.refs--
		if ql.refs == 0 {
			delete(l.locks, queueID)
		}
		l.mu.Unlock()
	}
}

func (l *QueueLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

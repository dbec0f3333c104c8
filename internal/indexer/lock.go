package indexer

import "sync/atomic"

// RunLock admits one full regeneration at a time. Callers that lose the race
// get an error instead of queueing behind the winner.
type RunLock struct {
	held atomic.Bool
}

// TryAcquire takes the lock if it is free
func (l *RunLock) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release frees the lock. Only the holder may call it.
func (l *RunLock) Release() {
	l.held.Store(false)
}

// Held reports whether a run is in progress
func (l *RunLock) Held() bool {
	return l.held.Load()
}

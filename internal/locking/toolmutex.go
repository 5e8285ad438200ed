package locking

import "sync"

// ToolMutex serializes all in-process store and LLM-port access so a
// search, ingest, or capture call never races another inside the same
// engine instance. It hands back a release handle instead of exposing
// Lock/Unlock directly, so callers cannot forget to release under a
// panic (pair it with a deferred call to the returned func).
type ToolMutex struct {
	mu sync.Mutex
}

// Acquire blocks until the mutex is free and returns a function that
// releases it.
func (t *ToolMutex) Acquire() func() {
	t.mu.Lock()
	return t.mu.Unlock
}

// TryAcquire attempts to take the mutex without blocking. If ok is
// true, the caller must call the returned release func exactly once.
func (t *ToolMutex) TryAcquire() (release func(), ok bool) {
	if !t.mu.TryLock() {
		return nil, false
	}
	return t.mu.Unlock, true
}

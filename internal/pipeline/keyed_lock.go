package pipeline

import "sync"

// keyedMutex serializes transitions per message_id without a global
// pipeline lock, preserving cross-message parallelism. Acquire is
// non-blocking: a second transition on the same key is rejected rather
// than queued, so callers surface ErrTransitionConflict instead of
// stacking billable work behind a stalled call.
type keyedMutex struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{held: make(map[string]struct{})}
}

// Acquire takes the lock for key, returning false if already held
func (k *keyedMutex) Acquire(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.held[key]; ok {
		return false
	}
	k.held[key] = struct{}{}
	return true
}

// Release frees the lock for key
func (k *keyedMutex) Release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.held, key)
}

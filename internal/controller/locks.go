// ABOUTME: Per-conversation mutex registry serializing callAgent invocations.
// ABOUTME: Lock entries are reference-counted and removed when the last holder releases.

package controller

import "sync"

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// conversationLocks hands out one mutex per conversation id so that two rapid
// sends on the same conversation cannot interleave their suspension points.
// Different conversations proceed independently.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[string]*lockEntry)}
}

// acquire blocks until the lock for key is held and returns the release func.
func (l *conversationLocks) acquire(key string) func() {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &lockEntry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

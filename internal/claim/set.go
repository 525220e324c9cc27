// ABOUTME: Thread-safe idempotency claim set with TTL and size-bounded eviction.
// ABOUTME: Guarantees a unit of work keyed by id runs at most once; failed work releases its claim.

package claim

import (
	"container/list"
	"sync"
	"time"
)

// entry stores the claim timestamp and list element for a held key.
type entry struct {
	claimedAt time.Time
	element   *list.Element
}

// Set tracks claimed work keys. A claim is taken before the work starts and
// released only if the work fails, so concurrent or repeated attempts on the
// same key execute at most once. Claims expire after a TTL and the set is
// size-bounded with oldest-first eviction, so abandoned claims cannot leak.
type Set struct {
	mu      sync.Mutex
	held    map[string]*entry
	order   *list.List // keys in claim order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a claim set with the given TTL and maximum size. A background
// goroutine periodically removes expired claims.
func New(ttl time.Duration, maxSize int) *Set {
	s := &Set{
		held:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go s.cleanup()
	return s
}

// Claim atomically checks whether the key is already held and takes it if
// not. Returns true if the claim was acquired, false if another caller holds
// an unexpired claim on the key.
func (s *Set) Claim(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.held[key]; ok && time.Since(e.claimedAt) < s.ttl {
		return false
	}
	s.takeLocked(key)
	return true
}

// Release gives up a claim so the work can be retried. Safe to call for keys
// that were never claimed.
func (s *Set) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.held[key]
	if !ok {
		return
	}
	s.order.Remove(e.element)
	delete(s.held, key)
}

// Has reports whether the key is currently claimed and unexpired.
func (s *Set) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.held[key]
	if !ok {
		return false
	}
	return time.Since(e.claimedAt) < s.ttl
}

// takeLocked records a claim. Must be called with mu held.
func (s *Set) takeLocked(key string) {
	now := time.Now()

	if e, exists := s.held[key]; exists {
		// Expired claim being re-taken: refresh and move to back.
		e.claimedAt = now
		s.order.MoveToBack(e.element)
		return
	}

	if len(s.held) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.order.PushBack(key)
	s.held[key] = &entry{claimedAt: now, element: elem}
}

// evictOldest removes the oldest claim. Must be called with mu held.
func (s *Set) evictOldest() {
	front := s.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	s.order.Remove(front)
	delete(s.held, key)
}

// cleanup periodically removes expired claims until Close is called.
func (s *Set) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runCleanup()
		case <-s.done:
			return
		}
	}
}

// runCleanup removes all expired claims.
func (s *Set) runCleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, e := range s.held {
		if now.Sub(e.claimedAt) > s.ttl {
			s.order.Remove(e.element)
			delete(s.held, key)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (s *Set) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
}

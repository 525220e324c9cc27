// ABOUTME: Memoized selectors deriving values from the current conversation.
// ABOUTME: Cached per selector identity; the cache is cleared on every state mutation.

package state

import "github.com/loomhq/session-core/internal/conversation"

// Selector derives a value from the current conversation. The cache is keyed
// by selector identity (the pointer), so a given *Selector computes at most
// once between mutations.
type Selector struct {
	Name string
	Fn   func(conv *conversation.Conversation) any
}

// Select returns the selector's value for the current state, computing it
// only if no cached value exists since the last mutation. The conversation
// passed to the selector function may be nil.
func (s *SessionState) Select(sel *Selector) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.cache[sel]; ok {
		return v
	}
	v := sel.Fn(s.current)
	s.cache[sel] = v
	return v
}

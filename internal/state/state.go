// ABOUTME: SessionState is the single in-process source of truth for the current conversation.
// ABOUTME: All mutations go through named entry points so the selector cache invalidates deterministically.

package state

import (
	"log/slog"
	"sync"

	"github.com/loomhq/session-core/internal/conversation"
)

// Flag is the UI-facing status of the session.
type Flag string

const (
	FlagIdle    Flag = "idle"
	FlagLoading Flag = "loading"
	FlagError   Flag = "error"
)

// SessionState owns the authoritative in-memory Conversation observed by the
// UI. Direct field writes are forbidden; every mutation goes through a named
// entry point, which is what keeps the selector cache correct.
type SessionState struct {
	mu        sync.Mutex
	current   *conversation.Conversation
	flag      Flag
	lastError string
	cache     map[*Selector]any
	logger    *slog.Logger
}

// New creates an empty session state. Pass nil logger for the default.
func New(logger *slog.Logger) *SessionState {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionState{
		flag:   FlagIdle,
		cache:  make(map[*Selector]any),
		logger: logger.With("component", "state"),
	}
}

// SetCurrentConversation replaces the active conversation. It is a no-op when
// the incoming conversation is reference-identical or id-identical to the
// existing one, so rapid re-entrant calls do not invalidate the cache
// redundantly. Passing nil clears the current conversation.
func (s *SessionState) SetCurrentConversation(conv *conversation.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv == s.current {
		return
	}
	if conv != nil && s.current != nil && conv.ID != "" && conv.ID == s.current.ID {
		return
	}

	s.current = conv
	s.invalidateLocked()

	if conv != nil {
		s.logger.Debug("current conversation set",
			"conversation_id", conv.ID,
			"messages", len(conv.Messages))
	} else {
		s.logger.Debug("current conversation cleared")
	}
}

// Current returns the live conversation object, or nil. Callers must treat it
// as read-only; all writes go through the entry points on SessionState.
func (s *SessionState) Current() *conversation.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// CurrentID returns the id of the current conversation, or "".
func (s *SessionState) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.ID
}

// Messages returns a snapshot copy of the current message list.
func (s *SessionState) Messages() []conversation.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	out := make([]conversation.Message, len(s.current.Messages))
	copy(out, s.current.Messages)
	return out
}

// MessageCount returns the number of messages in the current conversation.
func (s *SessionState) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0
	}
	return len(s.current.Messages)
}

// AddMessage appends a message to the current conversation. Messages are
// strictly append-only; nothing reorders them after this point.
func (s *SessionState) AddMessage(msg conversation.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		s.logger.Warn("add message with no current conversation",
			"message_id", msg.ID)
		return
	}
	s.current.Messages = append(s.current.Messages, msg)
	s.invalidateLocked()
}

// UpdateMessage merges updates into the message matching id. The message's
// position in the list never changes. Returns false if no message matched.
func (s *SessionState) UpdateMessage(id string, upd conversation.MessageUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return false
	}
	msg := s.current.FindMessage(id)
	if msg == nil {
		return false
	}
	upd.Apply(msg)
	s.invalidateLocked()
	return true
}

// SetConversationID patches only the id field of the current conversation.
// Used when the backend returns an authoritative id that differs from the one
// held locally. No-op if the id already matches or no conversation is set.
func (s *SessionState) SetConversationID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.ID == id {
		return
	}
	s.logger.Debug("conversation id reconciled",
		"old_id", s.current.ID,
		"new_id", id)
	s.current.ID = id
	s.invalidateLocked()
}

// SetConversationStatus updates the lifecycle status of the current conversation.
func (s *SessionState) SetConversationStatus(status conversation.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.Status == status {
		return
	}
	s.current.Status = status
	s.invalidateLocked()
}

// SetFlag sets the UI status flag and clears any previous error message.
func (s *SessionState) SetFlag(f Flag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flag = f
	if f != FlagError {
		s.lastError = ""
	}
}

// SetError sets the error flag with a human-readable message.
func (s *SessionState) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flag = FlagError
	s.lastError = msg
}

// Flag returns the current UI status flag and error message, if any.
func (s *SessionState) Flag() (Flag, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flag, s.lastError
}

// Clear removes the current conversation, used on deletion or logout.
func (s *SessionState) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.flag = FlagIdle
	s.lastError = ""
	s.invalidateLocked()
}

// invalidateLocked drops every memoized selector value. Must be called with
// mu held, on every state mutation, so stale derived values are never served
// after a write.
func (s *SessionState) invalidateLocked() {
	clear(s.cache)
}

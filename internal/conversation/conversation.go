// ABOUTME: Core data model for conversations and messages used across the session core.
// ABOUTME: Defines statuses, roles, sender types, and the derivation rules between them.

package conversation

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusNew        Status = "NEW"
	StatusActive     Status = "ACTIVE"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusError      Status = "ERROR"
	StatusPaused     Status = "PAUSED"
	StatusResumed    Status = "RESUMED"
	StatusArchived   Status = "ARCHIVED"
	StatusCancelled  Status = "CANCELLED"
	StatusDeleted    Status = "DELETED"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// SenderType is the wire-level sender classification stored alongside the role.
type SenderType string

const (
	SenderHuman  SenderType = "human"
	SenderAI     SenderType = "ai"
	SenderSystem SenderType = "system"
)

// SenderForRole derives the sender type from a role. Callers may override the
// result; this is only the default mapping. Any non-user role maps to "ai".
func SenderForRole(role Role) SenderType {
	if role == RoleUser {
		return SenderHuman
	}
	return SenderAI
}

// Message is a single entry in a conversation. A Message with an empty ID has
// not been persisted by the record store yet; ConversationID must equal the
// owning conversation's id before the message counts as committed.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           Role           `json:"role"`
	SenderType     SenderType     `json:"sender_type"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Conversation is the authoritative object held by the session state. The
// message slice is strictly append-only: updates mutate fields of an existing
// entry in place, never its position.
type Conversation struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	UserID    string         `json:"user_id"`
	AgentID   string         `json:"agent_id,omitempty"`
	Status    Status         `json:"status"`
	Messages  []Message      `json:"messages"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// PendingFirstContact reports whether this conversation is eligible for the
// one-time automatic processing of its initial message.
func (c *Conversation) PendingFirstContact() bool {
	return c.Status == StatusNew && len(c.Messages) == 1
}

// FindMessage returns the message with the given id, or nil.
func (c *Conversation) FindMessage(id string) *Message {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return &c.Messages[i]
		}
	}
	return nil
}

// DefaultTitle generates a display title from a creation timestamp. Used when
// the backend or caller supplies no title.
func DefaultTitle(t time.Time) string {
	return fmt.Sprintf("Conversation %s", t.Format("2006-01-02 15:04"))
}

// ConversationUpdate is a partial update applied to a conversation. Nil fields
// are left unchanged.
type ConversationUpdate struct {
	Title    *string        `json:"title,omitempty"`
	Status   *Status        `json:"status,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MessageUpdate is a partial update applied to an existing message. Nil fields
// are left unchanged.
type MessageUpdate struct {
	Content  *string        `json:"content,omitempty"`
	Role     *Role          `json:"role,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Apply merges the update into the message.
func (u MessageUpdate) Apply(m *Message) {
	if u.Content != nil {
		m.Content = *u.Content
	}
	if u.Role != nil {
		m.Role = *u.Role
	}
	if u.Metadata != nil {
		m.Metadata = u.Metadata
	}
}

// Apply merges the update into the conversation.
func (u ConversationUpdate) Apply(c *Conversation) {
	if u.Title != nil {
		c.Title = *u.Title
	}
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.Metadata != nil {
		c.Metadata = u.Metadata
	}
}

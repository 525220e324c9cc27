// ABOUTME: Store interface for conversation record persistence
// ABOUTME: Defines the operations the record store HTTP handlers run against

package store

import (
	"context"
	"errors"

	"github.com/loomhq/session-core/internal/conversation"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when creating a conversation whose id already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// Store defines the persistence operations for conversations and messages.
// Messages are returned in insertion order.
type Store interface {
	CreateConversation(ctx context.Context, conv *conversation.Conversation) error
	GetConversation(ctx context.Context, id string) (*conversation.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]conversation.Conversation, error)
	UpdateConversation(ctx context.Context, id string, upd conversation.ConversationUpdate) (*conversation.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	SaveMessage(ctx context.Context, msg *conversation.Message) error
	GetMessages(ctx context.Context, conversationID string) ([]conversation.Message, error)
	UpdateMessage(ctx context.Context, conversationID, messageID string, upd conversation.MessageUpdate) (*conversation.Message, error)
	DeleteMessage(ctx context.Context, conversationID, messageID string) error

	Close() error
}

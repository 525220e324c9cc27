// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loomhq/session-core/internal/conversation"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// PRAGMAs apply per connection, so keep the pool at one connection.
	// This also avoids SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			user_id TEXT NOT NULL,
			agent_id TEXT,
			status TEXT NOT NULL,
			metadata_json TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_user
			ON conversations(user_id);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			sender_type TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata_json TEXT,
			created_at TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// encodeMetadata serializes metadata to JSON, returning nil for empty maps
func encodeMetadata(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	return string(data), nil
}

// decodeMetadata deserializes a nullable JSON metadata column
func decodeMetadata(raw *string) (map[string]any, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(*raw), &m); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return m, nil
}

// CreateConversation inserts a new conversation.
// Returns ErrDuplicateConversation if the id is already taken.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *conversation.Conversation) error {
	metadata, err := encodeMetadata(conv.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO conversations (id, title, user_id, agent_id, status, metadata_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		conv.ID,
		conv.Title,
		conv.UserID,
		nullString(conv.AgentID),
		string(conv.Status),
		metadata,
		conv.CreatedAt.UTC().Format(time.RFC3339),
		conv.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "user_id", conv.UserID)
	return nil
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// scanConversation reads one conversation row.
func scanConversation(scan func(dest ...any) error) (*conversation.Conversation, error) {
	var conv conversation.Conversation
	var agentID, metadataRaw *string
	var createdAtStr, updatedAtStr, status string

	err := scan(
		&conv.ID,
		&conv.Title,
		&conv.UserID,
		&agentID,
		&status,
		&metadataRaw,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	conv.Status = conversation.Status(status)
	if agentID != nil {
		conv.AgentID = *agentID
	}
	conv.Metadata, err = decodeMetadata(metadataRaw)
	if err != nil {
		return nil, err
	}
	conv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	conv.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &conv, nil
}

const conversationColumns = "id, title, user_id, agent_id, status, metadata_json, created_at, updated_at"

// GetConversation retrieves a conversation by ID including its messages.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	query := "SELECT " + conversationColumns + " FROM conversations WHERE id = ?"

	row := s.db.QueryRowContext(ctx, query, id)
	conv, err := scanConversation(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv.Messages, err = s.GetMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations retrieves all conversations for a user, newest first.
// Messages are not loaded.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]conversation.Conversation, error) {
	query := "SELECT " + conversationColumns + " FROM conversations WHERE user_id = ? ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var conversations []conversation.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		conversations = append(conversations, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return conversations, nil
}

// UpdateConversation applies a partial update and returns the updated conversation.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, id string, upd conversation.ConversationUpdate) (*conversation.Conversation, error) {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	upd.Apply(conv)
	conv.UpdatedAt = time.Now()

	metadata, err := encodeMetadata(conv.Metadata)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE conversations
		SET title = ?, status = ?, metadata_json = ?, updated_at = ?
		WHERE id = ?
	`
	_, err = s.db.ExecContext(ctx, query,
		conv.Title,
		string(conv.Status),
		metadata,
		conv.UpdatedAt.UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating conversation: %w", err)
	}

	s.logger.Debug("updated conversation", "id", id)
	return conv, nil
}

// DeleteConversation removes a conversation and its messages.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted conversation", "id", id)
	return nil
}

// SaveMessage inserts a message against its conversation.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *conversation.Message) error {
	metadata, err := encodeMetadata(msg.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO messages (id, conversation_id, role, sender_type, content, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		string(msg.Role),
		string(msg.SenderType),
		msg.Content,
		metadata,
		msg.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		// FOREIGN KEY failure means the conversation is missing
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return ErrNotFound
		}
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "conversation_id", msg.ConversationID, "role", msg.Role)
	return nil
}

// GetMessages retrieves all messages for a conversation in insertion order.
// Insertion order is the commit order, not the client-supplied created_at,
// so concurrent writers with skewed clocks cannot reorder history.
func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	query := `
		SELECT id, conversation_id, role, sender_type, content, metadata_json, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []conversation.Message
	for rows.Next() {
		var msg conversation.Message
		var role, senderType, createdAtStr string
		var metadataRaw *string

		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &senderType, &msg.Content, &metadataRaw, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.Role = conversation.Role(role)
		msg.SenderType = conversation.SenderType(senderType)
		msg.Metadata, err = decodeMetadata(metadataRaw)
		if err != nil {
			return nil, err
		}
		msg.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}

		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}

// UpdateMessage applies a partial update to a message and returns the updated copy.
// Returns ErrNotFound if the message doesn't exist in the given conversation.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, conversationID, messageID string, upd conversation.MessageUpdate) (*conversation.Message, error) {
	query := `
		SELECT id, conversation_id, role, sender_type, content, metadata_json, created_at
		FROM messages
		WHERE id = ? AND conversation_id = ?
	`

	var msg conversation.Message
	var role, senderType, createdAtStr string
	var metadataRaw *string

	err := s.db.QueryRowContext(ctx, query, messageID, conversationID).Scan(
		&msg.ID, &msg.ConversationID, &role, &senderType, &msg.Content, &metadataRaw, &createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}

	msg.Role = conversation.Role(role)
	msg.SenderType = conversation.SenderType(senderType)
	msg.Metadata, err = decodeMetadata(metadataRaw)
	if err != nil {
		return nil, err
	}
	msg.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing message created_at: %w", err)
	}

	upd.Apply(&msg)

	metadata, err := encodeMetadata(msg.Metadata)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE messages SET role = ?, content = ?, metadata_json = ? WHERE id = ? AND conversation_id = ?",
		string(msg.Role), msg.Content, metadata, messageID, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating message: %w", err)
	}

	s.logger.Debug("updated message", "id", messageID, "conversation_id", conversationID)
	return &msg, nil
}

// DeleteMessage removes a message from a conversation.
// Returns ErrNotFound if the message doesn't exist in the given conversation.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM messages WHERE id = ? AND conversation_id = ?",
		messageID, conversationID,
	)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted message", "id", messageID, "conversation_id", conversationID)
	return nil
}

// ABOUTME: Conversation Gateway: per-conversation HTTP proxy to the conversation record store.
// ABOUTME: Holds an advisory working copy of the current conversation id, resynchronized only via SetID/SetConversation.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/loomhq/session-core/internal/conversation"
)

// Gateway wraps the record store REST API, scoped to one conversation id at a
// time. Its id/conversation fields are advisory: they exist only to target
// backend calls and are changed exclusively through SetID/SetConversation.
type Gateway struct {
	baseURL string
	token   string
	userID  string
	agentID string
	client  *http.Client
	logger  *slog.Logger

	mu             sync.Mutex
	conversationID string
	conv           *conversation.Conversation
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

// WithTimeout sets the per-request timeout on the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.client.Timeout = d
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l.With("component", "gateway") }
}

// New creates a Gateway for the given user against the record store at
// baseURL. The token is sent as a bearer credential on every call.
func New(baseURL, token, userID, agentID string, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		userID:  userID,
		agentID: agentID,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default().With("component", "gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// createConversationRequest is the JSON body for POST /conversations.
type createConversationRequest struct {
	Title    string         `json:"title"`
	AgentID  string         `json:"agent_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// addMessageRequest is the JSON body for POST /conversations/:id/message.
type addMessageRequest struct {
	Content        string                  `json:"content"`
	Role           conversation.Role       `json:"role"`
	SenderType     conversation.SenderType `json:"sender_type"`
	ConversationID string                  `json:"conversation_id"`
	Metadata       map[string]any          `json:"metadata,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
}

// listConversationsResponse is the JSON body of GET /conversations.
type listConversationsResponse struct {
	Conversations []conversation.Conversation `json:"conversations"`
}

// AddMessageInput describes a message to append to the current conversation.
// Role defaults to "user"; Sender is derived from the role unless set;
// CreatedAt defaults to the current time.
type AddMessageInput struct {
	Content   string
	Role      conversation.Role
	Sender    conversation.SenderType
	Metadata  map[string]any
	CreatedAt time.Time
}

// Start creates a new conversation and immediately appends content as its
// first user message, returning the full conversation including the persisted
// message. If the append fails after creation succeeded, the created
// conversation is NOT rolled back: a conversation with zero messages may
// legitimately exist on the backend.
func (g *Gateway) Start(ctx context.Context, content string) (*conversation.Conversation, error) {
	if g.userID == "" {
		return nil, fmt.Errorf("%w: gateway has no user", conversation.ErrNotReady)
	}

	var conv conversation.Conversation
	req := createConversationRequest{
		Title:   conversation.DefaultTitle(time.Now()),
		AgentID: g.agentID,
	}
	if err := g.do(ctx, http.MethodPost, "/conversations", req, &conv); err != nil {
		return nil, fmt.Errorf("%w: creating conversation: %v", conversation.ErrCreation, err)
	}
	if conv.Status == "" {
		conv.Status = conversation.StatusNew
	}

	g.mu.Lock()
	g.conversationID = conv.ID
	g.conv = &conv
	g.mu.Unlock()

	g.logger.Debug("conversation created", "conversation_id", conv.ID)

	msg, err := g.AddMessage(ctx, AddMessageInput{Content: content, Role: conversation.RoleUser})
	if err != nil {
		return nil, fmt.Errorf("%w: appending first message: %v", conversation.ErrCreation, err)
	}
	conv.Messages = append(conv.Messages, *msg)
	return &conv, nil
}

// GetConversation fetches a conversation by id, filling in defaults for
// missing status (ACTIVE) and title so callers never observe empty required
// fields. It does not change the gateway's working copy.
func (g *Gateway) GetConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	var conv conversation.Conversation
	if err := g.do(ctx, http.MethodGet, "/conversations/"+id, nil, &conv); err != nil {
		return nil, fmt.Errorf("fetching conversation %s: %w", id, err)
	}
	if conv.Status == "" {
		conv.Status = conversation.StatusActive
	}
	if conv.Title == "" {
		conv.Title = conversation.DefaultTitle(time.Now())
	}
	return &conv, nil
}

// ListConversations returns the current user's conversations.
func (g *Gateway) ListConversations(ctx context.Context) ([]conversation.Conversation, error) {
	var resp listConversationsResponse
	if err := g.do(ctx, http.MethodGet, "/conversations", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	return resp.Conversations, nil
}

// AddMessage persists a message against the current conversation and returns
// the backend copy including the assigned id. Requires readiness.
func (g *Gateway) AddMessage(ctx context.Context, in AddMessageInput) (*conversation.Message, error) {
	if err := g.Validate(false); err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = conversation.RoleUser
	}
	sender := in.Sender
	if sender == "" {
		sender = conversation.SenderForRole(role)
	}
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	convID := g.ConversationID()
	req := addMessageRequest{
		Content:        in.Content,
		Role:           role,
		SenderType:     sender,
		ConversationID: convID,
		Metadata:       in.Metadata,
		CreatedAt:      createdAt,
	}

	var msg conversation.Message
	if err := g.do(ctx, http.MethodPost, "/conversations/"+convID+"/message", req, &msg); err != nil {
		return nil, fmt.Errorf("%w: posting message: %v", conversation.ErrPersist, err)
	}
	return &msg, nil
}

// UpdateMessage applies a partial update to a persisted message. Requires readiness.
func (g *Gateway) UpdateMessage(ctx context.Context, id string, upd conversation.MessageUpdate) (*conversation.Message, error) {
	if err := g.Validate(false); err != nil {
		return nil, err
	}
	var msg conversation.Message
	path := "/conversations/" + g.ConversationID() + "/messages/" + id
	if err := g.do(ctx, http.MethodPut, path, upd, &msg); err != nil {
		return nil, fmt.Errorf("%w: updating message %s: %v", conversation.ErrPersist, id, err)
	}
	return &msg, nil
}

// DeleteMessage removes a persisted message. Requires readiness.
func (g *Gateway) DeleteMessage(ctx context.Context, id string) error {
	if err := g.Validate(false); err != nil {
		return err
	}
	path := "/conversations/" + g.ConversationID() + "/messages/" + id
	if err := g.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("%w: deleting message %s: %v", conversation.ErrPersist, id, err)
	}
	return nil
}

// UpdateConversation applies a partial update to the current conversation.
// Requires readiness.
func (g *Gateway) UpdateConversation(ctx context.Context, upd conversation.ConversationUpdate) (*conversation.Conversation, error) {
	if err := g.Validate(false); err != nil {
		return nil, err
	}
	var conv conversation.Conversation
	if err := g.do(ctx, http.MethodPut, "/conversations/"+g.ConversationID(), upd, &conv); err != nil {
		return nil, fmt.Errorf("%w: updating conversation: %v", conversation.ErrPersist, err)
	}
	return &conv, nil
}

// DeleteConversation removes a conversation by id. Requires readiness.
func (g *Gateway) DeleteConversation(ctx context.Context, id string) error {
	if err := g.Validate(false); err != nil {
		return err
	}
	if err := g.do(ctx, http.MethodDelete, "/conversations/"+id, nil, nil); err != nil {
		return fmt.Errorf("%w: deleting conversation %s: %v", conversation.ErrPersist, id, err)
	}
	return nil
}

// SetID resynchronizes the gateway's notion of the current conversation id.
// A stale working copy with a different id is dropped.
func (g *Gateway) SetID(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conversationID == id {
		return
	}
	g.logger.Debug("gateway id resynchronized", "old_id", g.conversationID, "new_id", id)
	g.conversationID = id
	if g.conv != nil && g.conv.ID != id {
		g.conv = nil
	}
}

// SetConversation resynchronizes the gateway's working copy. It is a no-op
// when the incoming conversation's id equals the current id, so repeated
// resynchronization at controller checkpoints is idempotent. Passing nil
// clears the working copy.
func (g *Gateway) SetConversation(conv *conversation.Conversation) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if conv == nil {
		g.conversationID = ""
		g.conv = nil
		return
	}
	if g.conversationID != "" && conv.ID == g.conversationID {
		return
	}
	g.conversationID = conv.ID
	g.conv = conv
}

// ConversationID returns the gateway's current conversation id, or "".
func (g *Gateway) ConversationID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conversationID
}

// Conversation returns the gateway's working copy, or nil. Advisory only.
func (g *Gateway) Conversation() *conversation.Conversation {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conv
}

// Validate checks readiness: the gateway must have a user and a conversation
// id, and (if requireConversation) a conversation object. Failing validation
// performs no network call.
func (g *Gateway) Validate(requireConversation bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.userID == "" {
		return fmt.Errorf("%w: gateway has no user", conversation.ErrNotReady)
	}
	if g.conversationID == "" {
		return fmt.Errorf("%w: gateway has no conversation id", conversation.ErrNotReady)
	}
	if requireConversation && g.conv == nil {
		return fmt.Errorf("%w: gateway has no conversation object", conversation.ErrNotReady)
	}
	return nil
}

// do executes one JSON request against the record store. Credentials are
// always included; any non-2xx response is a failure regardless of body.
func (g *Gateway) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

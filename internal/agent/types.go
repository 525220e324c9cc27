// ABOUTME: Request/response types for the agent processor wire protocol.
// ABOUTME: Includes the fixed-precedence conversation id extraction used for reconciliation.

package agent

import "github.com/loomhq/session-core/internal/conversation"

// Request is the JSON body sent to the agent processor. ConversationID is
// omitted for first contact, letting the backend mint an id.
type Request struct {
	Messages       []conversation.Message `json:"messages"`
	ConversationID string                 `json:"conversationId,omitempty"`
	Metadata       map[string]any         `json:"metadata,omitempty"`
}

// ResponseData carries the generated reply and its metadata.
type ResponseData struct {
	Answer         string         `json:"answer"`
	ConversationID string         `json:"conversationId,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Response is the JSON body returned by the agent processor. Data is nil on
// failure responses.
type Response struct {
	Success        bool          `json:"success"`
	Error          string        `json:"error,omitempty"`
	Data           *ResponseData `json:"data,omitempty"`
	ConversationID string        `json:"conversationId,omitempty"`
}

// ConversationIDHint extracts the conversation id reported by the agent, in
// fixed precedence order: data.metadata.conversationId, then
// data.conversationId, then the top-level conversationId. Returns "" if the
// response carries none.
func (r *Response) ConversationIDHint() string {
	if r.Data != nil {
		if id, ok := r.Data.Metadata["conversationId"].(string); ok && id != "" {
			return id
		}
		if r.Data.ConversationID != "" {
			return r.Data.ConversationID
		}
	}
	return r.ConversationID
}

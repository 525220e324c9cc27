// ABOUTME: HTTP handlers for the conversation record store REST API
// ABOUTME: Implements conversation and message CRUD against the Store interface

package backend

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/loomhq/session-core/internal/auth"
	"github.com/loomhq/session-core/internal/conversation"
	"github.com/loomhq/session-core/internal/store"
)

// anonymousUser is the owner recorded when the API runs unauthenticated.
const anonymousUser = "local"

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store errors to HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrDuplicateConversation):
		writeError(w, http.StatusConflict, "conversation already exists")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// requestUser returns the authenticated user or the anonymous fallback.
func requestUser(r *http.Request) string {
	if id := auth.UserFromContext(r.Context()); id != "" {
		return id
	}
	return anonymousUser
}

// ownedConversation loads the conversation addressed by the request path and
// verifies it belongs to the requesting user. Conversations owned by someone
// else surface as ErrNotFound so ids reveal nothing across users.
func (s *Server) ownedConversation(r *http.Request) (*conversation.Conversation, error) {
	conv, err := s.store.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		return nil, err
	}
	if conv.UserID != requestUser(r) {
		return nil, store.ErrNotFound
	}
	return conv, nil
}

type createConversationRequest struct {
	Title          string         `json:"title"`
	AgentID        string         `json:"agent_id"`
	Metadata       map[string]any `json:"metadata"`
	InitialMessage string         `json:"initial_message"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	now := time.Now()
	conv := &conversation.Conversation{
		ID:        uuid.NewString(),
		Title:     req.Title,
		UserID:    requestUser(r),
		AgentID:   req.AgentID,
		Status:    conversation.StatusNew,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if conv.Title == "" {
		conv.Title = conversation.DefaultTitle(now)
	}

	if err := s.store.CreateConversation(r.Context(), conv); err != nil {
		writeStoreError(w, err)
		return
	}

	if req.InitialMessage != "" {
		msg := &conversation.Message{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			Role:           conversation.RoleUser,
			SenderType:     conversation.SenderHuman,
			Content:        req.InitialMessage,
			CreatedAt:      now,
		}
		if err := s.store.SaveMessage(r.Context(), msg); err != nil {
			writeStoreError(w, err)
			return
		}
		conv.Messages = append(conv.Messages, *msg)
	}

	s.logger.Info("conversation created", "conversation_id", conv.ID, "user_id", conv.UserID)
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.store.ListConversations(r.Context(), requestUser(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if convs == nil {
		convs = []conversation.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.ownedConversation(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	var upd conversation.ConversationUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := s.ownedConversation(r); err != nil {
		writeStoreError(w, err)
		return
	}

	conv, err := s.store.UpdateConversation(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ownedConversation(r); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.store.DeleteConversation(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addMessageRequest struct {
	Content    string                  `json:"content"`
	Role       conversation.Role       `json:"role"`
	SenderType conversation.SenderType `json:"sender_type"`
	Metadata   map[string]any          `json:"metadata"`
	CreatedAt  time.Time               `json:"created_at"`
}

func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	var req addMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	if _, err := s.ownedConversation(r); err != nil {
		writeStoreError(w, err)
		return
	}

	role := req.Role
	if role == "" {
		role = conversation.RoleUser
	}
	sender := req.SenderType
	if sender == "" {
		sender = conversation.SenderForRole(role)
	}
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	msg := &conversation.Message{
		ID:             uuid.NewString(),
		ConversationID: r.PathValue("id"),
		Role:           role,
		SenderType:     sender,
		Content:        req.Content,
		Metadata:       req.Metadata,
		CreatedAt:      createdAt,
	}

	if err := s.store.SaveMessage(r.Context(), msg); err != nil {
		writeStoreError(w, err)
		return
	}

	s.logger.Debug("message saved", "conversation_id", msg.ConversationID, "message_id", msg.ID, "role", role)
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	var upd conversation.MessageUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := s.ownedConversation(r); err != nil {
		writeStoreError(w, err)
		return
	}

	msg, err := s.store.UpdateMessage(r.Context(), r.PathValue("id"), r.PathValue("messageId"), upd)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ownedConversation(r); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.store.DeleteMessage(r.Context(), r.PathValue("id"), r.PathValue("messageId")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

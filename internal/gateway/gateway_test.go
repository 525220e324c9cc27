// ABOUTME: Tests for the conversation gateway against an httptest record store.
// ABOUTME: Verifies readiness enforcement, start() partial failure, defaults, and resync idempotence.

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/session-core/internal/conversation"
)

// recordStore is a minimal in-memory record store handler for tests.
type recordStore struct {
	hits        atomic.Int64
	failMessage bool // force POST .../message to fail
	created     atomic.Int64
}

func (rs *recordStore) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /conversations", func(w http.ResponseWriter, r *http.Request) {
		rs.hits.Add(1)
		rs.created.Add(1)
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		title, _ := req["title"].(string)
		writeJSON(w, http.StatusCreated, conversation.Conversation{
			ID:        "c1",
			Title:     title,
			UserID:    "user-1",
			Status:    conversation.StatusNew,
			CreatedAt: time.Now(),
		})
	})

	mux.HandleFunc("GET /conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		rs.hits.Add(1)
		// Deliberately missing status and title to exercise default fill-in.
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      r.PathValue("id"),
			"user_id": "user-1",
			"messages": []conversation.Message{
				{ID: "m1", ConversationID: r.PathValue("id"), Role: conversation.RoleUser, Content: "hi"},
			},
		})
	})

	mux.HandleFunc("POST /conversations/{id}/message", func(w http.ResponseWriter, r *http.Request) {
		rs.hits.Add(1)
		if rs.failMessage {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "db write failed"})
			return
		}
		var req addMessageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, http.StatusCreated, conversation.Message{
			ID:             "m1",
			ConversationID: r.PathValue("id"),
			Role:           req.Role,
			SenderType:     req.SenderType,
			Content:        req.Content,
			Metadata:       req.Metadata,
			CreatedAt:      req.CreatedAt,
		})
	})

	mux.HandleFunc("PUT /conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		rs.hits.Add(1)
		var upd conversation.ConversationUpdate
		_ = json.NewDecoder(r.Body).Decode(&upd)
		conv := conversation.Conversation{ID: r.PathValue("id"), Status: conversation.StatusActive}
		upd.Apply(&conv)
		writeJSON(w, http.StatusOK, conv)
	})

	mux.HandleFunc("DELETE /conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		rs.hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestGateway(t *testing.T, rs *recordStore) *Gateway {
	t.Helper()
	srv := httptest.NewServer(rs.handler())
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-token", "user-1", "agent-1")
}

func TestStart(t *testing.T) {
	rs := &recordStore{}
	g := newTestGateway(t, rs)

	conv, err := g.Start(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "c1", conv.ID)
	assert.Equal(t, conversation.StatusNew, conv.Status)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, conversation.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, conversation.SenderHuman, conv.Messages[0].SenderType)
	assert.Equal(t, "Hello", conv.Messages[0].Content)
	assert.Equal(t, "c1", g.ConversationID())
}

func TestStart_PartialFailureLeavesConversation(t *testing.T) {
	rs := &recordStore{failMessage: true}
	g := newTestGateway(t, rs)

	_, err := g.Start(context.Background(), "Hello")
	require.ErrorIs(t, err, conversation.ErrCreation)

	// The create succeeded and is not rolled back: the backend may hold a
	// conversation with zero messages.
	assert.Equal(t, int64(1), rs.created.Load())
	assert.Equal(t, "c1", g.ConversationID())
}

func TestStart_NoUser(t *testing.T) {
	rs := &recordStore{}
	srv := httptest.NewServer(rs.handler())
	t.Cleanup(srv.Close)

	g := New(srv.URL, "test-token", "", "agent-1")
	_, err := g.Start(context.Background(), "Hello")
	assert.ErrorIs(t, err, conversation.ErrNotReady)
	assert.Equal(t, int64(0), rs.hits.Load(), "no network call without a user")
}

func TestGetConversation_FillsDefaults(t *testing.T) {
	rs := &recordStore{}
	g := newTestGateway(t, rs)

	conv, err := g.GetConversation(context.Background(), "c7")
	require.NoError(t, err)
	assert.Equal(t, "c7", conv.ID)
	assert.Equal(t, conversation.StatusActive, conv.Status, "missing status defaults to ACTIVE")
	assert.NotEmpty(t, conv.Title, "missing title is generated")
	require.Len(t, conv.Messages, 1)
}

func TestAddMessage_NotReady(t *testing.T) {
	rs := &recordStore{}
	g := newTestGateway(t, rs)

	_, err := g.AddMessage(context.Background(), AddMessageInput{Content: "hi"})
	assert.ErrorIs(t, err, conversation.ErrNotReady)
	assert.Equal(t, int64(0), rs.hits.Load(), "readiness failure must not reach the network")
}

func TestAddMessage_Derivation(t *testing.T) {
	rs := &recordStore{}
	g := newTestGateway(t, rs)
	g.SetID("c1")

	msg, err := g.AddMessage(context.Background(), AddMessageInput{Content: "hi", Role: conversation.RoleAssistant})
	require.NoError(t, err)
	assert.Equal(t, conversation.SenderAI, msg.SenderType, "non-user role derives sender ai")
	assert.Equal(t, "c1", msg.ConversationID)
	assert.False(t, msg.CreatedAt.IsZero(), "created_at is assigned client-side")
}

func TestAddMessage_SenderOverride(t *testing.T) {
	rs := &recordStore{}
	g := newTestGateway(t, rs)
	g.SetID("c1")

	msg, err := g.AddMessage(context.Background(), AddMessageInput{
		Content: "hi",
		Role:    conversation.RoleSystem,
		Sender:  conversation.SenderSystem,
	})
	require.NoError(t, err)
	assert.Equal(t, conversation.SenderSystem, msg.SenderType)
}

func TestAddMessage_PersistError(t *testing.T) {
	rs := &recordStore{failMessage: true}
	g := newTestGateway(t, rs)
	g.SetID("c1")

	_, err := g.AddMessage(context.Background(), AddMessageInput{Content: "hi"})
	assert.ErrorIs(t, err, conversation.ErrPersist)
}

func TestSetConversation_Idempotent(t *testing.T) {
	g := New("http://unused", "", "user-1", "")

	first := &conversation.Conversation{ID: "c1"}
	g.SetConversation(first)
	require.Equal(t, "c1", g.ConversationID())
	require.Same(t, first, g.Conversation())

	// Same id, different object: no-op.
	g.SetConversation(&conversation.Conversation{ID: "c1"})
	assert.Same(t, first, g.Conversation())

	// Different id: adopted.
	second := &conversation.Conversation{ID: "c2"}
	g.SetConversation(second)
	assert.Equal(t, "c2", g.ConversationID())
	assert.Same(t, second, g.Conversation())

	// Nil clears everything.
	g.SetConversation(nil)
	assert.Equal(t, "", g.ConversationID())
	assert.Nil(t, g.Conversation())
}

func TestSetID_DropsStaleWorkingCopy(t *testing.T) {
	g := New("http://unused", "", "user-1", "")

	g.SetConversation(&conversation.Conversation{ID: "c1"})
	g.SetID("c2")

	assert.Equal(t, "c2", g.ConversationID())
	assert.Nil(t, g.Conversation(), "working copy with a different id is dropped")
}

func TestValidate(t *testing.T) {
	g := New("http://unused", "", "user-1", "")

	assert.ErrorIs(t, g.Validate(false), conversation.ErrNotReady)

	g.SetID("c1")
	assert.NoError(t, g.Validate(false))
	assert.ErrorIs(t, g.Validate(true), conversation.ErrNotReady, "no conversation object held")

	g.SetConversation(&conversation.Conversation{ID: "c1"})
	// Same id: SetConversation is a no-op, the object is still absent.
	assert.ErrorIs(t, g.Validate(true), conversation.ErrNotReady)

	g.SetID("")
	g.SetConversation(&conversation.Conversation{ID: "c1"})
	assert.NoError(t, g.Validate(true))
}

func TestUpdateAndDelete(t *testing.T) {
	rs := &recordStore{}
	g := newTestGateway(t, rs)
	g.SetID("c1")

	title := "renamed"
	conv, err := g.UpdateConversation(context.Background(), conversation.ConversationUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "renamed", conv.Title)

	require.NoError(t, g.DeleteConversation(context.Background(), "c1"))
}

func TestCredentialsIncluded(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, map[string]any{"conversations": []any{}})
	}))
	t.Cleanup(srv.Close)

	g := New(srv.URL, "secret-token", "user-1", "")
	_, err := g.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}

func TestWithTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	g := New(srv.URL, "", "user-1", "", WithTimeout(20*time.Millisecond))
	assert.Equal(t, 20*time.Millisecond, g.client.Timeout)

	g.SetID("c1")
	_, err := g.GetConversation(context.Background(), "c1")
	require.Error(t, err)
}

// ABOUTME: Session Controller orchestrating send-message and first-contact flows.
// ABOUTME: Reconciles conversation ids across the gateway, shared state, and backend responses.

package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loomhq/session-core/internal/agent"
	"github.com/loomhq/session-core/internal/claim"
	"github.com/loomhq/session-core/internal/conversation"
	"github.com/loomhq/session-core/internal/gateway"
	"github.com/loomhq/session-core/internal/state"
)

// First-contact claims are TTL-bounded so a crashed flow cannot block a
// conversation forever.
const (
	claimTTL     = time.Hour
	claimMaxSize = 100_000
)

// ConversationGateway is what the controller needs from the gateway layer.
type ConversationGateway interface {
	Start(ctx context.Context, content string) (*conversation.Conversation, error)
	GetConversation(ctx context.Context, id string) (*conversation.Conversation, error)
	AddMessage(ctx context.Context, in gateway.AddMessageInput) (*conversation.Message, error)
	UpdateConversation(ctx context.Context, upd conversation.ConversationUpdate) (*conversation.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	SetID(id string)
	SetConversation(conv *conversation.Conversation)
	ConversationID() string
}

// AgentCaller is what the controller needs from the agent processor.
type AgentCaller interface {
	Generate(ctx context.Context, req *agent.Request) (*agent.Response, error)
}

// Controller coordinates the gateway, the shared session state, and the agent
// processor. The gateway and the state each hold their own copy of "which
// conversation is current"; they are never assumed to agree, and the
// controller resynchronizes them at explicit checkpoints.
type Controller struct {
	gw     ConversationGateway
	state  *state.SessionState
	agent  AgentCaller
	claims *claim.Set
	locks  *conversationLocks
	logger *slog.Logger
}

// New creates a Controller. Pass nil logger for the default.
func New(gw ConversationGateway, st *state.SessionState, caller AgentCaller, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		gw:     gw,
		state:  st,
		agent:  caller,
		claims: claim.New(claimTTL, claimMaxSize),
		locks:  newConversationLocks(),
		logger: logger.With("component", "controller"),
	}
}

// Close releases the controller's background resources.
func (c *Controller) Close() {
	c.claims.Close()
}

// StartConversation creates a conversation with an initial user message and
// installs it as the current conversation. The returned conversation has
// status NEW and is eligible for first-contact processing.
func (c *Controller) StartConversation(ctx context.Context, content string) (*conversation.Conversation, error) {
	conv, err := c.gw.Start(ctx, content)
	if err != nil {
		return nil, err
	}
	c.state.SetCurrentConversation(conv)
	c.logger.Info("conversation started",
		"conversation_id", conv.ID,
		"messages", len(conv.Messages))
	return conv, nil
}

// LoadConversation fetches an existing conversation and installs it as the
// current conversation, resynchronizing the gateway's working copy.
func (c *Controller) LoadConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	conv, err := c.gw.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	c.gw.SetConversation(conv)
	c.state.SetCurrentConversation(conv)
	return conv, nil
}

// DeleteConversation removes a conversation from the backend. If it was the
// current conversation, local state and the gateway working copy are cleared.
func (c *Controller) DeleteConversation(ctx context.Context, id string) error {
	if err := c.gw.DeleteConversation(ctx, id); err != nil {
		return err
	}
	if c.state.CurrentID() == id {
		c.state.Clear()
		c.gw.SetConversation(nil)
	}
	return nil
}

// Reset drops all local session state, used on logout.
func (c *Controller) Reset() {
	c.state.Clear()
	c.gw.SetConversation(nil)
}

// SendMessage runs a user-initiated send: persist the user message, call the
// agent, persist and return the agent's reply.
func (c *Controller) SendMessage(ctx context.Context, content string) (*conversation.Message, error) {
	return c.callAgent(ctx, content, false)
}

// ProcessFirstContact runs the one-time automatic processing of a NEW
// conversation's sole initial message. Repeated or concurrent invocations on
// the same conversation are no-ops: the reply is (nil, nil) when another
// invocation holds the claim or the conversation is not eligible.
func (c *Controller) ProcessFirstContact(ctx context.Context) (*conversation.Message, error) {
	return c.callAgent(ctx, "", true)
}

// callAgent is the core consistency protocol. Within one invocation the user
// message is committed and visible before the agent call is issued, and the
// agent reply is committed after it returns, so message order in the shared
// state always matches causal order. Invocations on the same conversation id
// are serialized; committed messages are never rolled back on failure.
func (c *Controller) callAgent(ctx context.Context, content string, firstContact bool) (*conversation.Message, error) {
	// Read the freshest id from the shared state, never from a value captured
	// before a suspension point.
	workingID := c.state.CurrentID()

	release := c.locks.acquire(workingID)
	defer release()

	// Re-read after the lock: an invocation we waited on may have reconciled
	// the id in the meantime.
	workingID = c.state.CurrentID()

	claimKey := ""
	claimed := false
	releaseClaim := func() {
		if claimed {
			c.claims.Release(claimKey)
		}
	}

	if firstContact {
		conv := c.state.Current()
		if conv == nil {
			return nil, fmt.Errorf("%w: no current conversation for first contact", conversation.ErrMissingConversation)
		}
		if !conv.PendingFirstContact() {
			return nil, nil
		}
		// Claim before any network call so re-entrant invocations see the id
		// as taken. Released only on failure.
		claimKey = conv.ID
		if !c.claims.Claim(claimKey) {
			c.logger.Debug("first contact already claimed", "conversation_id", claimKey)
			return nil, nil
		}
		claimed = true
	} else {
		if workingID == "" {
			return nil, fmt.Errorf("%w: cannot send without a conversation", conversation.ErrMissingConversation)
		}
		// Resynchronize the gateway before the call that depends on identity.
		if c.gw.ConversationID() != workingID {
			c.gw.SetID(workingID)
		}
		persisted, err := c.gw.AddMessage(ctx, gateway.AddMessageInput{
			Content: content,
			Role:    conversation.RoleUser,
		})
		if err != nil {
			return nil, err
		}
		c.state.AddMessage(*persisted)
	}

	req := &agent.Request{Messages: c.state.Messages()}
	if !firstContact {
		// First contact omits the id, letting the backend mint one.
		req.ConversationID = workingID
	}

	resp, err := c.agent.Generate(ctx, req)
	if err != nil {
		releaseClaim()
		return nil, fmt.Errorf("%w: %v", conversation.ErrAgentCall, err)
	}
	if !resp.Success {
		releaseClaim()
		return nil, fmt.Errorf("%w: %s", conversation.ErrAgentCall, resp.Error)
	}
	if resp.Data == nil {
		releaseClaim()
		return nil, fmt.Errorf("%w: response has no data", conversation.ErrAgentCall)
	}

	// Reconcile: an id returned by the agent is authoritative. Propagate it
	// to the gateway and patch the shared state's id field.
	targetID := workingID
	if returned := resp.ConversationIDHint(); returned != "" && returned != workingID {
		c.logger.Debug("adopting backend conversation id",
			"old_id", workingID,
			"new_id", returned)
		targetID = returned
		c.gw.SetID(targetID)
		c.state.SetConversationID(targetID)
	}
	if targetID == "" {
		releaseClaim()
		return nil, fmt.Errorf("%w: agent returned no conversation id", conversation.ErrMissingConversation)
	}

	if c.gw.ConversationID() != targetID {
		c.gw.SetID(targetID)
	}
	reply, err := c.gw.AddMessage(ctx, gateway.AddMessageInput{
		Content:  resp.Data.Answer,
		Role:     conversation.RoleAssistant,
		Metadata: resp.Data.Metadata,
	})
	if err != nil {
		releaseClaim()
		return nil, err
	}
	c.state.AddMessage(*reply)

	if firstContact {
		c.state.SetConversationStatus(conversation.StatusActive)
		active := conversation.StatusActive
		if _, err := c.gw.UpdateConversation(ctx, conversation.ConversationUpdate{Status: &active}); err != nil {
			// The reply is already committed; the status write is advisory.
			c.logger.Warn("failed to persist ACTIVE status",
				"conversation_id", targetID,
				"error", err)
		}
	}

	return reply, nil
}

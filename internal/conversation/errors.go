// ABOUTME: Error taxonomy shared by the gateway, controller, and record store clients.
// ABOUTME: All errors propagate to callers unchanged; the core never swallows them.

package conversation

import "errors"

var (
	// ErrNotReady means the gateway was invoked without a user, or without a
	// conversation id/object when one was required. Never retried.
	ErrNotReady = errors.New("gateway not ready")

	// ErrMissingConversation means an operation needed a conversation id that
	// was absent at that point in the flow. Fatal for the invocation.
	ErrMissingConversation = errors.New("no conversation id")

	// ErrCreation means starting a new conversation failed at either the
	// create or first-message step. A conversation with zero messages may be
	// left on the backend; there is no rollback.
	ErrCreation = errors.New("conversation creation failed")

	// ErrPersist means a record store call for a message or conversation
	// mutation returned non-success.
	ErrPersist = errors.New("persist failed")

	// ErrAgentCall means the agent processor reported failure or the
	// transport to it failed.
	ErrAgentCall = errors.New("agent call failed")

	// ErrNotFound is returned by the record store when an entity does not exist.
	ErrNotFound = errors.New("not found")
)

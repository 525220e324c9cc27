// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithUser/UserFromContext for propagating the user id via context

package auth

import (
	"context"
)

// userKey is the key type for storing the authenticated user id in context.Context.
type userKey struct{}

// WithUser returns a new context with the authenticated user id attached.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext retrieves the authenticated user id from the context,
// returning "" if not present.
func UserFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

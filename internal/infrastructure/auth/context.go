package auth

import (
	"context"

	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	UserID  common.ID
	Subject string
	Email   string
	Name    string
}

type contextKey struct{}

// WithIdentity returns a context carrying the caller's identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext extracts the caller's identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

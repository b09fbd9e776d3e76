package identity

import (
	"context"
)

var userCtxKey = &contextKey{"user"}
var identityCtxKey = &contextKey{"external-identity"}

type contextKey struct {
	name string
}

// WithUser sets the directory User in the given context
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

// UserFromContext finds the directory user from the context.
func UserFromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithIdentity sets the verified ExternalIdentity in the given context
func WithIdentity(ctx context.Context, ident *ExternalIdentity) context.Context {
	return context.WithValue(ctx, identityCtxKey, ident)
}

// IdentityFromContext extracts the verified identity from the context
func IdentityFromContext(ctx context.Context) (*ExternalIdentity, bool) {
	raw, ok := ctx.Value(identityCtxKey).(*ExternalIdentity)
	return raw, ok
}

// IsAdminContext is a convenience check used by handlers that only need the
// authorization decision, not the record.
func IsAdminContext(ctx context.Context) bool {
	user, ok := UserFromContext(ctx)
	return ok && user.IsAdmin()
}

package auth

import "context"

type ctxKey int

const principalKey ctxKey = 1

// WithPrincipalID attaches the bound principal id to ctx, the way the
// teacher's auth.WithPrincipal attaches its *Principal value.
func WithPrincipalID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, principalKey, id)
}

// PrincipalIDFrom returns the principal id bound by httpglue's auth
// middleware, if any.
func PrincipalIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(principalKey).(string)
	return id, ok
}

package shared

import "context"

// SystemActor is the collector identity recorded on auto-generated entries.
const SystemActor = "SYSTEM"

// Principal identifies the caller of a request.
type Principal struct {
	Name string
	Role string
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok && p.Name != ""
}

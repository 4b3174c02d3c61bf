package tenant

import "context"

type scopeContextKey struct{}

// WithScope attaches the resolved tenant scope to the context.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// FromContext extracts the tenant scope resolved for the current request.
// Absence of a scope is reported through the zero value, not an error; the
// caller decides whether an unbound scope is permissible.
func FromContext(ctx context.Context) Scope {
	if ctx == nil {
		return Scope{}
	}
	if s, ok := ctx.Value(scopeContextKey{}).(Scope); ok {
		return s
	}
	return Scope{}
}

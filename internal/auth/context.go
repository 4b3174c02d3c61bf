package auth

import (
	"context"
	"time"

	"fixwell.io/internal/directory"
	"fixwell.io/internal/tenant"
)

// Principal is the verified identity behind a request, decoded from the
// access token. It carries everything handlers need without a store lookup.
type Principal struct {
	UserID         string
	OrganizationID string
	Role           directory.Role
	TokenID        string
	ExpiresAt      time.Time
}

// IsAdmin reports whether the principal holds an administrator role.
func (p Principal) IsAdmin() bool {
	return p.Role.IsAdmin()
}

// Scope derives the default tenant scope for the principal. Organisation
// members are bound to their organisation. Platform accounts with no
// organisation get the global scope; everyone else with no organisation gets
// the zero scope and tenant-bound reads fail.
func (p Principal) Scope() tenant.Scope {
	if p.OrganizationID != "" {
		return tenant.For(p.OrganizationID)
	}
	if p.Role == directory.RoleSuperAdmin {
		return tenant.Global()
	}
	return tenant.Scope{}
}

type principalContextKey struct{}
type tokenContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Package tenant defines the scoping primitive applied to every query that
// touches organisation-owned rows. A Scope is an explicit parameter on store
// calls rather than ambient request state, so it is always visible at the call
// site whether a query is tenant-bound or intentionally cross-tenant.
package tenant

import "errors"

var (
	// ErrNoTenant is returned when an operation requires a bound tenant
	// scope but none was resolved from the request.
	ErrNoTenant = errors.New("tenant: no tenant context")

	// ErrCrossTenant is returned when a bound scope is asked to touch rows
	// belonging to a different organisation.
	ErrCrossTenant = errors.New("tenant: cross-tenant access denied")
)

// Scope identifies which organisation's rows an operation may see.
// The zero value means "no tenant context": pre-authentication flows carry it,
// and stores reject tenant-bound queries made with it.
type Scope struct {
	orgID  string
	global bool
}

// For returns a scope bound to a single organisation.
func For(orgID string) Scope {
	return Scope{orgID: orgID}
}

// Global returns the explicit cross-tenant scope. Reserved for platform
// administrators; stores skip the organisation predicate entirely.
func Global() Scope {
	return Scope{global: true}
}

// OrgID returns the bound organisation id. ok is false for the zero and
// global scopes.
func (s Scope) OrgID() (string, bool) {
	if s.global || s.orgID == "" {
		return "", false
	}
	return s.orgID, true
}

// IsGlobal reports whether the scope bypasses tenant filtering.
func (s Scope) IsGlobal() bool { return s.global }

// Bound reports whether the scope can be used for tenant-scoped queries at
// all, either bound to one organisation or explicitly global.
func (s Scope) Bound() bool { return s.global || s.orgID != "" }

// Allows reports whether a row owned by orgID is visible under the scope.
func (s Scope) Allows(orgID string) bool {
	if s.global {
		return true
	}
	return s.orgID != "" && s.orgID == orgID
}

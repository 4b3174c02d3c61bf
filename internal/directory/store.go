package directory

import (
	"context"

	"fixwell.io/internal/tenant"
)

// Store describes the persistence operations the directory service needs.
// Tenant-scoped reads take an explicit tenant.Scope; rows outside the scope
// behave as absent. Lookups that legitimately run before any tenant context
// exists (login, slug resolution) are unscoped by contract and say so.
type Store interface {
	// CreateOrganizationWithAdmin persists a new organisation together with
	// its first administrator in one transaction: both rows commit or neither.
	CreateOrganizationWithAdmin(ctx context.Context, org *Organization, admin *User) error

	GetOrganization(ctx context.Context, scope tenant.Scope, id string) (Organization, error)
	// GetOrganizationBySlug is unscoped: it backs pre-authentication signup
	// and login flows where no tenant context can exist yet.
	GetOrganizationBySlug(ctx context.Context, slug string) (Organization, error)
	ListOrganizations(ctx context.Context, scope tenant.Scope) ([]Organization, error)
	SetOrganizationStatus(ctx context.Context, id string, status OrgStatus) error
	SetPrimaryAdmin(ctx context.Context, orgID, userID string) error

	CreateUser(ctx context.Context, scope tenant.Scope, u *User) error
	GetUser(ctx context.Context, scope tenant.Scope, id string) (User, error)
	// GetUserByEmail is unscoped for the same reason as GetOrganizationBySlug.
	GetUserByEmail(ctx context.Context, orgID, email string) (User, error)
	ListUsers(ctx context.Context, scope tenant.Scope, orgID string) ([]User, error)
	CountUsers(ctx context.Context, orgID string) (int, error)
	CountActiveAdmins(ctx context.Context, orgID string) (int, error)
	UpdateUserRole(ctx context.Context, id string, role Role) error
	UpdateUserActive(ctx context.Context, id string, active bool) error
	UpdateUserPassword(ctx context.Context, id string, passwordHash string) error
	RecordLogin(ctx context.Context, id string) error
}

// Package directory models organisations and their users and enforces the
// administrative guard rails around role changes, deactivation and the
// primary-admin designation.
package directory

import (
	"fmt"
	"strings"
	"time"
)

// Role is a user's position within an organisation. SuperAdmin is the
// platform-wide operator role; OrgAdmin is the administrator designation the
// guard rails protect.
type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleOrgAdmin    Role = "org_admin"
	RoleCoordinator Role = "coordinator"
	RoleViewer      Role = "viewer"
	RoleContractor  Role = "contractor"
	RoleTenant      Role = "tenant"
)

// ParseRole normalises and validates a role string.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.TrimSpace(strings.ToLower(raw)))
	switch role {
	case RoleSuperAdmin, RoleOrgAdmin, RoleCoordinator, RoleViewer, RoleContractor, RoleTenant:
		return role, nil
	}
	return "", fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, raw)
}

// IsAdmin reports whether the role counts as an administrator for the
// last-admin and primary-admin invariants.
func (r Role) IsAdmin() bool {
	return r == RoleOrgAdmin || r == RoleSuperAdmin
}

// OrgStatus is an organisation lifecycle state. Organisations are suspended
// and reactivated, never hard-deleted.
type OrgStatus string

const (
	OrgActive    OrgStatus = "active"
	OrgSuspended OrgStatus = "suspended"
)

// Plan is the subscription tier of an organisation.
type Plan string

const (
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// ParsePlan normalises a plan string, defaulting to starter.
func ParsePlan(raw string) (Plan, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return PlanStarter, nil
	}
	plan := Plan(raw)
	switch plan {
	case PlanStarter, PlanPro, PlanEnterprise:
		return plan, nil
	}
	return "", fmt.Errorf("%w: unsupported plan %q", ErrInvalidInput, raw)
}

// Organization is the tenant root.
type Organization struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Slug               string    `json:"slug"`
	Plan               Plan      `json:"plan"`
	Status             OrgStatus `json:"status"`
	PrimaryAdminUserID string    `json:"primary_admin_user_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// User belongs to exactly one organisation. PasswordHash stays empty until
// the invite is accepted.
type User struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	Role           Role       `json:"role"`
	Active         bool       `json:"active"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

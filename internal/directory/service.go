package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fixwell.io/internal/ids"
	"fixwell.io/internal/tenant"
)

// Auditor appends one audit record per mutating action. Failures propagate
// and abort the mutation.
type Auditor interface {
	Record(ctx context.Context, orgID, actorID, action, entityType, entityID string, changes any) error
}

// Notifier queues outbound email notifications. Fire-and-queue: the service
// issues the call and does not wait for delivery.
type Notifier interface {
	PublishEmail(ctx context.Context, orgID, kind string, payload map[string]any, availableAt *time.Time) error
}

// Service enforces the administrative invariants around organisations and
// users: an organisation never loses its last active administrator, and the
// designated primary admin cannot be demoted or deactivated while primary.
type Service struct {
	store    Store
	auditor  Auditor
	notifier Notifier
	now      func() time.Time
}

// NewService constructs the directory service.
func NewService(store Store, auditor Auditor, notifier Notifier) (*Service, error) {
	if store == nil {
		return nil, errors.New("directory store is required")
	}
	if auditor == nil {
		return nil, errors.New("auditor is required")
	}
	return &Service{store: store, auditor: auditor, notifier: notifier, now: time.Now}, nil
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// CreateOrganizationParams describes a signup or administrative provisioning
// request.
type CreateOrganizationParams struct {
	Name       string
	Slug       string
	Plan       string
	AdminEmail string
	ActorID    string
}

// CreateOrganization provisions an organisation together with its first
// administrator. Both rows commit in one transaction, the admin is promoted
// to OrgAdmin regardless of any requested role and becomes primary admin.
func (s *Service) CreateOrganization(ctx context.Context, p CreateOrganizationParams) (Organization, User, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return Organization{}, User{}, fmt.Errorf("%w: organisation name is required", ErrInvalidInput)
	}
	slug := strings.TrimSpace(strings.ToLower(p.Slug))
	if slug == "" {
		return Organization{}, User{}, fmt.Errorf("%w: organisation slug is required", ErrInvalidInput)
	}
	email, err := normalizeEmail(p.AdminEmail)
	if err != nil {
		return Organization{}, User{}, err
	}
	plan, err := ParsePlan(p.Plan)
	if err != nil {
		return Organization{}, User{}, err
	}

	org := Organization{
		ID:     ids.New(),
		Name:   name,
		Slug:   slug,
		Plan:   plan,
		Status: OrgActive,
	}
	admin := User{
		ID:             ids.New(),
		OrganizationID: org.ID,
		Email:          email,
		Role:           RoleOrgAdmin,
		Active:         true,
	}
	org.PrimaryAdminUserID = admin.ID

	if err := s.store.CreateOrganizationWithAdmin(ctx, &org, &admin); err != nil {
		return Organization{}, User{}, err
	}

	if err := s.auditor.Record(ctx, org.ID, p.ActorID, "directory.organization.create", "organization", org.ID, map[string]any{
		"name": org.Name,
		"slug": org.Slug,
		"plan": string(org.Plan),
	}); err != nil {
		return Organization{}, User{}, err
	}
	if err := s.auditor.Record(ctx, org.ID, p.ActorID, "directory.user.auto_promote", "user", admin.ID, map[string]any{
		"granted_role": string(RoleOrgAdmin),
		"automatic":    true,
	}); err != nil {
		return Organization{}, User{}, err
	}
	if s.notifier != nil {
		if err := s.notifier.PublishEmail(ctx, org.ID, "user.invite", map[string]any{
			"email": admin.Email,
		}, nil); err != nil {
			return Organization{}, User{}, err
		}
	}
	return org, admin, nil
}

// CreateUserParams describes an invite. OrganizationID may be empty when the
// scope is bound to a single organisation; cross-tenant creation requires the
// global scope and an explicit OrganizationID.
type CreateUserParams struct {
	OrganizationID string
	Email          string
	RequestedRole  string
	ActorID        string
	ActorRole      Role
}

// CreateUserResult carries the invited user and whether the requested role
// was overridden by the first-user promotion rule.
type CreateUserResult struct {
	User         User
	AutoPromoted bool
}

// CreateUser invites a user into an organisation. When no user exists yet in
// the organisation, the new user is promoted to OrgAdmin regardless of the
// requested role and, if the organisation has no primary admin, becomes
// primary admin. The promotion is audited as an automatic action.
func (s *Service) CreateUser(ctx context.Context, scope tenant.Scope, p CreateUserParams) (CreateUserResult, error) {
	orgID, err := resolveOrg(scope, p.OrganizationID)
	if err != nil {
		return CreateUserResult{}, err
	}
	email, err := normalizeEmail(p.Email)
	if err != nil {
		return CreateUserResult{}, err
	}
	role, err := ParseRole(p.RequestedRole)
	if err != nil {
		return CreateUserResult{}, err
	}
	if role == RoleSuperAdmin && p.ActorRole != RoleSuperAdmin {
		return CreateUserResult{}, fmt.Errorf("%w: only platform administrators may grant %s", ErrEscalation, RoleSuperAdmin)
	}

	existing, err := s.store.CountUsers(ctx, orgID)
	if err != nil {
		return CreateUserResult{}, err
	}
	autoPromoted := existing == 0
	if autoPromoted {
		role = RoleOrgAdmin
	}

	user := User{
		ID:             ids.New(),
		OrganizationID: orgID,
		Email:          email,
		Role:           role,
		Active:         true,
	}
	if err := s.store.CreateUser(ctx, scope, &user); err != nil {
		return CreateUserResult{}, err
	}

	if autoPromoted {
		org, err := s.store.GetOrganization(ctx, tenant.For(orgID), orgID)
		if err != nil {
			return CreateUserResult{}, err
		}
		if org.PrimaryAdminUserID == "" {
			if err := s.store.SetPrimaryAdmin(ctx, orgID, user.ID); err != nil {
				return CreateUserResult{}, err
			}
		}
	}

	if err := s.auditor.Record(ctx, orgID, p.ActorID, "directory.user.invite", "user", user.ID, map[string]any{
		"email": user.Email,
		"role":  string(user.Role),
	}); err != nil {
		return CreateUserResult{}, err
	}
	if autoPromoted {
		if err := s.auditor.Record(ctx, orgID, p.ActorID, "directory.user.auto_promote", "user", user.ID, map[string]any{
			"requested_role": strings.TrimSpace(strings.ToLower(p.RequestedRole)),
			"granted_role":   string(RoleOrgAdmin),
			"automatic":      true,
		}); err != nil {
			return CreateUserResult{}, err
		}
	}
	if s.notifier != nil {
		if err := s.notifier.PublishEmail(ctx, orgID, "user.invite", map[string]any{
			"email": user.Email,
		}, nil); err != nil {
			return CreateUserResult{}, err
		}
	}
	return CreateUserResult{User: user, AutoPromoted: autoPromoted}, nil
}

// ChangeRole moves a user to a new role, subject to the primary-admin and
// last-admin guard rails.
func (s *Service) ChangeRole(ctx context.Context, scope tenant.Scope, userID string, newRole Role, actorID string, actorRole Role) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if _, err := ParseRole(string(newRole)); err != nil {
		return User{}, err
	}
	if newRole == RoleSuperAdmin && actorRole != RoleSuperAdmin {
		return User{}, fmt.Errorf("%w: only platform administrators may grant %s", ErrEscalation, RoleSuperAdmin)
	}

	user, err := s.store.GetUser(ctx, scope, userID)
	if err != nil {
		return User{}, err
	}
	if user.Role == newRole {
		return user, nil
	}

	// Guard rails apply when the change removes the administrator role.
	if user.Role.IsAdmin() && !newRole.IsAdmin() {
		if err := s.guardAdminRemoval(ctx, user); err != nil {
			return User{}, err
		}
	}

	if err := s.store.UpdateUserRole(ctx, user.ID, newRole); err != nil {
		return User{}, err
	}
	if err := s.auditor.Record(ctx, user.OrganizationID, actorID, "directory.user.role_change", "user", user.ID, map[string]any{
		"role": map[string]string{"old": string(user.Role), "new": string(newRole)},
	}); err != nil {
		return User{}, err
	}
	user.Role = newRole
	return user, nil
}

// SetActive activates or deactivates a user. Deactivating an administrator
// is subject to the same protection as demotion.
func (s *Service) SetActive(ctx context.Context, scope tenant.Scope, userID string, active bool, actorID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	user, err := s.store.GetUser(ctx, scope, userID)
	if err != nil {
		return User{}, err
	}
	if user.Active == active {
		return user, nil
	}

	if !active && user.Role.IsAdmin() {
		if err := s.guardAdminRemoval(ctx, user); err != nil {
			return User{}, err
		}
	}

	if err := s.store.UpdateUserActive(ctx, user.ID, active); err != nil {
		return User{}, err
	}
	if err := s.auditor.Record(ctx, user.OrganizationID, actorID, "directory.user.active_change", "user", user.ID, map[string]any{
		"active": map[string]bool{"old": user.Active, "new": active},
	}); err != nil {
		return User{}, err
	}
	user.Active = active
	return user, nil
}

// guardAdminRemoval rejects removing a user's administrator standing, either
// by demotion or deactivation, when that user is the primary admin or the
// last active administrator of the organisation. State is re-read right
// before the mutation; concurrent writers are accepted as a retry case.
func (s *Service) guardAdminRemoval(ctx context.Context, user User) error {
	org, err := s.store.GetOrganization(ctx, tenant.For(user.OrganizationID), user.OrganizationID)
	if err != nil {
		return err
	}
	if org.PrimaryAdminUserID == user.ID {
		return fmt.Errorf("%w: user is the organisation's primary admin; designate a different primary admin first", ErrConflict)
	}
	if user.Active {
		admins, err := s.store.CountActiveAdmins(ctx, user.OrganizationID)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return fmt.Errorf("%w: organisation would be left without an active administrator", ErrConflict)
		}
	}
	return nil
}

// SetPrimaryAdmin designates a new primary admin. The candidate must belong
// to the organisation, be active and already hold an administrator role; the
// rejection names whichever condition failed.
func (s *Service) SetPrimaryAdmin(ctx context.Context, scope tenant.Scope, orgID, candidateID, actorID string) (Organization, error) {
	orgID = strings.TrimSpace(orgID)
	candidateID = strings.TrimSpace(candidateID)
	if orgID == "" || candidateID == "" {
		return Organization{}, fmt.Errorf("%w: organization_id and user_id are required", ErrInvalidInput)
	}
	org, err := s.store.GetOrganization(ctx, scope, orgID)
	if err != nil {
		return Organization{}, err
	}
	candidate, err := s.store.GetUser(ctx, tenant.For(orgID), candidateID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Organization{}, fmt.Errorf("%w: candidate does not belong to the organisation", ErrConflict)
		}
		return Organization{}, err
	}
	if !candidate.Active {
		return Organization{}, fmt.Errorf("%w: candidate is not active", ErrConflict)
	}
	if !candidate.Role.IsAdmin() {
		return Organization{}, fmt.Errorf("%w: candidate does not hold an administrator role", ErrConflict)
	}

	if err := s.store.SetPrimaryAdmin(ctx, orgID, candidate.ID); err != nil {
		return Organization{}, err
	}
	if err := s.auditor.Record(ctx, orgID, actorID, "directory.organization.primary_admin_change", "organization", orgID, map[string]any{
		"primary_admin": map[string]string{"old": org.PrimaryAdminUserID, "new": candidate.ID},
	}); err != nil {
		return Organization{}, err
	}
	org.PrimaryAdminUserID = candidate.ID
	return org, nil
}

// SetOrganizationStatus suspends or reactivates an organisation.
func (s *Service) SetOrganizationStatus(ctx context.Context, scope tenant.Scope, orgID string, status OrgStatus, actorID string) (Organization, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return Organization{}, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	if status != OrgActive && status != OrgSuspended {
		return Organization{}, fmt.Errorf("%w: unsupported status %q", ErrInvalidInput, status)
	}
	org, err := s.store.GetOrganization(ctx, scope, orgID)
	if err != nil {
		return Organization{}, err
	}
	if org.Status == status {
		return org, nil
	}
	if err := s.store.SetOrganizationStatus(ctx, orgID, status); err != nil {
		return Organization{}, err
	}
	if err := s.auditor.Record(ctx, orgID, actorID, "directory.organization.status_change", "organization", orgID, map[string]any{
		"status": map[string]string{"old": string(org.Status), "new": string(status)},
	}); err != nil {
		return Organization{}, err
	}
	org.Status = status
	return org, nil
}

// AcceptInvite stores the password hash produced by the auth collaborator,
// completing an invite.
func (s *Service) AcceptInvite(ctx context.Context, scope tenant.Scope, userID, passwordHash string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" || passwordHash == "" {
		return fmt.Errorf("%w: user_id and password are required", ErrInvalidInput)
	}
	user, err := s.store.GetUser(ctx, scope, userID)
	if err != nil {
		return err
	}
	if err := s.store.UpdateUserPassword(ctx, user.ID, passwordHash); err != nil {
		return err
	}
	return s.auditor.Record(ctx, user.OrganizationID, user.ID, "directory.user.invite_accept", "user", user.ID, nil)
}

// RecordLogin stamps the last-login timestamp after a successful credential
// check.
func (s *Service) RecordLogin(ctx context.Context, userID string) error {
	return s.store.RecordLogin(ctx, userID)
}

// GetOrganization returns the organisation visible under the scope.
func (s *Service) GetOrganization(ctx context.Context, scope tenant.Scope, orgID string) (Organization, error) {
	return s.store.GetOrganization(ctx, scope, orgID)
}

// ListOrganizations lists organisations visible under the scope.
func (s *Service) ListOrganizations(ctx context.Context, scope tenant.Scope) ([]Organization, error) {
	return s.store.ListOrganizations(ctx, scope)
}

// GetUser returns the user visible under the scope.
func (s *Service) GetUser(ctx context.Context, scope tenant.Scope, userID string) (User, error) {
	return s.store.GetUser(ctx, scope, userID)
}

// ListUsers lists an organisation's users visible under the scope.
func (s *Service) ListUsers(ctx context.Context, scope tenant.Scope, orgID string) ([]User, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		if bound, ok := scope.OrgID(); ok {
			orgID = bound
		} else {
			return nil, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
		}
	}
	return s.store.ListUsers(ctx, scope, orgID)
}

func resolveOrg(scope tenant.Scope, explicit string) (string, error) {
	explicit = strings.TrimSpace(explicit)
	if bound, ok := scope.OrgID(); ok {
		if explicit != "" && explicit != bound {
			return "", ErrNotFound
		}
		return bound, nil
	}
	if scope.IsGlobal() {
		if explicit == "" {
			return "", fmt.Errorf("%w: organization_id is required for cross-tenant operations", ErrInvalidInput)
		}
		return explicit, nil
	}
	return "", tenant.ErrNoTenant
}

func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(strings.ToLower(raw))
	if email == "" || !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	return email, nil
}

package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fixwell.io/internal/directory"
	"fixwell.io/internal/ids"
	"fixwell.io/internal/tenant"
)

// DirectoryStore persists organisations and users with tenant scoping
// applied in SQL.
type DirectoryStore struct {
	s *Store
}

var _ directory.Store = (*DirectoryStore)(nil)

// Directory returns the directory sub-store.
func (s *Store) Directory() *DirectoryStore {
	return &DirectoryStore{s: s}
}

const orgColumns = `id, name, slug, plan, status, coalesce(primary_admin_user_id, ''), created_at, updated_at`
// Platform operators carry a null organization_id, so it scans through
// coalesce like the other nullable columns.
const userColumns = `id, coalesce(organization_id, ''), email, coalesce(password_hash, ''), role, active, last_login_at, created_at, updated_at`

func scanOrganization(row interface{ Scan(...any) error }) (directory.Organization, error) {
	var org directory.Organization
	err := row.Scan(&org.ID, &org.Name, &org.Slug, &org.Plan, &org.Status,
		&org.PrimaryAdminUserID, &org.CreatedAt, &org.UpdatedAt)
	return org, err
}

func scanUser(row interface{ Scan(...any) error }) (directory.User, error) {
	var u directory.User
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.OrganizationID, &u.Email, &u.PasswordHash,
		&u.Role, &u.Active, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, err
}

// stampNew fills identity and creation timestamps on a new row.
func (d *DirectoryStore) stampNew(id *string, createdAt, updatedAt *time.Time) {
	if *id == "" {
		*id = ids.New()
	}
	now := d.s.now().UTC()
	*createdAt = now
	*updatedAt = now
}

func (d *DirectoryStore) CreateOrganizationWithAdmin(ctx context.Context, org *directory.Organization, admin *directory.User) error {
	d.stampNew(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	admin.OrganizationID = org.ID
	d.stampNew(&admin.ID, &admin.CreatedAt, &admin.UpdatedAt)
	org.PrimaryAdminUserID = admin.ID

	tx, err := d.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into organizations (id, name, slug, plan, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, org.ID, org.Name, org.Slug, org.Plan, org.Status, org.CreatedAt, org.UpdatedAt); err != nil {
		return mapWriteError(err)
	}
	if _, err := tx.ExecContext(ctx, `
		insert into users (id, organization_id, email, password_hash, role, active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, admin.ID, admin.OrganizationID, admin.Email, nullIfEmpty(admin.PasswordHash),
		admin.Role, admin.Active, admin.CreatedAt, admin.UpdatedAt); err != nil {
		return mapWriteError(err)
	}
	if _, err := tx.ExecContext(ctx, `
		update organizations set primary_admin_user_id = $2 where id = $1
	`, org.ID, admin.ID); err != nil {
		return mapWriteError(err)
	}
	return tx.Commit()
}

func (d *DirectoryStore) GetOrganization(ctx context.Context, scope tenant.Scope, id string) (directory.Organization, error) {
	query := `select ` + orgColumns + ` from organizations where id = $1`
	args := []any{id}
	if orgID, ok := scope.OrgID(); ok {
		query += ` and id = $2`
		args = append(args, orgID)
	} else if !scope.IsGlobal() {
		return directory.Organization{}, tenant.ErrNoTenant
	}
	org, err := scanOrganization(d.s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Organization{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.Organization{}, err
	}
	return org, nil
}

func (d *DirectoryStore) GetOrganizationBySlug(ctx context.Context, slug string) (directory.Organization, error) {
	org, err := scanOrganization(d.s.db.QueryRowContext(ctx,
		`select `+orgColumns+` from organizations where slug = $1`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Organization{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.Organization{}, err
	}
	return org, nil
}

func (d *DirectoryStore) ListOrganizations(ctx context.Context, scope tenant.Scope) ([]directory.Organization, error) {
	query := `select ` + orgColumns + ` from organizations`
	var args []any
	if orgID, ok := scope.OrgID(); ok {
		query += ` where id = $1`
		args = append(args, orgID)
	} else if !scope.IsGlobal() {
		return nil, tenant.ErrNoTenant
	}
	query += ` order by name`

	rows, err := d.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []directory.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, org)
	}
	return result, rows.Err()
}

func (d *DirectoryStore) SetOrganizationStatus(ctx context.Context, id string, status directory.OrgStatus) error {
	return d.execOne(ctx, `
		update organizations set status = $2, updated_at = $3 where id = $1
	`, id, status, d.s.now().UTC())
}

func (d *DirectoryStore) SetPrimaryAdmin(ctx context.Context, orgID, userID string) error {
	return d.execOne(ctx, `
		update organizations set primary_admin_user_id = $2, updated_at = $3 where id = $1
	`, orgID, userID, d.s.now().UTC())
}

func (d *DirectoryStore) CreateUser(ctx context.Context, scope tenant.Scope, u *directory.User) error {
	// A bound scope fills the organisation for new rows when the caller
	// left it unset, and refuses rows aimed at another organisation.
	if orgID, ok := scope.OrgID(); ok {
		if u.OrganizationID == "" {
			u.OrganizationID = orgID
		} else if u.OrganizationID != orgID {
			return tenant.ErrCrossTenant
		}
	} else if !scope.IsGlobal() {
		return tenant.ErrNoTenant
	}
	if u.OrganizationID == "" {
		return fmt.Errorf("%w: organization id is required", directory.ErrInvalidInput)
	}
	d.stampNew(&u.ID, &u.CreatedAt, &u.UpdatedAt)

	_, err := d.s.db.ExecContext(ctx, `
		insert into users (id, organization_id, email, password_hash, role, active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.OrganizationID, u.Email, nullIfEmpty(u.PasswordHash),
		u.Role, u.Active, u.CreatedAt, u.UpdatedAt)
	return mapWriteError(err)
}

func (d *DirectoryStore) GetUser(ctx context.Context, scope tenant.Scope, id string) (directory.User, error) {
	query := `select ` + userColumns + ` from users where id = $1`
	args := []any{id}
	if orgID, ok := scope.OrgID(); ok {
		query += ` and organization_id = $2`
		args = append(args, orgID)
	} else if !scope.IsGlobal() {
		return directory.User{}, tenant.ErrNoTenant
	}
	u, err := scanUser(d.s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return directory.User{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.User{}, err
	}
	return u, nil
}

func (d *DirectoryStore) GetUserByEmail(ctx context.Context, orgID, email string) (directory.User, error) {
	// Platform operators have no organisation row, so an empty orgID must
	// match on "is null"; "organization_id = ''" never matches NULL.
	query := `select ` + userColumns + ` from users where organization_id = $1 and email = $2`
	args := []any{orgID, email}
	if orgID == "" {
		query = `select ` + userColumns + ` from users where organization_id is null and email = $1`
		args = []any{email}
	}
	u, err := scanUser(d.s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return directory.User{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.User{}, err
	}
	return u, nil
}

func (d *DirectoryStore) ListUsers(ctx context.Context, scope tenant.Scope, orgID string) ([]directory.User, error) {
	if !scope.Allows(orgID) {
		if !scope.Bound() {
			return nil, tenant.ErrNoTenant
		}
		return nil, directory.ErrNotFound
	}
	rows, err := d.s.db.QueryContext(ctx, `
		select `+userColumns+` from users
		where organization_id = $1
		order by created_at
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []directory.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (d *DirectoryStore) CountUsers(ctx context.Context, orgID string) (int, error) {
	var n int
	err := d.s.db.QueryRowContext(ctx,
		`select count(*) from users where organization_id = $1`, orgID).Scan(&n)
	return n, err
}

func (d *DirectoryStore) CountActiveAdmins(ctx context.Context, orgID string) (int, error) {
	var n int
	err := d.s.db.QueryRowContext(ctx, `
		select count(*) from users
		where organization_id = $1 and active and role in ($2, $3)
	`, orgID, directory.RoleOrgAdmin, directory.RoleSuperAdmin).Scan(&n)
	return n, err
}

func (d *DirectoryStore) UpdateUserRole(ctx context.Context, id string, role directory.Role) error {
	return d.execOne(ctx, `
		update users set role = $2, updated_at = $3 where id = $1
	`, id, role, d.s.now().UTC())
}

func (d *DirectoryStore) UpdateUserActive(ctx context.Context, id string, active bool) error {
	return d.execOne(ctx, `
		update users set active = $2, updated_at = $3 where id = $1
	`, id, active, d.s.now().UTC())
}

func (d *DirectoryStore) UpdateUserPassword(ctx context.Context, id string, passwordHash string) error {
	return d.execOne(ctx, `
		update users set password_hash = $2, updated_at = $3 where id = $1
	`, id, nullIfEmpty(passwordHash), d.s.now().UTC())
}

func (d *DirectoryStore) RecordLogin(ctx context.Context, id string) error {
	now := d.s.now().UTC()
	return d.execOne(ctx, `
		update users set last_login_at = $2, updated_at = $2 where id = $1
	`, id, now)
}

// execOne runs a statement expected to touch exactly one row and maps a
// zero-row outcome to ErrNotFound.
func (d *DirectoryStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := d.s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapWriteError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return directory.ErrNotFound
	}
	return nil
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s", directory.ErrConflict, pgErr.ConstraintName)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: %s", directory.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

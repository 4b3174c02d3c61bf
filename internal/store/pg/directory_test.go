package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"fixwell.io/internal/directory"
	"fixwell.io/internal/tenant"
)

var testClock = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db).WithClock(testClock), mock
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "organization_id", "email", "password_hash", "role", "active",
		"last_login_at", "created_at", "updated_at",
	})
}

func TestGetUserAppliesTenantPredicate(t *testing.T) {
	store, mock := newMockStore(t)
	dir := store.Directory()

	now := testClock()
	mock.ExpectQuery(`select (.+) from users where id = \$1 and organization_id = \$2`).
		WithArgs("user-1", "org-1").
		WillReturnRows(userRows().AddRow(
			"user-1", "org-1", "a@b.test", "", "viewer", true, nil, now, now))

	u, err := dir.GetUser(context.Background(), tenant.For("org-1"), "user-1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.OrganizationID != "org-1" || u.Role != directory.RoleViewer {
		t.Fatalf("unexpected user: %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetUserGlobalScopeSkipsPredicate(t *testing.T) {
	store, mock := newMockStore(t)
	dir := store.Directory()

	now := testClock()
	mock.ExpectQuery(`select (.+) from users where id = \$1$`).
		WithArgs("user-1").
		WillReturnRows(userRows().AddRow(
			"user-1", "org-2", "a@b.test", "", "viewer", true, nil, now, now))

	if _, err := dir.GetUser(context.Background(), tenant.Global(), "user-1"); err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetUserZeroScopeFailsWithoutQuery(t *testing.T) {
	store, mock := newMockStore(t)
	dir := store.Directory()

	if _, err := dir.GetUser(context.Background(), tenant.Scope{}, "user-1"); !errors.Is(err, tenant.ErrNoTenant) {
		t.Fatalf("expected ErrNoTenant, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("the zero scope must not reach the database: %v", err)
	}
}

func TestCreateUserStampsAndFillsOrganization(t *testing.T) {
	store, mock := newMockStore(t)
	dir := store.Directory()

	now := testClock()
	mock.ExpectExec(`insert into users`).
		WithArgs(sqlmock.AnyArg(), "org-1", "a@b.test", sqlmock.AnyArg(),
			"viewer", true, now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	u := &directory.User{Email: "a@b.test", Role: directory.RoleViewer, Active: true}
	if err := dir.CreateUser(context.Background(), tenant.For("org-1"), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" {
		t.Fatal("insert must assign an id")
	}
	if u.OrganizationID != "org-1" {
		t.Fatalf("bound scope must fill the organisation, got %q", u.OrganizationID)
	}
	if !u.CreatedAt.Equal(now) || !u.UpdatedAt.Equal(now) {
		t.Fatalf("timestamps not stamped: %v %v", u.CreatedAt, u.UpdatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUserRejectsCrossTenantRow(t *testing.T) {
	store, mock := newMockStore(t)
	dir := store.Directory()

	u := &directory.User{OrganizationID: "org-2", Email: "a@b.test", Role: directory.RoleViewer}
	if err := dir.CreateUser(context.Background(), tenant.For("org-1"), u); !errors.Is(err, tenant.ErrCrossTenant) {
		t.Fatalf("expected ErrCrossTenant, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("cross-tenant insert must not reach the database: %v", err)
	}
}

func TestCreateUserMapsUniqueViolationToConflict(t *testing.T) {
	store, mock := newMockStore(t)
	dir := store.Directory()

	mock.ExpectExec(`insert into users`).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "users_org_email_key"})

	u := &directory.User{Email: "a@b.test", Role: directory.RoleViewer}
	if err := dir.CreateUser(context.Background(), tenant.For("org-1"), u); !errors.Is(err, directory.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateOrganizationWithAdminIsTransactional(t *testing.T) {
	store, mock := newMockStore(t)
	dir := store.Directory()

	mock.ExpectBegin()
	mock.ExpectExec(`insert into organizations`).
		WithArgs(sqlmock.AnyArg(), "Acme", "acme", "starter", "active",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`insert into users`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`update organizations set primary_admin_user_id`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	org := &directory.Organization{Name: "Acme", Slug: "acme", Plan: directory.PlanStarter, Status: directory.OrgActive}
	admin := &directory.User{Email: "admin@acme.test", Role: directory.RoleOrgAdmin, Active: true}
	if err := dir.CreateOrganizationWithAdmin(context.Background(), org, admin); err != nil {
		t.Fatalf("CreateOrganizationWithAdmin: %v", err)
	}
	if admin.OrganizationID != org.ID {
		t.Fatalf("admin not linked to organisation: %q vs %q", admin.OrganizationID, org.ID)
	}
	if org.PrimaryAdminUserID != admin.ID {
		t.Fatal("primary admin must point at the created admin")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateOrganizationWithAdminRollsBackOnUserConflict(t *testing.T) {
	store, mock := newMockStore(t)
	dir := store.Directory()

	mock.ExpectBegin()
	mock.ExpectExec(`insert into organizations`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`insert into users`).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "users_org_email_key"})
	mock.ExpectRollback()

	org := &directory.Organization{Name: "Acme", Slug: "acme", Plan: directory.PlanStarter, Status: directory.OrgActive}
	admin := &directory.User{Email: "admin@acme.test", Role: directory.RoleOrgAdmin, Active: true}
	if err := dir.CreateOrganizationWithAdmin(context.Background(), org, admin); !errors.Is(err, directory.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateUserRoleZeroRowsIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	dir := store.Directory()

	mock.ExpectExec(`update users set role`).
		WithArgs("ghost", "viewer", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := dir.UpdateUserRole(context.Background(), "ghost", directory.RoleViewer); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordLoginStampsBothTimestamps(t *testing.T) {
	store, mock := newMockStore(t)
	dir := store.Directory()

	now := testClock()
	mock.ExpectExec(`update users set last_login_at = \$2, updated_at = \$2`).
		WithArgs("user-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := dir.RecordLogin(context.Background(), "user-1"); err != nil {
		t.Fatalf("RecordLogin: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListOrganizationsBoundScopeFilters(t *testing.T) {
	store, mock := newMockStore(t)
	dir := store.Directory()

	now := testClock()
	mock.ExpectQuery(`select (.+) from organizations where id = \$1 order by name`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "slug", "plan", "status", "primary_admin_user_id", "created_at", "updated_at",
		}).AddRow("org-1", "Acme", "acme", "starter", "active", "user-1", now, now))

	orgs, err := dir.ListOrganizations(context.Background(), tenant.For("org-1"))
	if err != nil {
		t.Fatalf("ListOrganizations: %v", err)
	}
	if len(orgs) != 1 || orgs[0].ID != "org-1" {
		t.Fatalf("unexpected result: %+v", orgs)
	}
}

func TestGetUserScansPlatformOperator(t *testing.T) {
	store, mock := newMockStore(t)
	dir := store.Directory()

	// The seeded operator row has a null organization_id; the select must
	// coalesce it so the scan does not fail.
	now := testClock()
	mock.ExpectQuery(`select id, coalesce\(organization_id, ''\), (.+) from users where id = \$1$`).
		WithArgs("op-1").
		WillReturnRows(userRows().AddRow(
			"op-1", "", "ops@fixwell.test", "", "super_admin", true, nil, now, now))

	u, err := dir.GetUser(context.Background(), tenant.Global(), "op-1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.OrganizationID != "" || u.Role != directory.RoleSuperAdmin {
		t.Fatalf("unexpected user: %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetUserByEmailPlatformOperatorMatchesNullOrganization(t *testing.T) {
	store, mock := newMockStore(t)
	dir := store.Directory()

	// "organization_id = ''" never matches NULL in PostgreSQL, so the empty
	// orgID must switch the predicate to "is null".
	now := testClock()
	mock.ExpectQuery(`from users where organization_id is null and email = \$1`).
		WithArgs("ops@fixwell.test").
		WillReturnRows(userRows().AddRow(
			"op-1", "", "ops@fixwell.test", "hash", "super_admin", true, nil, now, now))

	u, err := dir.GetUserByEmail(context.Background(), "", "ops@fixwell.test")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if u.ID != "op-1" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetUserByEmailTenantKeepsEqualityPredicate(t *testing.T) {
	store, mock := newMockStore(t)
	dir := store.Directory()

	now := testClock()
	mock.ExpectQuery(`from users where organization_id = \$1 and email = \$2`).
		WithArgs("org-1", "a@b.test").
		WillReturnRows(userRows().AddRow(
			"user-1", "org-1", "a@b.test", "hash", "viewer", true, nil, now, now))

	if _, err := dir.GetUserByEmail(context.Background(), "org-1", "a@b.test"); err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

package pg

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"fixwell.io/internal/audit"
	"fixwell.io/internal/tenant"
)

func TestAuditAppendInsertsEntry(t *testing.T) {
	store, mock := newMockStore(t)
	a := store.Audit()

	now := testClock()
	mock.ExpectExec(`insert into audit_log`).
		WithArgs("01TEST", now, sqlmock.AnyArg(), sqlmock.AnyArg(), "directory.user.role_change",
			"user", "user-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := a.Append(context.Background(), &audit.Entry{
		ID:             "01TEST",
		OccurredAt:     now,
		OrganizationID: "org-1",
		ActorUserID:    "admin-1",
		Action:         "directory.user.role_change",
		EntityType:     "user",
		EntityID:       "user-1",
		Changes:        `{"old":"viewer","new":"coordinator"}`,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func auditRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "occurred_at", "organization_id", "actor_user_id", "action",
		"entity_type", "entity_id", "changes", "request_id", "request_ip", "user_agent",
	})
}

func TestAuditListBoundScopeFiltersByOrganization(t *testing.T) {
	store, mock := newMockStore(t)
	a := store.Audit()

	now := testClock()
	mock.ExpectQuery(`select (.+) from audit_log where organization_id = \$1 order by occurred_at desc`).
		WithArgs("org-1", 100).
		WillReturnRows(auditRows().AddRow(
			"01A", now, "org-1", "admin-1", "settings.update",
			"platform_settings", "platform_settings", "{}", "", "", ""))

	entries, err := a.List(context.Background(), tenant.For("org-1"), ListQuery{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].OrganizationID != "org-1" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestAuditListGlobalScopeWithFilters(t *testing.T) {
	store, mock := newMockStore(t)
	a := store.Audit()

	mock.ExpectQuery(`select (.+) from audit_log where action = \$1 and entity_type = \$2`).
		WithArgs("directory.user.role_change", "user", 50).
		WillReturnRows(auditRows())

	_, err := a.List(context.Background(), tenant.Global(), ListQuery{
		Action:     "directory.user.role_change",
		EntityType: "user",
		Limit:      50,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuditListZeroScopeRejected(t *testing.T) {
	store, mock := newMockStore(t)
	a := store.Audit()

	if _, err := a.List(context.Background(), tenant.Scope{}, ListQuery{}); !errors.Is(err, tenant.ErrNoTenant) {
		t.Fatalf("expected ErrNoTenant, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("the zero scope must not reach the database: %v", err)
	}
}

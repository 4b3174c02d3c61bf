package migrate

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewManager(db, "", ""), mock
}

func TestBootstrapOperatorSetsPendingPassword(t *testing.T) {
	mgr, mock := newMockManager(t)

	mock.ExpectExec(`update users\s+set password_hash = \$1, updated_at = now\(\)\s+where organization_id is null and lower\(email\) = \$2 and password_hash is null`).
		WithArgs("argon2id-hash", "ops@fixwell.io").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := mgr.BootstrapOperator(context.Background(), "Ops@Fixwell.io", "argon2id-hash"); err != nil {
		t.Fatalf("BootstrapOperator: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBootstrapOperatorRefusesRotatedPassword(t *testing.T) {
	mgr, mock := newMockManager(t)

	mock.ExpectExec(`update users`).
		WithArgs("argon2id-hash", "ops@fixwell.io").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := mgr.BootstrapOperator(context.Background(), "ops@fixwell.io", "argon2id-hash")
	if err == nil || !strings.Contains(err.Error(), "no pending platform operator") {
		t.Fatalf("expected no-pending-operator error, got %v", err)
	}
}

func TestBootstrapOperatorValidatesInput(t *testing.T) {
	mgr, mock := newMockManager(t)

	if err := mgr.BootstrapOperator(context.Background(), "", "hash"); err == nil {
		t.Fatal("expected error for blank email")
	}
	if err := mgr.BootstrapOperator(context.Background(), "ops@fixwell.io", ""); err == nil {
		t.Fatal("expected error for blank hash")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("validation must not reach the database: %v", err)
	}
}

func TestSplitStatementsRespectsQuotedSemicolons(t *testing.T) {
	stmts := splitStatements(`insert into t (v) values ('a;b'); delete from t;`)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.Contains(stmts[0], "'a;b'") {
		t.Fatalf("quoted semicolon split: %q", stmts[0])
	}
}

package pg

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"fixwell.io/internal/audit"
	"fixwell.io/internal/tenant"
)

// AuditStore appends and lists audit entries. The table is append-only; no
// update or delete statement exists anywhere in this package.
type AuditStore struct {
	s *Store
}

var _ audit.Store = (*AuditStore)(nil)

// Audit returns the audit sub-store.
func (s *Store) Audit() *AuditStore {
	return &AuditStore{s: s}
}

func (a *AuditStore) Append(ctx context.Context, entry *audit.Entry) error {
	_, err := a.s.db.ExecContext(ctx, `
		insert into audit_log
			(id, occurred_at, organization_id, actor_user_id, action,
			 entity_type, entity_id, changes, request_id, request_ip, user_agent)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, entry.ID, entry.OccurredAt, nullIfEmpty(entry.OrganizationID),
		nullIfEmpty(entry.ActorUserID), entry.Action, entry.EntityType, entry.EntityID,
		nullIfEmpty(entry.Changes), nullIfEmpty(entry.RequestID),
		nullIfEmpty(entry.RequestIP), nullIfEmpty(entry.UserAgent))
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListQuery filters an audit listing. Zero fields are not filtered on.
type ListQuery struct {
	Action     string
	EntityType string
	EntityID   string
	Limit      int
}

const auditColumns = `id, occurred_at, coalesce(organization_id, ''), coalesce(actor_user_id, ''),
	action, entity_type, entity_id, coalesce(changes, ''), coalesce(request_id, ''),
	coalesce(request_ip, ''), coalesce(user_agent, '')`

// List returns entries visible under the scope, newest first. A bound scope
// sees only its organisation's entries; the global scope sees everything
// including platform events with no organisation.
func (a *AuditStore) List(ctx context.Context, scope tenant.Scope, q ListQuery) ([]audit.Entry, error) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if orgID, ok := scope.OrgID(); ok {
		conds = append(conds, "organization_id = "+arg(orgID))
	} else if !scope.IsGlobal() {
		return nil, tenant.ErrNoTenant
	}
	if q.Action != "" {
		conds = append(conds, "action = "+arg(q.Action))
	}
	if q.EntityType != "" {
		conds = append(conds, "entity_type = "+arg(q.EntityType))
	}
	if q.EntityID != "" {
		conds = append(conds, "entity_id = "+arg(q.EntityID))
	}

	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `select ` + auditColumns + ` from audit_log`
	if len(conds) > 0 {
		query += ` where ` + strings.Join(conds, " and ")
	}
	query += ` order by occurred_at desc, id desc limit ` + arg(limit)

	rows, err := a.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.OrganizationID, &e.ActorUserID,
			&e.Action, &e.EntityType, &e.EntityID, &e.Changes, &e.RequestID,
			&e.RequestIP, &e.UserAgent); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

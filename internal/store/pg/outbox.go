package pg

import (
	"context"

	"fixwell.io/internal/notify"
)

// OutboxStore appends queued outbound emails.
type OutboxStore struct {
	s *Store
}

var _ notify.Store = (*OutboxStore)(nil)

// Outbox returns the outbox sub-store.
func (s *Store) Outbox() *OutboxStore {
	return &OutboxStore{s: s}
}

func (o *OutboxStore) Enqueue(ctx context.Context, email *notify.Email) error {
	_, err := o.s.db.ExecContext(ctx, `
		insert into outbox_emails
			(id, organization_id, kind, payload, status, available_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, email.ID, nullIfEmpty(email.OrganizationID), email.Kind, email.Payload,
		email.Status, email.AvailableAt, email.CreatedAt)
	return err
}

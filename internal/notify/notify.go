// Package notify queues outbound notifications through a transactional
// outbox table. The service only appends rows; a separate dispatcher drains
// them, so a slow or down mail provider never blocks a request.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fixwell.io/internal/ids"
)

// Email statuses walked by the external dispatcher. This package only ever
// writes StatusPending.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Email is one queued outbound message.
type Email struct {
	ID             string
	OrganizationID string
	Kind           string
	Payload        string
	Status         string
	AvailableAt    time.Time
	CreatedAt      time.Time
}

// Store appends queued emails.
type Store interface {
	Enqueue(ctx context.Context, email *Email) error
}

// Publisher implements the notifier contract over an outbox store.
type Publisher struct {
	store Store
	now   func() time.Time
}

// NewPublisher constructs a Publisher.
func NewPublisher(store Store) (*Publisher, error) {
	if store == nil {
		return nil, errors.New("outbox store is required")
	}
	return &Publisher{store: store, now: time.Now}, nil
}

// WithClock overrides the time source, for tests.
func (p *Publisher) WithClock(fn func() time.Time) *Publisher {
	if fn != nil {
		p.now = fn
	}
	return p
}

// PublishEmail appends one pending outbox row. A nil availableAt means
// deliverable immediately.
func (p *Publisher) PublishEmail(ctx context.Context, orgID, kind string, payload map[string]any, availableAt *time.Time) error {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return errors.New("notify: kind is required")
	}
	raw := []byte("{}")
	if len(payload) > 0 {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("notify: encode payload: %w", err)
		}
		raw = encoded
	}
	now := p.now().UTC()
	at := now
	if availableAt != nil {
		at = availableAt.UTC()
	}
	return p.store.Enqueue(ctx, &Email{
		ID:             ids.New(),
		OrganizationID: orgID,
		Kind:           kind,
		Payload:        string(raw),
		Status:         StatusPending,
		AvailableAt:    at,
		CreatedAt:      now,
	})
}

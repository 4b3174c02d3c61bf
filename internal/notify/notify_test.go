package notify

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memOutbox struct {
	emails []Email
	err    error
}

func (m *memOutbox) Enqueue(_ context.Context, email *Email) error {
	if m.err != nil {
		return m.err
	}
	m.emails = append(m.emails, *email)
	return nil
}

func TestPublishEmailQueuesPending(t *testing.T) {
	outbox := &memOutbox{}
	pub, err := NewPublisher(outbox)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	pub.WithClock(func() time.Time { return now })

	if err := pub.PublishEmail(context.Background(), "org-1", "user.invite",
		map[string]any{"email": "new@acme.test"}, nil); err != nil {
		t.Fatalf("PublishEmail: %v", err)
	}

	if len(outbox.emails) != 1 {
		t.Fatalf("expected 1 queued email, got %d", len(outbox.emails))
	}
	email := outbox.emails[0]
	if email.ID == "" {
		t.Fatal("email must get an id")
	}
	if email.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", email.Status)
	}
	if !email.AvailableAt.Equal(now) || !email.CreatedAt.Equal(now) {
		t.Fatalf("expected clock timestamps, got available=%v created=%v", email.AvailableAt, email.CreatedAt)
	}
	if email.Payload != `{"email":"new@acme.test"}` {
		t.Fatalf("unexpected payload: %s", email.Payload)
	}
}

func TestPublishEmailDeferredDelivery(t *testing.T) {
	outbox := &memOutbox{}
	pub, _ := NewPublisher(outbox)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	pub.WithClock(func() time.Time { return now })

	later := now.Add(2 * time.Hour)
	if err := pub.PublishEmail(context.Background(), "", "digest.daily", nil, &later); err != nil {
		t.Fatalf("PublishEmail: %v", err)
	}
	email := outbox.emails[0]
	if !email.AvailableAt.Equal(later) {
		t.Fatalf("expected deferred availability, got %v", email.AvailableAt)
	}
	if email.Payload != "{}" {
		t.Fatalf("nil payload must encode as empty object, got %s", email.Payload)
	}
}

func TestPublishEmailRequiresKind(t *testing.T) {
	pub, _ := NewPublisher(&memOutbox{})
	err := pub.PublishEmail(context.Background(), "org-1", "  ", nil, nil)
	if err == nil {
		t.Fatal("expected error for blank kind")
	}
}

func TestPublishEmailPropagatesStoreError(t *testing.T) {
	boom := errors.New("outbox down")
	pub, _ := NewPublisher(&memOutbox{err: boom})
	err := pub.PublishEmail(context.Background(), "org-1", "user.invite", nil, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"fixwell.io/internal/obs"
)

type captureStore struct {
	entries []*Entry
	err     error
}

func (s *captureStore) Append(_ context.Context, entry *Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func TestRecordAppendsAndMirrors(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	store := &captureStore{}
	rec, err := NewRecorder(store)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec.WithClock(func() time.Time { return fixed })

	ctx := WithRequestMeta(context.Background(), RequestMeta{
		RequestID: "req-123",
		IP:        "203.0.113.7",
		UserAgent: "audit-test",
	})

	changes := map[string]any{"role": map[string]string{"old": "viewer", "new": "org_admin"}}
	if err := rec.Record(ctx, "org-1", "user-42", "directory.user.role_change", "user", "user-7", changes); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if len(store.entries) != 1 {
		t.Fatalf("expected 1 stored entry, got %d", len(store.entries))
	}
	entry := store.entries[0]
	if entry.ID == "" {
		t.Fatal("expected generated entry id")
	}
	if !entry.OccurredAt.Equal(fixed) {
		t.Fatalf("unexpected occurred_at: %v", entry.OccurredAt)
	}
	if entry.OrganizationID != "org-1" || entry.ActorUserID != "user-42" {
		t.Fatalf("unexpected org/actor: %s/%s", entry.OrganizationID, entry.ActorUserID)
	}
	if entry.RequestIP != "203.0.113.7" || entry.UserAgent != "audit-test" {
		t.Fatalf("request metadata not captured: %+v", entry)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(entry.Changes), &decoded); err != nil {
		t.Fatalf("changes payload not valid JSON: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected mirrored log output")
	}
	var mirrorEntry map[string]any
	if err := json.Unmarshal([]byte(line), &mirrorEntry); err != nil {
		t.Fatalf("mirror not valid JSON: %v", err)
	}
	if mirrorEntry["type"] != "audit" || mirrorEntry["event"] != "directory.user.role_change" {
		t.Fatalf("unexpected mirror line: %v", mirrorEntry)
	}
	if mirrorEntry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", mirrorEntry["request_id"])
	}
}

func TestRecordFailClosed(t *testing.T) {
	sentinel := errors.New("append failed")
	rec, err := NewRecorder(&captureStore{err: sentinel})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	err = rec.Record(context.Background(), "org-1", "user-1", "settings.update", "platform_settings", "platform_settings", nil)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected store error to propagate, got %v", err)
	}
}

func TestRecordRequiresAction(t *testing.T) {
	rec, err := NewRecorder(&captureStore{})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := rec.Record(context.Background(), "", "", "  ", "user", "u-1", nil); err == nil {
		t.Fatal("expected error for empty action")
	}
}

func TestRequestMetaAbsentIsZero(t *testing.T) {
	meta := RequestMetaFromContext(context.Background())
	if meta != (RequestMeta{}) {
		t.Fatalf("expected zero meta, got %+v", meta)
	}
}

// Package audit appends immutable records of mutating actions. Writes are
// fail-closed: a failed append propagates and aborts the parent mutation,
// because silently dropped audit entries are a compliance risk.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"fixwell.io/internal/ids"
	"fixwell.io/internal/obs"
)

// Entry is one append-only audit record. OrganizationID is empty for
// platform-wide events. Entries are never mutated after insert.
type Entry struct {
	ID             string    `json:"id"`
	OccurredAt     time.Time `json:"occurred_at"`
	OrganizationID string    `json:"organization_id,omitempty"`
	ActorUserID    string    `json:"actor_user_id,omitempty"`
	Action         string    `json:"action"`
	EntityType     string    `json:"entity_type"`
	EntityID       string    `json:"entity_id"`
	Changes        string    `json:"changes,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
	RequestIP      string    `json:"request_ip,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
}

// Store persists entries append-only.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
}

// RequestMeta carries the caller metadata captured from the transport layer.
// Every field is optional; absence is not an error.
type RequestMeta struct {
	RequestID string
	IP        string
	UserAgent string
}

type metaContextKey struct{}

// WithRequestMeta attaches transport metadata to the context for audit writes.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, metaContextKey{}, meta)
}

// RequestMetaFromContext returns the transport metadata, zero when absent.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	if m, ok := ctx.Value(metaContextKey{}).(RequestMeta); ok {
		return m
	}
	return RequestMeta{}
}

// Recorder writes audit entries to the store and mirrors each one as a
// structured log line for on-call visibility.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder constructs a Recorder over the given store.
func NewRecorder(store Store) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	return &Recorder{store: store, now: time.Now}, nil
}

// WithClock overrides the time source, for tests.
func (r *Recorder) WithClock(fn func() time.Time) *Recorder {
	if fn != nil {
		r.now = fn
	}
	return r
}

// Record appends one entry. changes, when non-nil, is serialized to JSON and
// stored as an opaque payload. A store failure propagates to the caller; no
// retry, no swallowing.
func (r *Recorder) Record(ctx context.Context, orgID, actorID, action, entityType, entityID string, changes any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return errors.New("audit: action is required")
	}

	entry := &Entry{
		ID:             ids.New(),
		OccurredAt:     r.now().UTC(),
		OrganizationID: orgID,
		ActorUserID:    actorID,
		Action:         action,
		EntityType:     entityType,
		EntityID:       entityID,
	}
	if changes != nil {
		data, err := json.Marshal(changes)
		if err != nil {
			return err
		}
		entry.Changes = string(data)
	}
	meta := RequestMetaFromContext(ctx)
	entry.RequestID = meta.RequestID
	entry.RequestIP = meta.IP
	entry.UserAgent = meta.UserAgent

	if err := r.store.Append(ctx, entry); err != nil {
		return err
	}
	mirror(entry)
	return nil
}

func mirror(entry *Entry) {
	line := map[string]any{
		"ts":     entry.OccurredAt.Format(time.RFC3339Nano),
		"type":   "audit",
		"event":  entry.Action,
		"entity": entry.EntityType,
	}
	if entry.OrganizationID != "" {
		line["organization_id"] = entry.OrganizationID
	}
	if entry.ActorUserID != "" {
		line["actor_user_id"] = entry.ActorUserID
	}
	if entry.EntityID != "" {
		line["entity_id"] = entry.EntityID
	}
	if entry.RequestID != "" {
		line["request_id"] = entry.RequestID
	}
	data, err := json.Marshal(line)
	if err != nil {
		return
	}
	obs.Logger().Println(string(data))
}

package stream

import (
	"context"

	"fixwell.io/internal/audit"
)

// TeeStore wraps an audit store and publishes every successfully appended
// entry to the live stream. Publication is best-effort and never fails the
// append.
type TeeStore struct {
	inner  audit.Store
	stream *Stream
}

var _ audit.Store = (*TeeStore)(nil)

// Tee wraps inner so appended entries also reach the stream.
func Tee(inner audit.Store, s *Stream) *TeeStore {
	return &TeeStore{inner: inner, stream: s}
}

func (t *TeeStore) Append(ctx context.Context, entry *audit.Entry) error {
	if err := t.inner.Append(ctx, entry); err != nil {
		return err
	}
	if t.stream != nil {
		t.stream.Publish(*entry)
	}
	return nil
}

// Package stream fans audit events out to live subscribers (SSE clients).
package stream

import (
	"context"
	"sync"

	"fixwell.io/internal/audit"
	"fixwell.io/internal/tenant"
)

// Event is one audit entry on the wire, tagged with the organisation it
// belongs to so subscriptions can be tenant-filtered at fan-out time.
type Event struct {
	Entry audit.Entry `json:"entry"`
}

type subscriber struct {
	scope tenant.Scope
	ch    chan Event
}

// Stream fan-outs audit events to all active subscribers. Slow subscribers
// drop events rather than block the publisher.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber limited to the given scope and returns a
// channel which will receive events. The channel is closed when the provided
// context ends.
func (s *Stream) Subscribe(ctx context.Context, scope tenant.Scope) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{scope: scope, ch: ch}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the entry to every subscriber whose scope can see it.
// Platform events with no organisation are visible only to global scopes.
func (s *Stream) Publish(entry audit.Entry) {
	evt := Event{Entry: entry}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if entry.OrganizationID == "" {
			if !sub.scope.IsGlobal() {
				continue
			}
		} else if !sub.scope.Allows(entry.OrganizationID) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (s *Stream) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

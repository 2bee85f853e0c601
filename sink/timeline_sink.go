package sink

import (
	"chat-hub/domain/event"
	"context"
	"sync"

	"github.com/samber/lo"
)

// Timeline keeps every event delivered to a connection, in order.
// The CLI client and the tests use it to inspect what a connection received.
type Timeline struct {
	mu     sync.Mutex
	events []event.Outbound
	closed bool
}

func NewTimeline() *Timeline {
	return &Timeline{}
}

func (t *Timeline) Consume(_ context.Context, e event.Outbound) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
	return nil
}

func (t *Timeline) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

func (t *Timeline) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Timeline) Events() []event.Outbound {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]event.Outbound(nil), t.events...)
}

// Of returns the events of the given kind, oldest first.
func (t *Timeline) Of(kind event.OutboundKind) []event.Outbound {
	return lo.Filter(t.Events(), func(e event.Outbound, _ int) bool {
		return e.Kind == kind
	})
}

func (t *Timeline) Kinds() []event.OutboundKind {
	return lo.Map(t.Events(), func(e event.Outbound, _ int) event.OutboundKind {
		return e.Kind
	})
}

func (t *Timeline) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

package sink

import (
	"chat-hub/domain/event"
	"chat-hub/errors"
	"context"
	"sync"
)

// ConnectionSink is the bounded outbound queue of one client connection.
// The transport writer drains Events until Done is closed.
type ConnectionSink struct {
	events chan event.Outbound
	done   chan struct{}
	once   sync.Once
}

func NewConnectionSink(bufferSize int) *ConnectionSink {
	return &ConnectionSink{
		events: make(chan event.Outbound, bufferSize),
		done:   make(chan struct{}),
	}
}

// Consume is called by the hub for every event addressed to this connection.
// It never waits for the writer: a full queue drops the event.
func (s *ConnectionSink) Consume(ctx context.Context, e event.Outbound) error {
	select {
	case <-s.done:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case s.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.ErrSinkFull
	}
}

func (s *ConnectionSink) Events() <-chan event.Outbound {
	return s.events
}

func (s *ConnectionSink) Done() <-chan struct{} {
	return s.done
}

// Close asks the writer to terminate the connection. Safe to call many times.
func (s *ConnectionSink) Close() {
	s.once.Do(func() { close(s.done) })
}

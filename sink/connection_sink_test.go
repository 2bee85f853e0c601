package sink

import (
	"chat-hub/domain/event"
	"chat-hub/errors"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectionSink_Drops_When_Full(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := NewConnectionSink(1)

	// Given a sink with room for a single event
	req.NoError(s.Consume(ctx, event.New(event.UserOnline, nil)))

	// When a second event arrives before the writer drained the first
	err := s.Consume(ctx, event.New(event.UserOffline, nil))

	// Then it is dropped instead of blocking the caller
	req.ErrorIs(err, errors.ErrSinkFull)
	req.Len(s.Events(), 1)
	req.Equal(event.UserOnline, (<-s.Events()).Kind)
}

func TestConnectionSink_Refuses_After_Close(t *testing.T) {
	req := require.New(t)
	s := NewConnectionSink(4)

	s.Close()
	s.Close()

	req.ErrorIs(s.Consume(context.Background(), event.New(event.UserOnline, nil)), errors.ErrConnectionClosed)
	select {
	case <-s.Done():
	default:
		req.Fail("done channel should be closed")
	}
}

func TestTimeline_Records_In_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	tl := NewTimeline()

	req.NoError(tl.Consume(ctx, event.New(event.UserTyping, nil)))
	req.NoError(tl.Consume(ctx, event.New(event.MessageReceive, nil)))
	req.NoError(tl.Consume(ctx, event.New(event.UserTyping, nil)))

	req.Equal([]event.OutboundKind{event.UserTyping, event.MessageReceive, event.UserTyping}, tl.Kinds())
	req.Len(tl.Of(event.UserTyping), 2)

	tl.Reset()
	req.Empty(tl.Events())
}

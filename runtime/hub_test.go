package runtime

import (
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/sink"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	return NewHub(logs.GetLoggerFromLevel(slog.LevelDebug), nil)
}

func TestHub_SendToRoom_Excludes_Sender_And_Other_Rooms(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub()
	now := time.Now().UTC()

	aliceSink, bobSink, carolSink := sink.NewTimeline(), sink.NewTimeline(), sink.NewTimeline()
	alice := hub.Add(aliceSink, now)
	bob := hub.Add(bobSink, now)
	carol := hub.Add(carolSink, now)

	room := chat.RoomFor("chat-1")
	hub.Rooms.Join(alice.ID, room)
	hub.Rooms.Join(bob.ID, room)
	hub.Rooms.Join(carol.ID, chat.RoomFor("chat-2"))

	// When alice types in chat-1
	delivered := hub.SendToRoom(ctx, room, event.New(event.UserTyping, nil), alice.ID)

	// Then only bob receives it
	req.Equal(1, delivered)
	req.Empty(aliceSink.Events())
	req.Len(bobSink.Of(event.UserTyping), 1)
	req.Empty(carolSink.Events())
}

func TestHub_SendToUser_Uses_Live_Presence(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub()
	now := time.Now().UTC()

	oldSink, newSink := sink.NewTimeline(), sink.NewTimeline()
	oldConn := hub.Add(oldSink, now)
	newConn := hub.Add(newSink, now)

	hub.Presence.Register("alice", oldConn.ID)
	hub.Presence.Register("alice", newConn.ID)

	req.True(hub.SendToUser(ctx, "alice", event.New(event.CallInitiated, nil)))
	req.False(hub.SendToUser(ctx, "bob", event.New(event.CallInitiated, nil)))

	req.Empty(oldSink.Events())
	req.Len(newSink.Events(), 1)
}

func TestHub_Broadcast_Skips_Unauthenticated(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub()
	now := time.Now().UTC()

	authedSink, anonSink, selfSink := sink.NewTimeline(), sink.NewTimeline(), sink.NewTimeline()
	authed := hub.Add(authedSink, now)
	hub.Add(anonSink, now)
	self := hub.Add(selfSink, now)
	req.True(hub.Bind(authed.ID, "bob", now))
	req.True(hub.Bind(self.ID, "alice", now))

	delivered := hub.Broadcast(ctx, event.New(event.UserOnline, nil), self.ID)

	req.Equal(1, delivered)
	req.Len(authedSink.Events(), 1)
	req.Empty(anonSink.Events())
	req.Empty(selfSink.Events())
}

func TestHub_Bind_Refuses_Another_User(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	now := time.Now().UTC()
	conn := hub.Add(sink.NewTimeline(), now)

	req.False(conn.Authenticated())
	req.True(hub.Bind(conn.ID, "alice", now))
	req.True(hub.Bind(conn.ID, "alice", now.Add(time.Second)))
	req.False(hub.Bind(conn.ID, "bob", now))
	req.Equal("alice", conn.UserID())
	req.False(hub.Bind("missing", "alice", now))
}

func TestHub_Remove_And_Close(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	s := sink.NewTimeline()
	conn := hub.Add(s, time.Now())

	hub.Close(conn.ID)
	req.True(s.Closed())

	_, ok := hub.Remove(conn.ID)
	req.True(ok)
	_, ok = hub.Remove(conn.ID)
	req.False(ok)
	req.Zero(hub.Count())
	req.False(hub.SendToConnection(context.Background(), conn.ID, event.New(event.UserOnline, nil)))
}

func TestHub_JoinUser_Subscribes_Live_Connection(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub()
	s := sink.NewTimeline()
	conn := hub.Add(s, time.Now())
	hub.Presence.Register("alice", conn.ID)

	req.True(hub.JoinUser(ctx, "alice", "chat-1"))
	req.True(hub.JoinUser(ctx, "alice", "chat-1"))
	req.False(hub.JoinUser(ctx, "bob", "chat-1"))

	req.True(hub.Rooms.IsMember(conn.ID, chat.RoomFor("chat-1")))
	// Only the first join is notified
	req.Len(s.Of(event.ChatJoined), 1)
}

func TestHub_JoinUser_Ignores_Removed_Connection(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	s := sink.NewTimeline()
	conn := hub.Add(s, time.Now())
	hub.Presence.Register("alice", conn.ID)

	// Given the connection is gone but presence wasn't cleaned yet
	_, ok := hub.Remove(conn.ID)
	req.True(ok)

	req.False(hub.JoinUser(context.Background(), "alice", "chat-1"))
	req.Zero(hub.Rooms.RoomCount())
	req.Empty(s.Events())
}

func TestHub_LeaveUser_Unsubscribes_Live_Connection(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := newTestHub()
	s := sink.NewTimeline()
	conn := hub.Add(s, time.Now())
	hub.Presence.Register("alice", conn.ID)
	req.True(hub.JoinUser(ctx, "alice", "chat-1"))

	req.True(hub.LeaveUser(ctx, "alice", "chat-1"))
	req.True(hub.LeaveUser(ctx, "alice", "chat-1"))
	req.False(hub.LeaveUser(ctx, "bob", "chat-1"))

	req.False(hub.Rooms.IsMember(conn.ID, chat.RoomFor("chat-1")))
	req.Len(s.Of(event.ChatLeft), 1)
}

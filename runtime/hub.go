package runtime

import (
	"chat-hub/contract"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/observability"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Connection is one live client channel. It starts unauthenticated and gets
// bound to a user once the auth handshake succeeds.
type Connection struct {
	ID          string
	Sink        contract.EventSink
	ConnectedAt time.Time

	mu              sync.RWMutex
	userID          string
	authenticatedAt time.Time
}

func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) Authenticated() bool {
	return c.UserID() != ""
}

func (c *Connection) AuthenticatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticatedAt
}

// Hub owns the transient state of the server: the connection table, the
// presence registry and the room tracker. Targets are always resolved at
// emission time.
type Hub struct {
	log      *slog.Logger
	metrics  *observability.Metrics
	Presence *PresenceRegistry
	Rooms    *RoomTracker

	mu          sync.RWMutex
	connections map[string]*Connection
}

func NewHub(log *slog.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		log:         log,
		metrics:     metrics,
		Presence:    NewPresenceRegistry(),
		Rooms:       NewRoomTracker(),
		connections: make(map[string]*Connection),
	}
}

// Add registers a new unauthenticated connection around sink.
func (h *Hub) Add(sink contract.EventSink, at time.Time) *Connection {
	conn := &Connection{
		ID:          uuid.NewString(),
		Sink:        sink,
		ConnectedAt: at,
	}
	h.mu.Lock()
	h.connections[conn.ID] = conn
	h.mu.Unlock()

	h.metrics.ConnectionOpened()
	return conn
}

func (h *Hub) Get(connID string) (*Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.connections[connID]
	return conn, ok
}

// Remove deletes the connection from the table. Presence and rooms are left
// to the caller.
func (h *Hub) Remove(connID string) (*Connection, bool) {
	h.mu.Lock()
	conn, ok := h.connections[connID]
	delete(h.connections, connID)
	h.mu.Unlock()

	if ok {
		h.metrics.ConnectionClosed()
	}
	return conn, ok
}

// Bind attaches userID to the connection. Binding the same user again only
// refreshes the timestamp; binding another user is refused.
func (h *Hub) Bind(connID, userID string, at time.Time) bool {
	conn, ok := h.Get(connID)
	if !ok {
		return false
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.userID != "" && conn.userID != userID {
		return false
	}
	conn.userID = userID
	conn.authenticatedAt = at
	return true
}

func (h *Hub) Connections() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		conns = append(conns, conn)
	}
	return conns
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// SendToConnection queues e on one connection. It reports whether the event
// was accepted by the sink.
func (h *Hub) SendToConnection(ctx context.Context, connID string, e event.Outbound) bool {
	conn, ok := h.Get(connID)
	if !ok {
		return false
	}
	if err := conn.Sink.Consume(ctx, e); err != nil {
		h.metrics.OutboundDropped(e.Kind)
		h.log.Debug("Event dropped", "conn_id", connID, "event", e.Kind, "error", err)
		return false
	}
	h.metrics.OutboundQueued(e.Kind)
	return true
}

// SendToUser delivers e to the live connection of userID, if any.
func (h *Hub) SendToUser(ctx context.Context, userID string, e event.Outbound) bool {
	connID, ok := h.Presence.Lookup(userID)
	if !ok {
		return false
	}
	return h.SendToConnection(ctx, connID, e)
}

// SendToRoom delivers e to every connection of roomID except the excluded one
// (empty excludes nobody) and returns how many connections accepted it.
func (h *Hub) SendToRoom(ctx context.Context, roomID chat.RoomID, e event.Outbound, except string) int {
	delivered := 0
	for _, connID := range h.Rooms.MembersOf(roomID) {
		if connID == except {
			continue
		}
		if h.SendToConnection(ctx, connID, e) {
			delivered++
		}
	}
	return delivered
}

// Broadcast delivers e to every authenticated connection except one.
func (h *Hub) Broadcast(ctx context.Context, e event.Outbound, except string) int {
	delivered := 0
	for _, conn := range h.Connections() {
		if conn.ID == except || !conn.Authenticated() {
			continue
		}
		if h.SendToConnection(ctx, conn.ID, e) {
			delivered++
		}
	}
	return delivered
}

// JoinUser subscribes the live connection of userID to the chat room and
// notifies it. It reports false when the user is offline.
func (h *Hub) JoinUser(ctx context.Context, userID string, chatID chat.ChatID) bool {
	connID, ok := h.Presence.Lookup(userID)
	if !ok {
		return false
	}
	roomID := chat.RoomFor(chatID)
	joined := h.Rooms.Join(connID, roomID)
	// The connection may have been removed between Lookup and Join.
	if _, alive := h.Get(connID); !alive {
		h.Rooms.Leave(connID, roomID)
		return false
	}
	if joined {
		h.SendToConnection(ctx, connID, event.New(event.ChatJoined, event.ChatRef{ChatID: chatID.String()}))
	}
	return true
}

// LeaveUser unsubscribes the live connection of userID from the chat room
// and notifies it. It reports false when the user is offline.
func (h *Hub) LeaveUser(ctx context.Context, userID string, chatID chat.ChatID) bool {
	connID, ok := h.Presence.Lookup(userID)
	if !ok {
		return false
	}
	if h.Rooms.Leave(connID, chat.RoomFor(chatID)) {
		h.SendToConnection(ctx, connID, event.New(event.ChatLeft, event.ChatRef{ChatID: chatID.String()}))
	}
	return true
}

// Close asks the transport to terminate the connection.
func (h *Hub) Close(connID string) {
	if conn, ok := h.Get(connID); ok {
		conn.Sink.Close()
	}
}

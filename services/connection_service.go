package services

import (
	"chat-hub/contract"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/domain/user"
	"chat-hub/errors"
	"chat-hub/observability"
	"chat-hub/runtime"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

// PresenceMode selects how presence changes are broadcast.
type PresenceMode string

const (
	PresenceDelta PresenceMode = "delta"
	PresenceFull  PresenceMode = "full"
	PresenceBoth  PresenceMode = "both"
)

func (m PresenceMode) Valid() bool {
	switch m {
	case PresenceDelta, PresenceFull, PresenceBoth:
		return true
	}
	return false
}

type ConnectionPolicy struct {
	PresenceBroadcast PresenceMode
	CloseSuperseded   bool
	AuthTimeout       time.Duration
}

type IConnectionService interface {
	Connect(sink contract.EventSink) *runtime.Connection
	Authenticate(ctx context.Context, connID, token string) (user.User, error)
	Join(ctx context.Context, connID string, chatID chat.ChatID) error
	Leave(ctx context.Context, connID string, chatID chat.ChatID) error
	Disconnect(ctx context.Context, connID string)
	OnlineUsers() []user.Profile
}

// ConnectionService drives a connection from open to close: authentication,
// presence, room subscriptions and the offline notification.
type ConnectionService struct {
	log      *slog.Logger
	hub      *runtime.Hub
	users    contract.IUserRepository
	chats    contract.IChatRepository
	verifier contract.TokenVerifier
	profiles profileResolver
	metrics  *observability.Metrics
	policy   ConnectionPolicy

	mu        sync.RWMutex
	listeners []contract.OfflineListener
}

func NewConnectionService(
	log *slog.Logger,
	hub *runtime.Hub,
	users contract.IUserRepository,
	chats contract.IChatRepository,
	verifier contract.TokenVerifier,
	metrics *observability.Metrics,
	policy ConnectionPolicy,
) *ConnectionService {
	if !policy.PresenceBroadcast.Valid() {
		policy.PresenceBroadcast = PresenceBoth
	}
	return &ConnectionService{
		log:      log,
		hub:      hub,
		users:    users,
		chats:    chats,
		verifier: verifier,
		profiles: profileResolver{users: users, log: log},
		metrics:  metrics,
		policy:   policy,
	}
}

// OnOffline subscribes l to the users that lose their last connection.
func (s *ConnectionService) OnOffline(l contract.OfflineListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *ConnectionService) Connect(sink contract.EventSink) *runtime.Connection {
	conn := s.hub.Add(sink, time.Now().UTC())
	s.log.Debug("Connection opened", "conn_id", conn.ID)
	return conn
}

// Authenticate binds the connection to the user behind token, registers
// presence and subscribes the connection to every chat of the user.
// On failure the connection stays open and unauthenticated.
func (s *ConnectionService) Authenticate(ctx context.Context, connID, token string) (user.User, error) {
	conn, ok := s.hub.Get(connID)
	if !ok {
		return user.User{}, fmt.Errorf("%w: connection %s", errors.ErrNotFound, connID)
	}
	userID, err := s.verifier.Verify(token)
	if err != nil {
		return user.User{}, err
	}
	if current := conn.UserID(); current != "" && current != userID {
		return user.User{}, fmt.Errorf("%w: connection already authenticated as another user", errors.ErrUnauthorized)
	}
	u, err := s.users.GetUserByID(userID)
	if errors.Is(err, errors.ErrNotFound) {
		return user.User{}, fmt.Errorf("%w: unknown user", errors.ErrUnauthorized)
	}
	if err != nil {
		return user.User{}, storageError(err)
	}
	chats, err := s.chats.ListChatsForUser(userID)
	if err != nil {
		return user.User{}, storageError(err)
	}

	now := time.Now().UTC()
	if !s.hub.Bind(connID, userID, now) {
		return user.User{}, fmt.Errorf("%w: connection is gone", errors.ErrUnauthorized)
	}
	previous, superseded := s.hub.Presence.Register(userID, connID)

	// A chat created before Register could not see this connection in
	// presence, so the chat list is read again once registered.
	if latest, err := s.chats.ListChatsForUser(userID); err != nil {
		s.log.Warn("Unable to refresh chats after register", "user_id", userID, "error", err)
	} else {
		chats = lo.UniqBy(append(chats, latest...), func(c chat.Chat) chat.ChatID { return c.ID })
	}
	for _, c := range chats {
		s.hub.Rooms.Join(connID, c.Room())
	}
	if _, alive := s.hub.Get(connID); !alive {
		s.hub.Rooms.DropConnection(connID)
		s.hub.Presence.Unregister(userID, connID)
		return user.User{}, fmt.Errorf("%w: connection is gone", errors.ErrUnauthorized)
	}
	if err := s.users.SetPresence(userID, true, now); err != nil {
		s.log.Error("Unable to store presence", "user_id", userID, "error", err)
	}
	u.IsOnline = true
	u.LastSeen = now
	s.metrics.SetUsersOnline(s.hub.Presence.Count())

	s.hub.SendToConnection(ctx, connID, event.New(event.AuthSuccess, event.AuthSuccessPayload{
		User:          u.Account(),
		OnlineUserIDs: s.hub.Presence.OnlineUserIDs(),
		ChatIDs:       lo.Map(chats, func(c chat.Chat, _ int) string { return c.ID.String() }),
	}))
	s.broadcastPresence(ctx, connID, event.PresencePayload{UserID: userID, IsOnline: true, LastSeen: now})

	if superseded && s.policy.CloseSuperseded {
		s.hub.SendToConnection(ctx, previous, event.New(event.AuthSuperseded, event.MessageOnlyPayload{
			Message: "signed in from another connection",
		}))
		s.hub.Close(previous)
		s.log.Debug("Connection superseded", "conn_id", previous, "user_id", userID)
	}
	s.log.Info("User authenticated", "conn_id", connID, "user_id", userID, "chats", len(chats))
	return u, nil
}

// Join subscribes the connection to a chat the user takes part in.
func (s *ConnectionService) Join(ctx context.Context, connID string, chatID chat.ChatID) error {
	userID, err := s.authenticated(connID)
	if err != nil {
		return err
	}
	if chatID == "" {
		return fmt.Errorf("%w: chat id is required", errors.ErrValidation)
	}
	c, err := s.chats.GetChat(chatID)
	if err != nil {
		return storageError(err)
	}
	if !c.HasMember(userID) {
		return fmt.Errorf("%w: not a participant of chat %s", errors.ErrForbidden, chatID)
	}
	s.hub.Rooms.Join(connID, c.Room())
	if _, alive := s.hub.Get(connID); !alive {
		s.hub.Rooms.Leave(connID, c.Room())
		return fmt.Errorf("%w: connection %s", errors.ErrNotFound, connID)
	}
	s.hub.SendToConnection(ctx, connID, event.New(event.ChatJoined, event.ChatRef{ChatID: chatID.String()}))
	return nil
}

func (s *ConnectionService) Leave(ctx context.Context, connID string, chatID chat.ChatID) error {
	if _, err := s.authenticated(connID); err != nil {
		return err
	}
	if chatID == "" {
		return fmt.Errorf("%w: chat id is required", errors.ErrValidation)
	}
	s.hub.Rooms.Leave(connID, chat.RoomFor(chatID))
	s.hub.SendToConnection(ctx, connID, event.New(event.ChatLeft, event.ChatRef{ChatID: chatID.String()}))
	return nil
}

// Disconnect forgets the connection. The user only goes offline when this
// connection was still its registered one.
func (s *ConnectionService) Disconnect(ctx context.Context, connID string) {
	conn, ok := s.hub.Remove(connID)
	if !ok {
		return
	}
	conn.Sink.Close()
	left := s.hub.Rooms.DropConnection(connID)

	userID := conn.UserID()
	if userID == "" || !s.hub.Presence.Unregister(userID, connID) {
		s.log.Debug("Connection closed", "conn_id", connID, "user_id", userID, "rooms", len(left))
		return
	}

	now := time.Now().UTC()
	if err := s.users.SetPresence(userID, false, now); err != nil {
		s.log.Error("Unable to store presence", "user_id", userID, "error", err)
	}
	s.metrics.SetUsersOnline(s.hub.Presence.Count())
	s.broadcastPresence(ctx, connID, event.PresencePayload{UserID: userID, IsOnline: false, LastSeen: now})

	s.mu.RLock()
	listeners := append([]contract.OfflineListener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, l := range listeners {
		l.UserWentOffline(ctx, userID)
	}
	s.log.Info("User offline", "conn_id", connID, "user_id", userID)
}

// ReapUnauthenticated closes the connections that didn't authenticate in
// time and returns how many were closed.
func (s *ConnectionService) ReapUnauthenticated(ctx context.Context, now time.Time) int {
	if s.policy.AuthTimeout <= 0 {
		return 0
	}
	reaped := 0
	for _, conn := range s.hub.Connections() {
		if conn.Authenticated() || now.Sub(conn.ConnectedAt) < s.policy.AuthTimeout {
			continue
		}
		s.hub.SendToConnection(ctx, conn.ID, event.New(event.AuthError, event.MessageOnlyPayload{
			Message: "authentication timeout",
		}))
		s.Disconnect(ctx, conn.ID)
		reaped++
	}
	return reaped
}

// OnlineUsers returns the profiles of the users with a live connection.
func (s *ConnectionService) OnlineUsers() []user.Profile {
	return lo.Map(s.hub.Presence.OnlineUserIDs(), func(userID string, _ int) user.Profile {
		return s.profiles.resolve(userID)
	})
}

func (s *ConnectionService) authenticated(connID string) (string, error) {
	conn, ok := s.hub.Get(connID)
	if !ok {
		return "", fmt.Errorf("%w: connection %s", errors.ErrNotFound, connID)
	}
	userID := conn.UserID()
	if userID == "" {
		return "", fmt.Errorf("%w: authentication required", errors.ErrUnauthorized)
	}
	return userID, nil
}

func (s *ConnectionService) broadcastPresence(ctx context.Context, connID string, p event.PresencePayload) {
	if s.policy.PresenceBroadcast != PresenceFull {
		kind := event.UserOffline
		if p.IsOnline {
			kind = event.UserOnline
		}
		s.hub.Broadcast(ctx, event.New(kind, p), connID)
	}
	if s.policy.PresenceBroadcast != PresenceDelta {
		s.hub.Broadcast(ctx, event.New(event.UsersOnline, event.OnlineUsersPayload{
			UserIDs: s.hub.Presence.OnlineUserIDs(),
		}), "")
	}
}

package services

import (
	"chat-hub/domain/chat"
	"chat-hub/domain/user"
	"chat-hub/mocks"
	"chat-hub/runtime"
	"chat-hub/sink"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	log      *slog.Logger
	hub      *runtime.Hub
	users    *mocks.MockIUserRepository
	chats    *mocks.MockIChatRepository
	messages *mocks.MockIMessageRepository
	index    *mocks.MockIMessageIndex
	verifier *mocks.MockTokenVerifier
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	return &fixture{
		log:      log,
		hub:      runtime.NewHub(log, nil),
		users:    mocks.NewMockIUserRepository(ctrl),
		chats:    mocks.NewMockIChatRepository(ctrl),
		messages: mocks.NewMockIMessageRepository(ctrl),
		index:    mocks.NewMockIMessageIndex(ctrl),
		verifier: mocks.NewMockTokenVerifier(ctrl),
	}
}

// withProfiles answers every profile lookup with a user named after its id.
func (f *fixture) withProfiles() {
	f.users.EXPECT().GetUserByID(gomock.Any()).DoAndReturn(func(id string) (user.User, error) {
		return user.User{ID: id, Username: id}, nil
	}).AnyTimes()
}

// online opens an authenticated connection for userID, subscribed to chats.
func (f *fixture) online(userID string, chats ...chat.ChatID) (*runtime.Connection, *sink.Timeline) {
	timeline := sink.NewTimeline()
	conn := f.hub.Add(timeline, time.Now().UTC())
	f.hub.Bind(conn.ID, userID, time.Now().UTC())
	f.hub.Presence.Register(userID, conn.ID)
	for _, chatID := range chats {
		f.hub.Rooms.Join(conn.ID, chat.RoomFor(chatID))
	}
	return conn, timeline
}

func groupChat(id chat.ChatID, members ...string) chat.Chat {
	return chat.Chat{ID: id, Name: string(id), Type: chat.Group, Members: members}
}

func userProfile(id string) user.Profile {
	return user.Profile{ID: id, Username: id}
}

func (f *fixture) chatService() *ChatService {
	return NewChatService(f.log, f.hub, f.chats, f.users, f.messages, f.index)
}

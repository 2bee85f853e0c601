//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/domain/file"
	"chat-hub/domain/user"
	"context"
	"io"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used by the supervisor for logs, so workers don't have to name themselves.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the outbound side of one client connection.
// Consume must never block the caller for long: a full sink drops the event.
type EventSink interface {
	Consume(ctx context.Context, e event.Outbound) error
	Close()
}

type IUserRepository interface {
	CreateUser(u user.User) (user.User, error)
	GetUserByID(id string) (user.User, error)
	GetUserByEmail(email string) (user.User, error)
	SetPresence(id string, online bool, lastSeen time.Time) error
	UpdateUser(u user.User) error
	SearchUsers(query string, limit int) ([]user.User, error)
}

type IChatRepository interface {
	CreateChat(c chat.Chat) (chat.Chat, error)
	GetChat(id chat.ChatID) (chat.Chat, error)
	ListChatsForUser(userID string) ([]chat.Chat, error)
	SetLastMessage(id chat.ChatID, messageID string, at time.Time) error
	UpdateChat(c chat.Chat) error
	DeleteChat(id chat.ChatID) error
}

type IMessageRepository interface {
	StoreMessage(msg chat.Message) error
	GetMessage(id string) (chat.Message, error)
	UpdateMessage(msg chat.Message) error
	GetMessages(chatID chat.ChatID, cursor *string, limit int) ([]chat.Message, *string, error)
	// MarkRead adds userID to the readers of every message of the chat and
	// returns how many messages changed.
	MarkRead(chatID chat.ChatID, userID string) (int, error)
	// DeleteChatMessages drops the whole history of a chat and returns the
	// ids of the removed messages.
	DeleteChatMessages(chatID chat.ChatID) ([]string, error)
}

type IFileRepository interface {
	StoreFile(f file.File) error
	GetFile(id string) (file.File, error)
	ListFilesByOwner(userID string) ([]file.File, error)
	DeleteFile(id string) error
}

// IFileStore keeps the content of uploads, the records live in
// IFileRepository.
type IFileStore interface {
	Save(originalName string, r io.Reader, uploadedBy string) (file.File, error)
	Remove(f file.File) error
}

type IMessageIndex interface {
	Index(msg chat.Message) error
	Remove(messageID string) error
	Search(ctx context.Context, chatID chat.ChatID, query string, limit int) ([]string, error)
}

// TokenVerifier resolves a bearer token into the user id it was issued for.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type Censor interface {
	Censor(content string) (string, []string)
}

// OfflineListener is notified once a user has no live connection left.
type OfflineListener interface {
	UserWentOffline(ctx context.Context, userID string)
}

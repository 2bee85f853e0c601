package storage

import (
	"chat-hub/domain/chat"
	"chat-hub/domain/user"
	"chat-hub/errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func openBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Test_Create_And_Get_User(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openBadger(t), slog.Default())

	// Given a new user
	created, err := repository.CreateUser(user.User{
		Username:     "alice",
		Email:        "Alice@Example.com",
		PasswordHash: "hash",
	})
	req.NoError(err)
	req.NotEmpty(created.ID)
	req.Equal([]string{"user"}, created.Roles)

	// When looking it up by id and by email (case-insensitive)
	byID, err := repository.GetUserByID(created.ID)
	req.NoError(err)
	byEmail, err := repository.GetUserByEmail("alice@example.com")
	req.NoError(err)

	// Then both resolve the same record
	req.Equal(created.ID, byID.ID)
	req.Equal(byID, byEmail)
	req.Equal("hash", byID.PasswordHash)
	req.Equal(created.CreatedAt, byID.CreatedAt)
}

func Test_Create_User_Twice(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openBadger(t), slog.Default())

	_, err := repository.CreateUser(user.User{Username: "alice", Email: "alice@example.com"})
	req.NoError(err)

	_, err = repository.CreateUser(user.User{Username: "other", Email: "alice@example.com"})
	req.ErrorIs(err, errors.ErrUserAlreadyExists)

	_, err = repository.CreateUser(user.User{Username: "Alice", Email: "new@example.com"})
	req.ErrorIs(err, errors.ErrUserAlreadyExists)

	users, err := repository.ListUsers()
	req.NoError(err)
	req.Len(users, 1)
}

func Test_Set_Presence(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openBadger(t), slog.Default())
	created, err := repository.CreateUser(user.User{Username: "alice", Email: "alice@example.com"})
	req.NoError(err)
	seen := time.Date(2025, 3, 1, 10, 0, 0, 123, time.UTC)

	req.NoError(repository.SetPresence(created.ID, true, seen))

	u, err := repository.GetUserByID(created.ID)
	req.NoError(err)
	req.True(u.IsOnline)
	req.Equal(seen, u.LastSeen)

	req.ErrorIs(repository.SetPresence("missing", false, seen), errors.ErrNotFound)
}

func Test_Get_Unknown_User(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openBadger(t), slog.Default())

	_, err := repository.GetUserByID("missing")
	req.ErrorIs(err, errors.ErrNotFound)
	_, err = repository.GetUserByEmail("missing@example.com")
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_Create_Chat_And_List_For_Members(t *testing.T) {
	req := require.New(t)
	repository := NewChatRepository(openBadger(t), slog.Default())
	at := time.Now().UTC()

	// Given two chats, bob only in the second
	first, err := repository.CreateChat(chat.Chat{
		Name: "alice & carol", Type: chat.Private, Members: []string{"alice", "carol"},
		CreatedBy: "alice", CreatedAt: at,
	})
	req.NoError(err)
	second, err := repository.CreateChat(chat.Chat{
		Name: "team", Type: chat.Group, Members: []string{"alice", "bob"}, Admins: []string{"alice"},
		CreatedBy: "alice", CreatedAt: at.Add(time.Minute),
	})
	req.NoError(err)

	// When listing chats per member
	aliceChats, err := repository.ListChatsForUser("alice")
	req.NoError(err)
	bobChats, err := repository.ListChatsForUser("bob")
	req.NoError(err)
	nobodyChats, err := repository.ListChatsForUser("nobody")
	req.NoError(err)

	// Then the most recently updated comes first
	req.Equal([]chat.ChatID{second.ID, first.ID}, []chat.ChatID{aliceChats[0].ID, aliceChats[1].ID})
	req.Len(bobChats, 1)
	req.Equal(second, bobChats[0])
	req.Empty(nobodyChats)
}

func Test_Set_Last_Message(t *testing.T) {
	req := require.New(t)
	repository := NewChatRepository(openBadger(t), slog.Default())
	at := time.Now().UTC()
	created, err := repository.CreateChat(chat.Chat{Name: "team", Type: chat.Group, Members: []string{"alice"}, CreatedAt: at})
	req.NoError(err)

	req.NoError(repository.SetLastMessage(created.ID, "msg-1", at.Add(time.Hour)))

	got, err := repository.GetChat(created.ID)
	req.NoError(err)
	req.Equal("msg-1", got.LastMessageID)
	req.Equal(at.Add(time.Hour), got.UpdatedAt)

	_, err = repository.GetChat("missing")
	req.ErrorIs(err, errors.ErrNotFound)
	req.ErrorIs(repository.SetLastMessage("missing", "msg-1", at), errors.ErrNotFound)
}

func Test_Update_User_Moves_Username(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openBadger(t), slog.Default())
	alice, err := repository.CreateUser(user.User{Username: "alice", Email: "alice@example.com"})
	req.NoError(err)
	_, err = repository.CreateUser(user.User{Username: "bob", Email: "bob@example.com"})
	req.NoError(err)

	// Given a username already held by bob
	taken := alice
	taken.Username = "BOB"
	req.ErrorIs(repository.UpdateUser(taken), errors.ErrUserAlreadyExists)

	// When alice renames herself
	alice.Username = "alicia"
	alice.Bio = "hello"
	req.NoError(repository.UpdateUser(alice))

	// Then the old name is free again and the record changed
	stored, err := repository.GetUserByID(alice.ID)
	req.NoError(err)
	req.Equal("alicia", stored.Username)
	req.Equal("hello", stored.Bio)
	_, err = repository.CreateUser(user.User{Username: "alice", Email: "new@example.com"})
	req.NoError(err)
	_, err = repository.CreateUser(user.User{Username: "Alicia", Email: "other@example.com"})
	req.ErrorIs(err, errors.ErrUserAlreadyExists)

	req.ErrorIs(repository.UpdateUser(user.User{ID: "missing", Username: "x"}), errors.ErrNotFound)
}

func Test_Search_Users(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openBadger(t), slog.Default())
	for _, name := range []string{"bob", "Alice", "albert", "carol"} {
		_, err := repository.CreateUser(user.User{Username: name, Email: name + "@example.com"})
		req.NoError(err)
	}

	// When searching a fragment in any case
	found, err := repository.SearchUsers("AL", 0)
	req.NoError(err)

	// Then matches are sorted by username
	req.Equal([]string{"albert", "Alice"}, usernames(found))

	limited, err := repository.SearchUsers("example.com", 2)
	req.NoError(err)
	req.Len(limited, 2)

	none, err := repository.SearchUsers("zed", 10)
	req.NoError(err)
	req.Empty(none)
}

func usernames(users []user.User) []string {
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	return names
}

func Test_Update_Chat_Keeps_Member_Index(t *testing.T) {
	req := require.New(t)
	repository := NewChatRepository(openBadger(t), slog.Default())
	created, err := repository.CreateChat(chat.Chat{
		Name: "team", Type: chat.Group, Members: []string{"alice", "bob"}, Admins: []string{"alice"},
		CreatedBy: "alice", CreatedAt: time.Now().UTC(),
	})
	req.NoError(err)

	// When bob is replaced by carol
	created.Members = []string{"alice", "carol"}
	created.Name = "crew"
	req.NoError(repository.UpdateChat(created))

	// Then the member index follows
	bobChats, err := repository.ListChatsForUser("bob")
	req.NoError(err)
	req.Empty(bobChats)
	carolChats, err := repository.ListChatsForUser("carol")
	req.NoError(err)
	req.Len(carolChats, 1)
	req.Equal("crew", carolChats[0].Name)

	req.ErrorIs(repository.UpdateChat(chat.Chat{ID: "missing"}), errors.ErrNotFound)
}

func Test_Delete_Chat(t *testing.T) {
	req := require.New(t)
	repository := NewChatRepository(openBadger(t), slog.Default())
	created, err := repository.CreateChat(chat.Chat{
		Name: "team", Type: chat.Group, Members: []string{"alice", "bob"}, CreatedAt: time.Now().UTC(),
	})
	req.NoError(err)

	req.NoError(repository.DeleteChat(created.ID))

	_, err = repository.GetChat(created.ID)
	req.ErrorIs(err, errors.ErrNotFound)
	aliceChats, err := repository.ListChatsForUser("alice")
	req.NoError(err)
	req.Empty(aliceChats)
	req.ErrorIs(repository.DeleteChat(created.ID), errors.ErrNotFound)
}

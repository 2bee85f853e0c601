package services

import (
	"chat-hub/contract"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"chat-hub/mocks"
	"chat-hub/sink"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newMessageService(f *fixture, censor *mocks.MockCensor) *MessageService {
	var c contract.Censor
	if censor != nil {
		c = censor
	}
	return NewMessageService(f.log, f.hub, f.users, f.chats, f.messages, f.index, c, nil, 100)
}

func TestMessageService_Hello_Scenario(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.withProfiles()
	svc := newMessageService(f, nil)

	// Given A and B authenticated and subscribed to chat C
	_, aliceEvents := f.online("alice", "c")
	_, bobEvents := f.online("bob", "c")
	_, carolEvents := f.online("carol", "other")
	f.chats.EXPECT().GetChat(chat.ChatID("c")).Return(groupChat("c", "alice", "bob"), nil)

	var stored chat.Message
	f.messages.EXPECT().StoreMessage(gomock.Any()).DoAndReturn(func(m chat.Message) error {
		stored = m
		return nil
	}).Times(1)
	f.chats.EXPECT().SetLastMessage(chat.ChatID("c"), gomock.Any(), gomock.Any()).Return(nil)
	f.index.EXPECT().Index(gomock.Any()).Return(nil)

	// When A sends "hello" to C
	resolved, err := svc.SendMessage(ctx, "alice", chat.SendMessageCommand{ChatID: "c", Text: "hello"})

	// Then exactly one record exists, stamped by the server
	req.NoError(err)
	req.NotEmpty(stored.ID)
	req.Equal("alice", stored.SenderID)
	req.Equal([]string{"alice"}, stored.ReadBy)
	req.Equal(chat.TextMessage, stored.Type)
	req.False(stored.CreatedAt.IsZero())
	req.Equal(stored, resolved.Message)

	// And both connections receive it with the server id
	for _, timeline := range []*sink.Timeline{aliceEvents, bobEvents} {
		received := timeline.Of(event.MessageReceive)
		req.Len(received, 1)
		view := received[0].Payload.(event.MessageView)
		req.Equal(stored.ID, view.ID)
		req.Equal("hello", view.Text)
		req.Equal("alice", view.Sender.ID)
	}
	req.Empty(carolEvents.Events())

	// And B sees A stop typing, A doesn't
	req.Len(bobEvents.Of(event.UserStopTyping), 1)
	req.Empty(aliceEvents.Of(event.UserStopTyping))
}

func TestMessageService_Send_From_Non_Member_Is_Forbidden(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc := newMessageService(f, nil)

	// Given mallory subscribed to the room without being a participant
	_, malloryEvents := f.online("mallory", "c")
	_, aliceEvents := f.online("alice", "c")
	f.chats.EXPECT().GetChat(chat.ChatID("c")).Return(groupChat("c", "alice", "bob"), nil)
	f.messages.EXPECT().StoreMessage(gomock.Any()).Times(0)

	_, err := svc.SendMessage(ctx, "mallory", chat.SendMessageCommand{ChatID: "c", Text: "hi"})

	// Then nothing is persisted nor broadcast
	req.ErrorIs(err, errors.ErrForbidden)
	req.Empty(malloryEvents.Events())
	req.Empty(aliceEvents.Events())
}

func TestMessageService_Send_Validation(t *testing.T) {
	f := newFixture(t)
	svc := newMessageService(f, nil)

	tests := []struct {
		name string
		cmd  chat.SendMessageCommand
	}{
		{"missing chat", chat.SendMessageCommand{Text: "hi"}},
		{"no text nor file", chat.SendMessageCommand{ChatID: "c", Text: "   "}},
		{"unknown type", chat.SendMessageCommand{ChatID: "c", Text: "hi", Type: "sticker"}},
		{"too long", chat.SendMessageCommand{ChatID: "c", Text: strings.Repeat("a", 101)}},
		{"file without url", chat.SendMessageCommand{ChatID: "c", File: &chat.FileRef{Name: "a.png"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SendMessage(context.Background(), "alice", tt.cmd)
			require.ErrorIs(t, err, errors.ErrValidation)
		})
	}
}

func TestMessageService_Send_To_Unknown_Chat(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	svc := newMessageService(f, nil)
	f.chats.EXPECT().GetChat(chat.ChatID("missing")).Return(chat.Chat{}, errors.ErrNotFound)

	_, err := svc.SendMessage(context.Background(), "alice", chat.SendMessageCommand{ChatID: "missing", Text: "hi"})

	req.ErrorIs(err, errors.ErrNotFound)
}

func TestMessageService_Send_Storage_Failure_Is_Internal(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	svc := newMessageService(f, nil)
	_, aliceEvents := f.online("alice", "c")
	f.chats.EXPECT().GetChat(chat.ChatID("c")).Return(groupChat("c", "alice"), nil)
	f.messages.EXPECT().StoreMessage(gomock.Any()).Return(errors.New("disk full"))

	_, err := svc.SendMessage(context.Background(), "alice", chat.SendMessageCommand{ChatID: "c", Text: "hi"})

	req.ErrorIs(err, errors.ErrInternal)
	req.Empty(aliceEvents.Events())
}

func TestMessageService_Reply_Must_Be_In_Same_Chat(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	svc := newMessageService(f, nil)
	f.chats.EXPECT().GetChat(chat.ChatID("c")).Return(groupChat("c", "alice"), nil)
	f.messages.EXPECT().GetMessage("m-other").Return(chat.Message{ID: "m-other", ChatID: "other"}, nil)
	f.messages.EXPECT().StoreMessage(gomock.Any()).Times(0)

	_, err := svc.SendMessage(context.Background(), "alice", chat.SendMessageCommand{ChatID: "c", Text: "hi", ReplyToID: "m-other"})

	req.ErrorIs(err, errors.ErrNotFound)
}

func TestMessageService_Send_Resolves_Reply_And_Censors(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.withProfiles()
	ctrl := gomock.NewController(t)
	censor := mocks.NewMockCensor(ctrl)
	svc := newMessageService(f, censor)
	_, bobEvents := f.online("bob", "c")

	f.chats.EXPECT().GetChat(chat.ChatID("c")).Return(groupChat("c", "alice", "bob"), nil)
	f.messages.EXPECT().GetMessage("m-1").Return(chat.Message{ID: "m-1", ChatID: "c", SenderID: "bob", Text: "how are you?"}, nil)
	censor.EXPECT().Censor("fine, damn it").Return("fine, **** it", []string{"damn"})
	f.messages.EXPECT().StoreMessage(gomock.Any()).Return(nil)
	f.chats.EXPECT().SetLastMessage(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	f.index.EXPECT().Index(gomock.Any()).Return(nil)

	resolved, err := svc.SendMessage(context.Background(), "alice", chat.SendMessageCommand{ChatID: "c", Text: "fine, damn it", ReplyToID: "m-1"})

	req.NoError(err)
	req.Equal("fine, **** it", resolved.Text)
	req.NotNil(resolved.ReplyTo)
	req.Equal("bob", resolved.ReplyTo.Sender.ID)

	view := bobEvents.Of(event.MessageReceive)[0].Payload.(event.MessageView)
	req.Equal("fine, **** it", view.Text)
	req.Equal("m-1", view.ReplyTo.ID)
}

func TestMessageService_Send_Records_Detected_Language(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.withProfiles()
	svc := newMessageService(f, nil)
	_, bobEvents := f.online("bob", "c")
	text := "Bonjour à tous, je suis très content de vous retrouver ce soir pour discuter ensemble"

	f.chats.EXPECT().GetChat(chat.ChatID("c")).Return(groupChat("c", "alice", "bob"), nil)
	f.messages.EXPECT().StoreMessage(gomock.Any()).DoAndReturn(func(m chat.Message) error {
		req.Equal("fr", m.Language)
		return nil
	})
	f.chats.EXPECT().SetLastMessage(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	f.index.EXPECT().Index(gomock.Any()).Return(nil)

	resolved, err := svc.SendMessage(context.Background(), "alice", chat.SendMessageCommand{ChatID: "c", Text: text})

	req.NoError(err)
	req.Equal("fr", resolved.Language)
	view := bobEvents.Of(event.MessageReceive)[0].Payload.(event.MessageView)
	req.Equal("fr", view.Language)
}

func TestMessageService_MarkRead_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc := newMessageService(f, nil)
	_, aliceEvents := f.online("alice", "c")
	_, bobEvents := f.online("bob", "c")
	f.chats.EXPECT().GetChat(chat.ChatID("c")).Return(groupChat("c", "alice", "bob"), nil).Times(2)

	// Given two unread messages for bob
	gomock.InOrder(
		f.messages.EXPECT().MarkRead(chat.ChatID("c"), "bob").Return(2, nil),
		f.messages.EXPECT().MarkRead(chat.ChatID("c"), "bob").Return(0, nil),
	)

	// When bob reads twice
	changed, err := svc.MarkRead(ctx, "bob", "c")
	req.NoError(err)
	req.Equal(2, changed)
	changed, err = svc.MarkRead(ctx, "bob", "c")
	req.NoError(err)
	req.Zero(changed)

	// Then alice gets a receipt for each call, bob never
	read := aliceEvents.Of(event.MessagesRead)
	req.Len(read, 2)
	req.Equal(event.MessagesReadPayload{ChatID: "c", UserID: "bob"}, read[0].Payload)
	req.Equal(read[0].Payload, read[1].Payload)
	req.Empty(bobEvents.Events())
}

func TestMessageService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("should refuse when requester is not the sender", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		svc := newMessageService(f, nil)
		f.messages.EXPECT().GetMessage("m-1").Return(chat.Message{ID: "m-1", ChatID: "c", SenderID: "alice", Text: "hi"}, nil)
		f.messages.EXPECT().UpdateMessage(gomock.Any()).Times(0)

		req.ErrorIs(svc.DeleteMessage(ctx, "bob", "m-1"), errors.ErrForbidden)
	})

	t.Run("should soft delete and notify the room", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		svc := newMessageService(f, nil)
		_, bobEvents := f.online("bob", "c")
		original := chat.Message{
			ID: "m-1", ChatID: "c", SenderID: "alice", Text: "oops",
			File: &chat.FileRef{URL: "/uploads/x.png"}, Type: chat.ImageMessage,
		}
		f.messages.EXPECT().GetMessage("m-1").Return(original, nil)
		f.messages.EXPECT().UpdateMessage(gomock.Any()).DoAndReturn(func(m chat.Message) error {
			req.True(m.IsDeleted)
			req.Empty(m.Text)
			req.Nil(m.File)
			req.Equal(original.ChatID, m.ChatID)
			return nil
		})
		f.index.EXPECT().Remove("m-1").Return(nil)

		req.NoError(svc.DeleteMessage(ctx, "alice", "m-1"))

		deleted := bobEvents.Of(event.MessageDeleted)
		req.Len(deleted, 1)
		req.Equal(event.MessageDeletedPayload{MessageID: "m-1", ChatID: "c"}, deleted[0].Payload)
	})

	t.Run("should be a no-op on an already deleted message", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		svc := newMessageService(f, nil)
		_, bobEvents := f.online("bob", "c")
		f.messages.EXPECT().GetMessage("m-1").Return(chat.Message{ID: "m-1", ChatID: "c", SenderID: "alice", IsDeleted: true}, nil)
		f.messages.EXPECT().UpdateMessage(gomock.Any()).Times(0)

		req.NoError(svc.DeleteMessage(ctx, "alice", "m-1"))
		req.Empty(bobEvents.Events())
	})

	t.Run("should report unknown messages", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		svc := newMessageService(f, nil)
		f.messages.EXPECT().GetMessage("missing").Return(chat.Message{}, errors.ErrNotFound)

		req.ErrorIs(svc.DeleteMessage(ctx, "alice", "missing"), errors.ErrNotFound)
	})
}

func TestMessageService_Typing_Is_Relayed_To_Others(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.withProfiles()
	svc := newMessageService(f, nil)
	aliceConn, aliceEvents := f.online("alice", "c")
	_, bobEvents := f.online("bob", "c")
	strangerConn, _ := f.online("stranger")

	req.NoError(svc.Typing(ctx, aliceConn.ID, "alice", "c", true))
	req.NoError(svc.Typing(ctx, aliceConn.ID, "alice", "c", false))

	req.Equal([]event.OutboundKind{event.UserTyping, event.UserStopTyping}, bobEvents.Kinds())
	req.Equal(event.TypingPayload{ChatID: "c", User: userProfile("alice")}, bobEvents.Events()[0].Payload)
	req.Empty(aliceEvents.Events())

	// A connection outside the room cannot type there
	req.ErrorIs(svc.Typing(ctx, strangerConn.ID, "stranger", "c", true), errors.ErrForbidden)
}

func TestMessageService_Search_Skips_Deleted(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.withProfiles()
	svc := newMessageService(f, nil)
	f.chats.EXPECT().GetChat(chat.ChatID("c")).Return(groupChat("c", "alice"), nil)
	f.index.EXPECT().Search(ctx, chat.ChatID("c"), "weather", 20).Return([]string{"m-1", "m-2", "m-3"}, nil)
	f.messages.EXPECT().GetMessage("m-1").Return(chat.Message{ID: "m-1", ChatID: "c", SenderID: "alice", Text: "nice weather"}, nil)
	f.messages.EXPECT().GetMessage("m-2").Return(chat.Message{ID: "m-2", ChatID: "c", IsDeleted: true}, nil)
	f.messages.EXPECT().GetMessage("m-3").Return(chat.Message{}, errors.ErrNotFound)

	found, err := svc.Search(ctx, "alice", chat.SearchMessagesCommand{ChatID: "c", Query: "weather"})

	req.NoError(err)
	req.Len(found, 1)
	req.Equal("m-1", found[0].ID)

	_, err = svc.Search(ctx, "alice", chat.SearchMessagesCommand{ChatID: "c", Query: " "})
	req.ErrorIs(err, errors.ErrValidation)
}

func TestMessageService_History_Requires_Membership(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.withProfiles()
	svc := newMessageService(f, nil)
	cursor := "cursor-1"
	next := "cursor-2"
	f.chats.EXPECT().GetChat(chat.ChatID("c")).Return(groupChat("c", "alice"), nil).Times(2)
	f.messages.EXPECT().GetMessages(chat.ChatID("c"), &cursor, 10).Return([]chat.Message{{ID: "m-1", ChatID: "c", SenderID: "alice"}}, &next, nil)

	page, nextCursor, err := svc.History(context.Background(), "alice", chat.GetMessagesCommand{ChatID: "c", Cursor: &cursor, Limit: 10})
	req.NoError(err)
	req.Len(page, 1)
	req.Equal(&next, nextCursor)

	_, _, err = svc.History(context.Background(), "bob", chat.GetMessagesCommand{ChatID: "c"})
	req.ErrorIs(err, errors.ErrForbidden)
}

package services

import (
	"chat-hub/contract"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"chat-hub/moderation"
	"chat-hub/observability"
	"chat-hub/runtime"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageService interface {
	SendMessage(ctx context.Context, senderID string, cmd chat.SendMessageCommand) (chat.ResolvedMessage, error)
	MarkRead(ctx context.Context, userID string, chatID chat.ChatID) (int, error)
	DeleteMessage(ctx context.Context, requesterID, messageID string) error
	Typing(ctx context.Context, connID, userID string, chatID chat.ChatID, typing bool) error
	History(ctx context.Context, userID string, cmd chat.GetMessagesCommand) ([]chat.ResolvedMessage, *string, error)
	Search(ctx context.Context, userID string, cmd chat.SearchMessagesCommand) ([]chat.ResolvedMessage, error)
}

// MessageService routes chat traffic: it authorizes against the stored chat,
// persists, then fans out to the room resolved at emission time.
type MessageService struct {
	log              *slog.Logger
	hub              *runtime.Hub
	chats            contract.IChatRepository
	messages         contract.IMessageRepository
	index            contract.IMessageIndex
	censor           contract.Censor
	profiles         profileResolver
	metrics          *observability.Metrics
	maxMessageLength int
}

// NewMessageService builds the router. A nil censor disables moderation.
func NewMessageService(
	log *slog.Logger,
	hub *runtime.Hub,
	users contract.IUserRepository,
	chats contract.IChatRepository,
	messages contract.IMessageRepository,
	index contract.IMessageIndex,
	censor contract.Censor,
	metrics *observability.Metrics,
	maxMessageLength int,
) *MessageService {
	return &MessageService{
		log:              log,
		hub:              hub,
		chats:            chats,
		messages:         messages,
		index:            index,
		censor:           censor,
		profiles:         profileResolver{users: users, log: log},
		metrics:          metrics,
		maxMessageLength: maxMessageLength,
	}
}

func (s *MessageService) SendMessage(ctx context.Context, senderID string, cmd chat.SendMessageCommand) (chat.ResolvedMessage, error) {
	if err := s.validate(&cmd); err != nil {
		return chat.ResolvedMessage{}, err
	}
	c, err := s.authorize(senderID, cmd.ChatID)
	if err != nil {
		return chat.ResolvedMessage{}, err
	}

	var reply *chat.Message
	if cmd.ReplyToID != "" {
		target, err := s.messages.GetMessage(cmd.ReplyToID)
		if err != nil {
			return chat.ResolvedMessage{}, storageError(err)
		}
		if target.ChatID != c.ID {
			return chat.ResolvedMessage{}, fmt.Errorf("%w: reply target %s is not in chat %s", errors.ErrNotFound, cmd.ReplyToID, c.ID)
		}
		reply = &target
	}

	text := cmd.Text
	var language string
	if text != "" {
		language = moderation.DetectLanguage(text)
	}
	if s.censor != nil && text != "" {
		var words []string
		text, words = s.censor.Censor(text)
		if len(words) > 0 {
			s.log.Debug("Message censored", "chat_id", c.ID, "user_id", senderID, "words", len(words))
		}
	}

	now := time.Now().UTC()
	message := chat.Message{
		ID:        uuid.NewString(),
		ChatID:    c.ID,
		SenderID:  senderID,
		Text:      text,
		Type:      cmd.Type,
		File:      cmd.File,
		ReplyToID: cmd.ReplyToID,
		Language:  language,
		ReadBy:    []string{senderID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.messages.StoreMessage(message); err != nil {
		return chat.ResolvedMessage{}, fmt.Errorf("%w: store message: %v", errors.ErrInternal, err)
	}
	if err := s.chats.SetLastMessage(c.ID, message.ID, now); err != nil {
		s.log.Error("Unable to update last message", "chat_id", c.ID, "message_id", message.ID, "error", err)
	}
	if err := s.index.Index(message); err != nil {
		s.log.Warn("Unable to index message", "message_id", message.ID, "error", err)
	}

	resolved := s.resolve(message, reply)
	room := chat.RoomFor(c.ID)
	delivered := s.hub.SendToRoom(ctx, room, event.New(event.MessageReceive, event.NewMessageView(resolved)), "")
	s.metrics.MessageSent()
	s.log.Debug("Message delivered", "chat_id", c.ID, "message_id", message.ID, "connections", delivered)

	// Sending a message ends the typing indicator of its author
	except, _ := s.hub.Presence.Lookup(senderID)
	s.hub.SendToRoom(ctx, room, event.New(event.UserStopTyping, event.TypingPayload{
		ChatID: c.ID.String(),
		User:   resolved.Sender,
	}), except)

	return resolved, nil
}

// MarkRead marks every message of the chat as read by userID and sends a
// read receipt to the other members, even when nothing changed.
func (s *MessageService) MarkRead(ctx context.Context, userID string, chatID chat.ChatID) (int, error) {
	if chatID == "" {
		return 0, fmt.Errorf("%w: chat id is required", errors.ErrValidation)
	}
	if _, err := s.authorize(userID, chatID); err != nil {
		return 0, err
	}
	changed, err := s.messages.MarkRead(chatID, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: mark read: %v", errors.ErrInternal, err)
	}
	except, _ := s.hub.Presence.Lookup(userID)
	s.hub.SendToRoom(ctx, chat.RoomFor(chatID), event.New(event.MessagesRead, event.MessagesReadPayload{
		ChatID: chatID.String(),
		UserID: userID,
	}), except)
	return changed, nil
}

// DeleteMessage soft deletes a message of the requester. The record is kept
// with its content cleared.
func (s *MessageService) DeleteMessage(ctx context.Context, requesterID, messageID string) error {
	if messageID == "" {
		return fmt.Errorf("%w: message id is required", errors.ErrValidation)
	}
	message, err := s.messages.GetMessage(messageID)
	if err != nil {
		return storageError(err)
	}
	if message.SenderID != requesterID {
		return fmt.Errorf("%w: only the sender can delete message %s", errors.ErrForbidden, messageID)
	}
	if message.IsDeleted {
		return nil
	}

	message.Text = ""
	message.Language = ""
	message.File = nil
	message.IsDeleted = true
	message.UpdatedAt = time.Now().UTC()
	if err := s.messages.UpdateMessage(message); err != nil {
		return fmt.Errorf("%w: delete message: %v", errors.ErrInternal, err)
	}
	if err := s.index.Remove(messageID); err != nil {
		s.log.Warn("Unable to remove message from index", "message_id", messageID, "error", err)
	}

	s.hub.SendToRoom(ctx, chat.RoomFor(message.ChatID), event.New(event.MessageDeleted, event.MessageDeletedPayload{
		MessageID: messageID,
		ChatID:    message.ChatID.String(),
	}), "")
	return nil
}

// Typing relays a typing indicator to the other connections of the room.
// Nothing is stored.
func (s *MessageService) Typing(ctx context.Context, connID, userID string, chatID chat.ChatID, typing bool) error {
	if chatID == "" {
		return fmt.Errorf("%w: chat id is required", errors.ErrValidation)
	}
	room := chat.RoomFor(chatID)
	if !s.hub.Rooms.IsMember(connID, room) {
		return fmt.Errorf("%w: not subscribed to chat %s", errors.ErrForbidden, chatID)
	}
	kind := event.UserStopTyping
	if typing {
		kind = event.UserTyping
	}
	s.hub.SendToRoom(ctx, room, event.New(kind, event.TypingPayload{
		ChatID: chatID.String(),
		User:   s.profiles.resolve(userID),
	}), connID)
	return nil
}

// History returns one page of resolved messages, newest first.
func (s *MessageService) History(_ context.Context, userID string, cmd chat.GetMessagesCommand) ([]chat.ResolvedMessage, *string, error) {
	if _, err := s.authorize(userID, cmd.ChatID); err != nil {
		return nil, nil, err
	}
	messages, cursor, err := s.messages.GetMessages(cmd.ChatID, cmd.Cursor, cmd.Limit)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: get messages: %v", errors.ErrInternal, err)
	}
	return s.resolveAll(messages), cursor, nil
}

// Search looks the query up in the chat's index. Deleted messages and index
// entries without a record are skipped.
func (s *MessageService) Search(ctx context.Context, userID string, cmd chat.SearchMessagesCommand) ([]chat.ResolvedMessage, error) {
	if strings.TrimSpace(cmd.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", errors.ErrValidation)
	}
	if _, err := s.authorize(userID, cmd.ChatID); err != nil {
		return nil, err
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = 20
	}
	ids, err := s.index.Search(ctx, cmd.ChatID, cmd.Query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", errors.ErrInternal, err)
	}
	messages := make([]chat.Message, 0, len(ids))
	for _, id := range ids {
		m, err := s.messages.GetMessage(id)
		if err != nil {
			s.log.Debug("Indexed message not found", "message_id", id, "error", err)
			continue
		}
		if m.IsDeleted || m.ChatID != cmd.ChatID {
			continue
		}
		messages = append(messages, m)
	}
	return s.resolveAll(messages), nil
}

func (s *MessageService) validate(cmd *chat.SendMessageCommand) error {
	if cmd.ChatID == "" {
		return fmt.Errorf("%w: chat id is required", errors.ErrValidation)
	}
	if cmd.File != nil && cmd.File.URL == "" {
		cmd.File = nil
	}
	if strings.TrimSpace(cmd.Text) == "" && cmd.File == nil {
		return fmt.Errorf("%w: text or file is required", errors.ErrValidation)
	}
	if cmd.Type == "" {
		cmd.Type = chat.TextMessage
	}
	if !cmd.Type.Valid() {
		return fmt.Errorf("%w: unknown message type %q", errors.ErrValidation, cmd.Type)
	}
	if s.maxMessageLength > 0 && utf8.RuneCountInString(cmd.Text) > s.maxMessageLength {
		return fmt.Errorf("%w: text exceeds %d characters", errors.ErrValidation, s.maxMessageLength)
	}
	return nil
}

// authorize loads the chat and checks membership on the stored record,
// never on room subscriptions.
func (s *MessageService) authorize(userID string, chatID chat.ChatID) (chat.Chat, error) {
	c, err := s.chats.GetChat(chatID)
	if err != nil {
		return chat.Chat{}, storageError(err)
	}
	if !c.HasMember(userID) {
		return chat.Chat{}, fmt.Errorf("%w: not a participant of chat %s", errors.ErrForbidden, chatID)
	}
	return c, nil
}

func (s *MessageService) resolve(m chat.Message, reply *chat.Message) chat.ResolvedMessage {
	resolved := chat.ResolvedMessage{Message: m, Sender: s.profiles.resolve(m.SenderID)}
	if reply != nil {
		resolved.ReplyTo = &chat.ResolvedReply{Message: *reply, Sender: s.profiles.resolve(reply.SenderID)}
	}
	return resolved
}

func (s *MessageService) resolveAll(messages []chat.Message) []chat.ResolvedMessage {
	return lo.Map(messages, func(m chat.Message, _ int) chat.ResolvedMessage {
		var reply *chat.Message
		if m.ReplyToID != "" {
			if target, err := s.messages.GetMessage(m.ReplyToID); err == nil {
				reply = &target
			}
		}
		return s.resolve(m, reply)
	})
}

// storageError keeps not found errors as they are and hides anything else
// behind ErrInternal.
func storageError(err error) error {
	if errors.Is(err, errors.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", errors.ErrInternal, err)
}

package services

import (
	"chat-hub/contract"
	"chat-hub/domain/chat"
	"chat-hub/errors"
	"chat-hub/runtime"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

type IChatService interface {
	CreateChat(ctx context.Context, creatorID string, cmd chat.CreateChatCommand) (chat.Chat, error)
	ListChats(userID string) ([]chat.Chat, error)
	GetChat(userID string, chatID chat.ChatID) (chat.Chat, error)
	RenameChat(actorID string, chatID chat.ChatID, name string) (chat.Chat, error)
	AddMember(ctx context.Context, actorID string, chatID chat.ChatID, userID string) (chat.Chat, error)
	RemoveMember(ctx context.Context, actorID string, chatID chat.ChatID, userID string) (chat.Chat, bool, error)
	DeleteChat(ctx context.Context, actorID string, chatID chat.ChatID) error
}

type ChatService struct {
	log      *slog.Logger
	hub      *runtime.Hub
	chats    contract.IChatRepository
	users    contract.IUserRepository
	messages contract.IMessageRepository
	index    contract.IMessageIndex
}

func NewChatService(
	log *slog.Logger,
	hub *runtime.Hub,
	chats contract.IChatRepository,
	users contract.IUserRepository,
	messages contract.IMessageRepository,
	index contract.IMessageIndex,
) *ChatService {
	return &ChatService{log: log, hub: hub, chats: chats, users: users, messages: messages, index: index}
}

// CreateChat stores a new conversation. The creator is always a member and
// an admin. A private chat between the same two users is only created once.
func (s *ChatService) CreateChat(ctx context.Context, creatorID string, cmd chat.CreateChatCommand) (chat.Chat, error) {
	if cmd.Type == "" {
		cmd.Type = chat.Group
	}
	if !cmd.Type.Valid() {
		return chat.Chat{}, fmt.Errorf("%w: unknown chat type %q", errors.ErrValidation, cmd.Type)
	}
	members := lo.Uniq(append([]string{creatorID}, lo.Compact(cmd.MemberIDs)...))
	if cmd.Type == chat.Private && len(members) != 2 {
		return chat.Chat{}, fmt.Errorf("%w: a private chat has exactly two members", errors.ErrValidation)
	}
	if cmd.Type != chat.Private && strings.TrimSpace(cmd.Name) == "" {
		return chat.Chat{}, fmt.Errorf("%w: name is required", errors.ErrValidation)
	}
	for _, member := range members {
		if _, err := s.users.GetUserByID(member); err != nil {
			return chat.Chat{}, storageError(err)
		}
	}

	if cmd.Type == chat.Private {
		existing, err := s.chats.ListChatsForUser(creatorID)
		if err != nil {
			return chat.Chat{}, storageError(err)
		}
		for _, c := range existing {
			if c.Type == chat.Private && sameMembers(c.Members, members) {
				return c, nil
			}
		}
	}

	now := time.Now().UTC()
	created, err := s.chats.CreateChat(chat.Chat{
		Name:      strings.TrimSpace(cmd.Name),
		Type:      cmd.Type,
		Members:   members,
		Admins:    []string{creatorID},
		CreatedBy: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return chat.Chat{}, fmt.Errorf("%w: create chat: %v", errors.ErrInternal, err)
	}

	joined := 0
	for _, member := range members {
		if s.hub.JoinUser(ctx, member, created.ID) {
			joined++
		}
	}
	s.log.Info("Chat created", "chat_id", created.ID, "user_id", creatorID, "members", len(members), "online", joined)
	return created, nil
}

func (s *ChatService) ListChats(userID string) ([]chat.Chat, error) {
	chats, err := s.chats.ListChatsForUser(userID)
	if err != nil {
		return nil, storageError(err)
	}
	return chats, nil
}

// GetChat returns the chat when userID is one of its members.
func (s *ChatService) GetChat(userID string, chatID chat.ChatID) (chat.Chat, error) {
	c, err := s.chats.GetChat(chatID)
	if err != nil {
		return chat.Chat{}, storageError(err)
	}
	if !c.HasMember(userID) {
		return chat.Chat{}, fmt.Errorf("%w: not a member of chat %s", errors.ErrForbidden, chatID)
	}
	return c, nil
}

// RenameChat changes the display name. Only admins may rename a group,
// any member may rename the other kinds.
func (s *ChatService) RenameChat(actorID string, chatID chat.ChatID, name string) (chat.Chat, error) {
	c, err := s.GetChat(actorID, chatID)
	if err != nil {
		return chat.Chat{}, err
	}
	if c.Type == chat.Group && !c.IsAdmin(actorID) {
		return chat.Chat{}, fmt.Errorf("%w: only an admin can rename chat %s", errors.ErrForbidden, chatID)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return chat.Chat{}, fmt.Errorf("%w: name is required", errors.ErrValidation)
	}
	c.Name = name
	c.UpdatedAt = time.Now().UTC()
	if err := s.chats.UpdateChat(c); err != nil {
		return chat.Chat{}, storageError(err)
	}
	return c, nil
}

// AddMember appends userID to a group or global chat and subscribes its live
// connection to the chat room.
func (s *ChatService) AddMember(ctx context.Context, actorID string, chatID chat.ChatID, userID string) (chat.Chat, error) {
	c, err := s.chats.GetChat(chatID)
	if err != nil {
		return chat.Chat{}, storageError(err)
	}
	if c.Type == chat.Private {
		return chat.Chat{}, fmt.Errorf("%w: a private chat has exactly two members", errors.ErrValidation)
	}
	if !c.IsAdmin(actorID) {
		return chat.Chat{}, fmt.Errorf("%w: only an admin can add members to chat %s", errors.ErrForbidden, chatID)
	}
	if _, err := s.users.GetUserByID(userID); err != nil {
		return chat.Chat{}, storageError(err)
	}
	if c.HasMember(userID) {
		return chat.Chat{}, fmt.Errorf("%w: user %s is already a member", errors.ErrValidation, userID)
	}

	c.Members = append(c.Members, userID)
	c.UpdatedAt = time.Now().UTC()
	if err := s.chats.UpdateChat(c); err != nil {
		return chat.Chat{}, storageError(err)
	}
	online := s.hub.JoinUser(ctx, userID, chatID)
	s.log.Info("Member added", "chat_id", chatID, "user_id", userID, "by", actorID, "online", online)
	return c, nil
}

// RemoveMember takes userID out of the chat and unsubscribes its live
// connection. In a group only an admin may remove someone else. The chat is
// deleted with its history once nobody is left, which is reported by the
// returned bool.
func (s *ChatService) RemoveMember(ctx context.Context, actorID string, chatID chat.ChatID, userID string) (chat.Chat, bool, error) {
	c, err := s.chats.GetChat(chatID)
	if err != nil {
		return chat.Chat{}, false, storageError(err)
	}
	self := actorID == userID
	switch {
	case c.Type == chat.Group && !c.IsAdmin(actorID) && !self:
		return chat.Chat{}, false, fmt.Errorf("%w: only an admin can remove members of chat %s", errors.ErrForbidden, chatID)
	case !c.HasMember(actorID) && !c.IsAdmin(actorID):
		return chat.Chat{}, false, fmt.Errorf("%w: not a member of chat %s", errors.ErrForbidden, chatID)
	case !c.HasMember(userID):
		return chat.Chat{}, false, fmt.Errorf("%w: user %s is not a member", errors.ErrValidation, userID)
	}

	c.Members = lo.Without(c.Members, userID)
	c.Admins = lo.Without(c.Admins, userID)
	c.UpdatedAt = time.Now().UTC()
	if len(c.Members) == 0 {
		if err := s.purge(c); err != nil {
			return chat.Chat{}, false, err
		}
	} else if err := s.chats.UpdateChat(c); err != nil {
		return chat.Chat{}, false, storageError(err)
	}
	s.hub.LeaveUser(ctx, userID, chatID)
	s.log.Info("Member removed", "chat_id", chatID, "user_id", userID, "by", actorID, "deleted", len(c.Members) == 0)
	return c, len(c.Members) == 0, nil
}

// DeleteChat removes the chat and its history. A group can only be deleted
// by an admin or its creator, other chats by any member.
func (s *ChatService) DeleteChat(ctx context.Context, actorID string, chatID chat.ChatID) error {
	c, err := s.chats.GetChat(chatID)
	if err != nil {
		return storageError(err)
	}
	switch {
	case c.Type == chat.Group && !c.IsAdmin(actorID) && c.CreatedBy != actorID:
		return fmt.Errorf("%w: only an admin can delete chat %s", errors.ErrForbidden, chatID)
	case c.Type != chat.Group && !c.HasMember(actorID):
		return fmt.Errorf("%w: not a member of chat %s", errors.ErrForbidden, chatID)
	}
	if err := s.purge(c); err != nil {
		return err
	}
	for _, member := range c.Members {
		s.hub.LeaveUser(ctx, member, chatID)
	}
	s.log.Info("Chat deleted", "chat_id", chatID, "user_id", actorID)
	return nil
}

// purge drops the history, its search entries and the chat record.
func (s *ChatService) purge(c chat.Chat) error {
	ids, err := s.messages.DeleteChatMessages(c.ID)
	if err != nil {
		return storageError(err)
	}
	for _, id := range ids {
		if err := s.index.Remove(id); err != nil {
			s.log.Warn("Unable to remove message from index", "message_id", id, "error", err)
		}
	}
	if err := s.chats.DeleteChat(c.ID); err != nil {
		return storageError(err)
	}
	return nil
}

func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

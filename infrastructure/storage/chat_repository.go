package storage

import (
	"chat-hub/domain/chat"
	"chat-hub/errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type ChatRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewChatRepository(db *badger.DB, log *slog.Logger) *ChatRepository {
	return &ChatRepository{db: db, log: log}
}

func chatKey(id chat.ChatID) []byte {
	return []byte("chat:" + string(id))
}

// memberKey indexes chats by participant: "chat-member:{user_id}:{chat_id}".
func memberKey(userID string, id chat.ChatID) []byte {
	return []byte(fmt.Sprintf("chat-member:%s:%s", userID, id))
}

func (r ChatRepository) CreateChat(c chat.Chat) (chat.Chat, error) {
	if c.ID == "" {
		c.ID = chat.ChatID(uuid.NewString())
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	data, err := encodeRecord(fromChat(c))
	if err != nil {
		return chat.Chat{}, err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(chatKey(c.ID), data); err != nil {
			return err
		}
		for _, member := range c.Members {
			if err := txn.Set(memberKey(member, c.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return chat.Chat{}, err
	}
	return c, nil
}

func (r ChatRepository) GetChat(id chat.ChatID) (chat.Chat, error) {
	var c chat.Chat
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		c, err = getChat(txn, id)
		return err
	})
	return c, err
}

// ListChatsForUser walks the member index of userID and returns the chats,
// most recently updated first.
func (r ChatRepository) ListChatsForUser(userID string) ([]chat.Chat, error) {
	chats := make([]chat.Chat, 0)
	prefix := []byte(fmt.Sprintf("chat-member:%s:", userID))
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		var ids []chat.ChatID
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, chat.ChatID(it.Item().Key()[len(prefix):]))
		}
		it.Close()

		for _, id := range ids {
			c, err := getChat(txn, id)
			if errors.Is(err, errors.ErrNotFound) {
				r.log.Warn("Dangling chat membership", "user_id", userID, "chat_id", id)
				continue
			}
			if err != nil {
				return err
			}
			chats = append(chats, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats, nil
}

// SetLastMessage moves the last message pointer of the chat and bumps its update time.
func (r ChatRepository) SetLastMessage(id chat.ChatID, messageID string, at time.Time) error {
	return r.db.Update(func(txn *badger.Txn) error {
		c, err := getChat(txn, id)
		if err != nil {
			return err
		}
		c.LastMessageID = messageID
		c.UpdatedAt = at
		data, err := encodeRecord(fromChat(c))
		if err != nil {
			return err
		}
		return txn.Set(chatKey(id), data)
	})
}

// UpdateChat overwrites the chat record and keeps the member index in step
// with the new member list.
func (r ChatRepository) UpdateChat(c chat.Chat) error {
	data, err := encodeRecord(fromChat(c))
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		previous, err := getChat(txn, c.ID)
		if err != nil {
			return err
		}
		removed, added := lo.Difference(previous.Members, c.Members)
		for _, member := range removed {
			if err := txn.Delete(memberKey(member, c.ID)); err != nil {
				return err
			}
		}
		for _, member := range added {
			if err := txn.Set(memberKey(member, c.ID), nil); err != nil {
				return err
			}
		}
		return txn.Set(chatKey(c.ID), data)
	})
}

// DeleteChat removes the chat record and its member index. Messages are
// left to the message repository.
func (r ChatRepository) DeleteChat(id chat.ChatID) error {
	return r.db.Update(func(txn *badger.Txn) error {
		c, err := getChat(txn, id)
		if err != nil {
			return err
		}
		for _, member := range c.Members {
			if err := txn.Delete(memberKey(member, id)); err != nil {
				return err
			}
		}
		return txn.Delete(chatKey(id))
	})
}

func getChat(txn *badger.Txn, id chat.ChatID) (chat.Chat, error) {
	item, err := txn.Get(chatKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return chat.Chat{}, fmt.Errorf("%w: chat %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return chat.Chat{}, err
	}
	var c chat.Chat
	err = item.Value(func(val []byte) error {
		rec, err := decodeRecord(val)
		if err != nil {
			return err
		}
		c = toChat(rec)
		return nil
	})
	return c, err
}

func fromChat(c chat.Chat) map[string]any {
	return map[string]any{
		"id":              string(c.ID),
		"name":            c.Name,
		"type":            string(c.Type),
		"members":         toList(c.Members),
		"admins":          toList(c.Admins),
		"last_message_id": c.LastMessageID,
		"created_by":      c.CreatedBy,
		"created_at":      formatTime(c.CreatedAt),
		"updated_at":      formatTime(c.UpdatedAt),
	}
}

func toChat(r record) chat.Chat {
	return chat.Chat{
		ID:            chat.ChatID(r.str("id")),
		Name:          r.str("name"),
		Type:          chat.Type(r.str("type")),
		Members:       r.strings("members"),
		Admins:        r.strings("admins"),
		LastMessageID: r.str("last_message_id"),
		CreatedBy:     r.str("created_by"),
		CreatedAt:     r.time("created_at"),
		UpdatedAt:     r.time("updated_at"),
	}
}

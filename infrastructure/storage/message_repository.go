package storage

import (
	"bytes"
	"chat-hub/domain/chat"
	"chat-hub/errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages int) *MessageRepository {
	return &MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

func messagePrefix(chatID chat.ChatID) string {
	return fmt.Sprintf("msg:%s:", chatID)
}

// messageKey is formatted as "msg:{chat_id}:{timestamp_padded}:{id}":
//  1. the 19-digit zero padding keeps lexicographical order chronological.
//  2. the id disambiguates two messages stored at the same nanosecond.
func messageKey(m chat.Message) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", messagePrefix(m.ChatID), m.CreatedAt.UnixNano(), m.ID))
}

// messageIDKey points from a message id to its primary key.
func messageIDKey(id string) []byte {
	return []byte("msgid:" + id)
}

func (m MessageRepository) StoreMessage(message chat.Message) error {
	data, err := encodeRecord(fromMessage(message))
	if err != nil {
		return err
	}
	key := messageKey(message)
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(messageIDKey(message.ID), key)
	})
}

func (m MessageRepository) GetMessage(id string) (chat.Message, error) {
	var message chat.Message
	err := m.db.View(func(txn *badger.Txn) error {
		_, msg, err := getMessage(txn, id)
		message = msg
		return err
	})
	return message, err
}

// UpdateMessage overwrites an existing message in place. The primary key
// never changes since it only depends on the chat, the creation time and the id.
func (m MessageRepository) UpdateMessage(message chat.Message) error {
	data, err := encodeRecord(fromMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		key, _, err := getMessage(txn, message.ID)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

// GetMessages returns one page of the chat history, newest first.
// The returned cursor is nil once the history is exhausted; otherwise it is
// passed back as is to fetch the next (older) page.
func (m MessageRepository) GetMessages(chatID chat.ChatID, cursor *string, limit int) ([]chat.Message, *string, error) {
	if limit <= 0 || (m.limitMessages > 0 && limit > m.limitMessages) {
		limit = m.limitMessages
	}
	messages := make([]chat.Message, 0)
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := messagePrefix(chatID)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Start past the newest possible key then walk backwards
			seekKey = []byte(prefixStr + "9999999999999999999")
		default:
			seekKey = []byte(prefixStr + *cursor)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[prefixLen:]) == *cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", limit))
				break
			}
			item := it.Item()
			// Memorize cursor part of the actual key
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				rec, err := decodeRecord(value)
				if err != nil {
					return err
				}
				messages = append(messages, toMessage(rec))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if limit <= 0 || len(messages) < limit {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

// MarkRead adds userID to the readers of every message of the chat that
// doesn't have it yet and returns how many records changed.
func (m MessageRepository) MarkRead(chatID chat.ChatID, userID string) (int, error) {
	changed := 0
	err := m.db.Update(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix(chatID))
		type pending struct {
			key  []byte
			data []byte
		}
		var updates []pending

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(value []byte) error {
				rec, err := decodeRecord(value)
				if err != nil {
					return err
				}
				message := toMessage(rec)
				if message.IsReadBy(userID) {
					return nil
				}
				message.ReadBy = append(message.ReadBy, userID)
				data, err := encodeRecord(fromMessage(message))
				if err != nil {
					return err
				}
				updates = append(updates, pending{key: item.KeyCopy(nil), data: data})
				return nil
			})
			if err != nil {
				it.Close()
				return err
			}
		}
		it.Close()

		for _, u := range updates {
			if err := txn.Set(u.key, u.data); err != nil {
				return err
			}
		}
		changed = len(updates)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// DeleteChatMessages removes every message of the chat with its id lookup
// and returns the ids that were removed.
func (m MessageRepository) DeleteChatMessages(chatID chat.ChatID) ([]string, error) {
	prefix := []byte(messagePrefix(chatID))
	var keys [][]byte
	ids := make([]string, 0)
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			keys = append(keys, key)
			ids = append(ids, string(key[bytes.LastIndexByte(key, ':')+1:]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// A long history does not fit in a single transaction.
	batch := m.db.NewWriteBatch()
	defer batch.Cancel()
	for i, key := range keys {
		if err := batch.Delete(key); err != nil {
			return nil, err
		}
		if err := batch.Delete(messageIDKey(ids[i])); err != nil {
			return nil, err
		}
	}
	if err := batch.Flush(); err != nil {
		return nil, err
	}
	m.log.Debug("Chat history deleted", "chat_id", chatID, "messages", len(ids))
	return ids, nil
}

func getMessage(txn *badger.Txn, id string) ([]byte, chat.Message, error) {
	item, err := txn.Get(messageIDKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, chat.Message{}, fmt.Errorf("%w: message %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return nil, chat.Message{}, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return nil, chat.Message{}, err
	}
	item, err = txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, chat.Message{}, fmt.Errorf("%w: message %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return nil, chat.Message{}, err
	}
	var message chat.Message
	err = item.Value(func(value []byte) error {
		rec, err := decodeRecord(value)
		if err != nil {
			return err
		}
		message = toMessage(rec)
		return nil
	})
	return key, message, err
}

func fromMessage(m chat.Message) map[string]any {
	fields := map[string]any{
		"id":          m.ID,
		"chat_id":     string(m.ChatID),
		"sender_id":   m.SenderID,
		"text":        m.Text,
		"type":        string(m.Type),
		"reply_to_id": m.ReplyToID,
		"language":    m.Language,
		"read_by":     toList(m.ReadBy),
		"is_deleted":  m.IsDeleted,
		"created_at":  formatTime(m.CreatedAt),
		"updated_at":  formatTime(m.UpdatedAt),
	}
	if m.File != nil {
		fields["file_url"] = m.File.URL
		fields["file_name"] = m.File.Name
		fields["file_size"] = m.File.Size
		fields["file_mime_type"] = m.File.MimeType
	}
	return fields
}

func toMessage(r record) chat.Message {
	m := chat.Message{
		ID:        r.str("id"),
		ChatID:    chat.ChatID(r.str("chat_id")),
		SenderID:  r.str("sender_id"),
		Text:      r.str("text"),
		Type:      chat.MessageType(r.str("type")),
		ReplyToID: r.str("reply_to_id"),
		Language:  r.str("language"),
		ReadBy:    r.strings("read_by"),
		IsDeleted: r.boolean("is_deleted"),
		CreatedAt: r.time("created_at"),
		UpdatedAt: r.time("updated_at"),
	}
	if url := r.str("file_url"); url != "" {
		m.File = &chat.FileRef{
			URL:      url,
			Name:     r.str("file_name"),
			Size:     r.int64("file_size"),
			MimeType: r.str("file_mime_type"),
		}
	}
	return m
}

package storage

import (
	"chat-hub/domain/chat"
	"context"
	"fmt"
	"log/slog"

	"github.com/blugelabs/bluge"
)

const (
	fieldText     = "text"
	fieldChatID   = "chat_id"
	fieldSenderID = "sender_id"
	fieldCreated  = "created_at"
)

// MessageIndex is the full-text index over message bodies, one document per message.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

// Index adds or replaces the document of m. Messages without text are skipped.
func (i *MessageIndex) Index(m chat.Message) error {
	if m.Text == "" || m.IsDeleted {
		return nil
	}
	doc := bluge.NewDocument(m.ID).
		AddField(bluge.NewTextField(fieldText, m.Text)).
		AddField(bluge.NewKeywordField(fieldChatID, string(m.ChatID))).
		AddField(bluge.NewKeywordField(fieldSenderID, m.SenderID)).
		AddField(bluge.NewDateTimeField(fieldCreated, m.CreatedAt).Sortable())
	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index message %s: %w", m.ID, err)
	}
	return nil
}

func (i *MessageIndex) Remove(messageID string) error {
	if err := i.writer.Delete(bluge.Identifier(messageID)); err != nil {
		return fmt.Errorf("remove message %s from index: %w", messageID, err)
	}
	return nil
}

// Search returns the ids of the best matching messages of one chat.
func (i *MessageIndex) Search(ctx context.Context, chatID chat.ChatID, query string, limit int) ([]string, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("Unable to close index reader", "error", err)
		}
	}()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query).SetField(fieldText)).
		AddMust(bluge.NewTermQuery(string(chatID)).SetField(fieldChatID))
	request := bluge.NewTopNSearch(limit, q)

	dmi, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, limit)
	match, err := dmi.Next()
	for err == nil && match != nil {
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				ids = append(ids, string(value))
				return false
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		match, err = dmi.Next()
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (i *MessageIndex) Close() error {
	return i.writer.Close()
}

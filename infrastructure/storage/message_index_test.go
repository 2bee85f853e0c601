package storage

import (
	"chat-hub/domain/chat"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/stretchr/testify/require"
)

func openIndex(t *testing.T) *MessageIndex {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	require.NoError(t, err)
	index := NewMessageIndex(writer, slog.Default())
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func Test_Search_Is_Scoped_To_Chat(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := openIndex(t)
	at := time.Now().UTC()

	inChat := newMessage("chat-1", "alice", "the weather is lovely today", at)
	otherWords := newMessage("chat-1", "bob", "see you tomorrow", at)
	otherChat := newMessage("chat-2", "carol", "lovely weather indeed", at)
	for _, m := range []chat.Message{inChat, otherWords, otherChat} {
		req.NoError(index.Index(m))
	}

	// When searching chat-1 for weather
	ids, err := index.Search(ctx, "chat-1", "weather", 10)

	// Then only the matching message of chat-1 is returned
	req.NoError(err)
	req.Equal([]string{inChat.ID}, ids)
}

func Test_Removed_Message_Is_Not_Found(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := openIndex(t)
	m := newMessage("chat-1", "alice", "secret plans", time.Now().UTC())
	req.NoError(index.Index(m))

	req.NoError(index.Remove(m.ID))

	ids, err := index.Search(ctx, "chat-1", "plans", 10)
	req.NoError(err)
	req.Empty(ids)
}

func Test_Index_Skips_Messages_Without_Text(t *testing.T) {
	req := require.New(t)
	index := openIndex(t)
	m := newMessage("chat-1", "alice", "", time.Now().UTC())

	req.NoError(index.Index(m))

	ids, err := index.Search(context.Background(), "chat-1", "anything", 10)
	req.NoError(err)
	req.Empty(ids)
}

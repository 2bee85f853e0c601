package chat

import (
	"slices"
	"time"

	"chat-hub/domain/user"
)

type MessageType string

const (
	TextMessage      MessageType = "text"
	ImageMessage     MessageType = "image"
	VideoMessage     MessageType = "video"
	AudioMessage     MessageType = "audio"
	FileMessage      MessageType = "file"
	VoiceNoteMessage MessageType = "voice_note"
)

func (t MessageType) Valid() bool {
	switch t {
	case TextMessage, ImageMessage, VideoMessage, AudioMessage, FileMessage, VoiceNoteMessage:
		return true
	}
	return false
}

// FileRef points to an uploaded file attached to a message.
type FileRef struct {
	URL      string
	Name     string
	Size     int64
	MimeType string
}

// Message is the persisted record. ID, SenderID and CreatedAt are always
// stamped by the server.
type Message struct {
	ID        string
	ChatID    ChatID
	SenderID  string
	Text      string
	Type      MessageType
	File      *FileRef
	ReplyToID string
	// ISO 639-1 code detected on the text, empty when unsure
	Language  string
	ReadBy    []string
	IsDeleted bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (m Message) IsReadBy(userID string) bool {
	return slices.Contains(m.ReadBy, userID)
}

// ResolvedMessage is the canonical form sent to clients: sender profile and
// reply-to populated.
type ResolvedMessage struct {
	Message
	Sender  user.Profile
	ReplyTo *ResolvedReply
}

type ResolvedReply struct {
	Message
	Sender user.Profile
}

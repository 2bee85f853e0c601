// Package event defines the wire vocabulary exchanged with connected clients.
package event

import (
	"encoding/json"
	"strings"
)

// InboundKind is the closed set of events a client may send.
type InboundKind int

const (
	Unknown InboundKind = iota
	Auth
	ChatJoin
	ChatLeave
	MessageSend
	MessageRead
	MessageDelete
	Typing
	StopTyping
	CallInitiate
	CallAccept
	CallReject
	CallEnd
	CallSignal
)

var inboundNames = map[InboundKind]string{
	Auth:          "auth",
	ChatJoin:      "chat:join",
	ChatLeave:     "chat:leave",
	MessageSend:   "message:send",
	MessageRead:   "message:read",
	MessageDelete: "message:delete",
	Typing:        "user:typing",
	StopTyping:    "user:stop-typing",
	CallInitiate:  "call:initiate",
	CallAccept:    "call:accept",
	CallReject:    "call:reject",
	CallEnd:       "call:end",
	CallSignal:    "call:signal",
}

var inboundKinds = func() map[string]InboundKind {
	kinds := make(map[string]InboundKind, len(inboundNames))
	for kind, name := range inboundNames {
		kinds[name] = kind
	}
	return kinds
}()

// ParseInbound maps a wire name to its kind. Unrecognized names yield Unknown.
func ParseInbound(name string) InboundKind {
	return inboundKinds[name]
}

func (k InboundKind) String() string {
	if name, ok := inboundNames[k]; ok {
		return name
	}
	return "unknown"
}

func (k InboundKind) IsCall() bool {
	return strings.HasPrefix(k.String(), "call:")
}

// RequiresAuth is true for every kind except the authentication handshake itself.
func (k InboundKind) RequiresAuth() bool {
	return k != Auth
}

// Envelope is the JSON frame carried in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type AuthPayload struct {
	Token string `json:"token" validate:"required"`
}

type ChatRefPayload struct {
	ChatID string `json:"chatId" validate:"required"`
}

type SendMessagePayload struct {
	ChatID       string `json:"chatId" validate:"required"`
	Text         string `json:"text"`
	Type         string `json:"type" validate:"omitempty,oneof=text image video audio file voice_note"`
	FileURL      string `json:"fileUrl" validate:"omitempty,max=2048"`
	FileName     string `json:"fileName" validate:"omitempty,max=255"`
	FileSize     int64  `json:"fileSize" validate:"gte=0"`
	FileMimeType string `json:"fileMimeType"`
	ReplyTo      string `json:"replyTo"`
}

type MessageRefPayload struct {
	MessageID string `json:"messageId" validate:"required"`
}

type CallInitiatePayload struct {
	RecipientID string `json:"recipientId" validate:"required"`
	Type        string `json:"type" validate:"required,oneof=audio video"`
}

type CallAcceptPayload struct {
	CallID string          `json:"callId" validate:"required"`
	Signal json.RawMessage `json:"signal,omitempty"`
}

type CallRejectPayload struct {
	CallID string `json:"callId" validate:"required"`
	Reason string `json:"reason" validate:"max=128"`
}

type CallRefPayload struct {
	CallID string `json:"callId" validate:"required"`
}

type CallSignalPayload struct {
	CallID string          `json:"callId" validate:"required"`
	Signal json.RawMessage `json:"signal" validate:"required"`
}

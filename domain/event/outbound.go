package event

import (
	"chat-hub/domain/chat"
	"chat-hub/domain/user"
	"encoding/json"
	"time"
)

type OutboundKind string

const (
	AuthSuccess    OutboundKind = "auth:success"
	AuthError      OutboundKind = "auth:error"
	AuthSuperseded OutboundKind = "auth:superseded"
	UsersOnline    OutboundKind = "users:online"
	UserOnline     OutboundKind = "user:online"
	UserOffline    OutboundKind = "user:offline"
	ChatJoined     OutboundKind = "chat:joined"
	ChatLeft       OutboundKind = "chat:left"
	MessageReceive OutboundKind = "message:receive"
	MessageDeleted OutboundKind = "message:deleted"
	MessagesRead   OutboundKind = "message:read"
	UserTyping     OutboundKind = "user:typing"
	UserStopTyping OutboundKind = "user:stop-typing"
	CallInitiated  OutboundKind = "call:initiated"
	CallStatus     OutboundKind = "call:status"
	CallAccepted   OutboundKind = "call:accepted"
	CallRejected   OutboundKind = "call:rejected"
	CallEnded      OutboundKind = "call:ended"
	CallSignaled   OutboundKind = "call:signal"
	CallError      OutboundKind = "call:error"
	Error          OutboundKind = "error"
)

// Outbound is one event addressed to a connection.
type Outbound struct {
	Kind    OutboundKind
	Payload any
}

func New(kind OutboundKind, payload any) Outbound {
	return Outbound{Kind: kind, Payload: payload}
}

func (o Outbound) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Event OutboundKind `json:"event"`
		Data  any          `json:"data,omitempty"`
	}{Event: o.Kind, Data: o.Payload})
}

type AuthSuccessPayload struct {
	User          user.Account `json:"user"`
	OnlineUserIDs []string     `json:"onlineUserIds"`
	ChatIDs       []string     `json:"chatIds"`
}

type MessageOnlyPayload struct {
	Message string `json:"message"`
}

type PresencePayload struct {
	UserID   string    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

type OnlineUsersPayload struct {
	UserIDs []string `json:"userIds"`
}

type ChatRef struct {
	ChatID string `json:"chatId"`
}

type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

type MessagesReadPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type TypingPayload struct {
	ChatID string       `json:"chatId"`
	User   user.Profile `json:"user"`
}

type CallInitiatedPayload struct {
	CallID string       `json:"callId"`
	Caller user.Profile `json:"caller"`
	Callee user.Profile `json:"callee"`
	Type   string       `json:"type"`
}

type CallStatusPayload struct {
	CallID string       `json:"callId"`
	Status string       `json:"status"`
	Callee user.Profile `json:"callee"`
}

type CallAcceptedPayload struct {
	CallID string          `json:"callId"`
	Callee user.Profile    `json:"callee"`
	Signal json.RawMessage `json:"signal,omitempty"`
}

type CallRejectedPayload struct {
	CallID string       `json:"callId"`
	Callee user.Profile `json:"callee"`
	Reason string       `json:"reason"`
}

type CallEndedPayload struct {
	CallID  string        `json:"callId"`
	EndedBy *user.Profile `json:"endedBy,omitempty"`
	Reason  string        `json:"reason"`
}

type CallSignaledPayload struct {
	CallID string          `json:"callId"`
	From   user.Profile    `json:"from"`
	Signal json.RawMessage `json:"signal"`
}

type CallErrorPayload struct {
	CallID  string `json:"callId,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Call end reasons carried by call:ended and call:rejected.
const (
	ReasonHangup       = "hangup"
	ReasonTimeout      = "timeout"
	ReasonDisconnected = "disconnected"
	ReasonFailed       = "failed"
	ReasonDeclined     = "declined"
)

// MessageView is the client representation of a resolved message.
type MessageView struct {
	ID           string       `json:"_id"`
	ChatID       string       `json:"chatId"`
	Sender       user.Profile `json:"sender"`
	Text         string       `json:"text"`
	Type         string       `json:"type"`
	FileURL      string       `json:"fileUrl,omitempty"`
	FileName     string       `json:"fileName,omitempty"`
	FileSize     int64        `json:"fileSize,omitempty"`
	FileMimeType string       `json:"fileMimeType,omitempty"`
	ReplyTo      *MessageView `json:"replyTo,omitempty"`
	Language     string       `json:"language,omitempty"`
	ReadBy       []string     `json:"readBy"`
	IsDeleted    bool         `json:"isDeleted"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

func NewMessageView(m chat.ResolvedMessage) MessageView {
	view := toView(m.Message, m.Sender)
	if m.ReplyTo != nil {
		reply := toView(m.ReplyTo.Message, m.ReplyTo.Sender)
		view.ReplyTo = &reply
	}
	return view
}

func toView(m chat.Message, sender user.Profile) MessageView {
	view := MessageView{
		ID:        m.ID,
		ChatID:    m.ChatID.String(),
		Sender:    sender,
		Text:      m.Text,
		Type:      string(m.Type),
		Language:  m.Language,
		ReadBy:    m.ReadBy,
		IsDeleted: m.IsDeleted,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if view.ReadBy == nil {
		view.ReadBy = []string{}
	}
	if m.File != nil {
		view.FileURL = m.File.URL
		view.FileName = m.File.Name
		view.FileSize = m.File.Size
		view.FileMimeType = m.File.MimeType
	}
	return view
}

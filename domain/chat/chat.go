// Package chat contains the conversation model: chats, rooms and messages.
// No runtime, network, or storage logic should be added here.
package chat

import (
	"slices"
	"time"
)

type ChatID string

func (id ChatID) String() string { return string(id) }

type Type string

const (
	Private Type = "private"
	Group   Type = "group"
	Global  Type = "global"
)

func (t Type) Valid() bool {
	switch t {
	case Private, Group, Global:
		return true
	}
	return false
}

// RoomID names the broadcast group of one chat conversation.
type RoomID string

const roomPrefix = "chat:"

// RoomFor derives the room of a chat without any lookup table.
// The prefix keeps room ids disjoint from any other channel namespace.
func RoomFor(chatID ChatID) RoomID {
	return RoomID(roomPrefix + string(chatID))
}

type Chat struct {
	ID            ChatID
	Name          string
	Type          Type
	Members       []string
	Admins        []string
	LastMessageID string
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasMember is the authoritative participant check used before any write.
func (c Chat) HasMember(userID string) bool {
	return slices.Contains(c.Members, userID)
}

func (c Chat) IsAdmin(userID string) bool {
	return slices.Contains(c.Admins, userID)
}

func (c Chat) Room() RoomID {
	return RoomFor(c.ID)
}

package runtime

import (
	"chat-hub/domain/chat"
	"slices"
	"sync"
)

type Set map[string]struct{}

// PresenceRegistry maps each online user to the connection that last
// authenticated as that user.
type PresenceRegistry struct {
	mu      sync.RWMutex
	entries map[string]string // map user -> connection
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{entries: make(map[string]string)}
}

// Register records connID as the live connection of userID, overwriting any
// previous entry. The superseded connection id is returned when there was one.
func (p *PresenceRegistry) Register(userID, connID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	previous, had := p.entries[userID]
	p.entries[userID] = connID
	if had && previous == connID {
		return "", false
	}
	return previous, had
}

// Unregister removes the entry of userID only if it still points to connID.
// A stale connection closing after a newer one registered is a no-op.
func (p *PresenceRegistry) Unregister(userID, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, ok := p.entries[userID]
	if !ok || current != connID {
		return false
	}
	delete(p.entries, userID)
	return true
}

func (p *PresenceRegistry) Lookup(userID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	connID, ok := p.entries[userID]
	return connID, ok
}

// OnlineUserIDs returns a sorted snapshot of the online users.
func (p *PresenceRegistry) OnlineUserIDs() []string {
	p.mu.RLock()
	ids := make([]string, 0, len(p.entries))
	for userID := range p.entries {
		ids = append(ids, userID)
	}
	p.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

func (p *PresenceRegistry) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// RoomTracker keeps the many-to-many relation between connections and rooms.
// Both directions are indexed so a closing connection is dropped everywhere
// without scanning all rooms.
type RoomTracker struct {
	mu          sync.RWMutex
	roomMembers map[chat.RoomID]Set                 // map room -> connections
	connRooms   map[string]map[chat.RoomID]struct{} // map connection -> rooms
}

func NewRoomTracker() *RoomTracker {
	return &RoomTracker{
		roomMembers: make(map[chat.RoomID]Set),
		connRooms:   make(map[string]map[chat.RoomID]struct{}),
	}
}

// Join adds connID to roomID. It returns false when it was already a member.
func (r *RoomTracker) Join(connID string, roomID chat.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.roomMembers[roomID]
	if !ok {
		members = make(Set)
		r.roomMembers[roomID] = members
	}
	if _, already := members[connID]; already {
		return false
	}
	members[connID] = struct{}{}

	rooms, ok := r.connRooms[connID]
	if !ok {
		rooms = make(map[chat.RoomID]struct{})
		r.connRooms[connID] = rooms
	}
	rooms[roomID] = struct{}{}
	return true
}

// Leave removes connID from roomID. It returns false when it was not a member.
func (r *RoomTracker) Leave(connID string, roomID chat.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leave(connID, roomID)
}

func (r *RoomTracker) leave(connID string, roomID chat.RoomID) bool {
	members, ok := r.roomMembers[roomID]
	if !ok {
		return false
	}
	if _, member := members[connID]; !member {
		return false
	}
	delete(members, connID)
	// If no one is left in the room, remove the room entry entirely
	if len(members) == 0 {
		delete(r.roomMembers, roomID)
	}
	if rooms, ok := r.connRooms[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.connRooms, connID)
		}
	}
	return true
}

// MembersOf returns a sorted snapshot of the connections in roomID.
func (r *RoomTracker) MembersOf(roomID chat.RoomID) []string {
	r.mu.RLock()
	members := r.roomMembers[roomID]
	ids := make([]string, 0, len(members))
	for connID := range members {
		ids = append(ids, connID)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

func (r *RoomTracker) RoomsOf(connID string) []chat.RoomID {
	r.mu.RLock()
	rooms := r.connRooms[connID]
	ids := make([]chat.RoomID, 0, len(rooms))
	for roomID := range rooms {
		ids = append(ids, roomID)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

func (r *RoomTracker) IsMember(connID string, roomID chat.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.roomMembers[roomID][connID]
	return ok
}

// DropConnection removes connID from every room and returns the rooms it left.
func (r *RoomTracker) DropConnection(connID string) []chat.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.connRooms[connID]
	left := make([]chat.RoomID, 0, len(rooms))
	for roomID := range rooms {
		left = append(left, roomID)
	}
	for _, roomID := range left {
		r.leave(connID, roomID)
	}
	slices.Sort(left)
	return left
}

func (r *RoomTracker) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roomMembers)
}

// Package registry holds the room, peer, and track membership maps that
// coordinate the SFU's cross-peer bookkeeping.
package registry

import (
	"sync"

	"github.com/RoseWrightdev/sfu-go/internal/id"
)

// RoomRegistry tracks which users belong to which room, in insertion
// order, with de-duplication on insert.
type RoomRegistry struct {
	mu    sync.Mutex
	rooms map[id.RoomID][]id.UserID
}

// NewRoomRegistry creates an empty room registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[id.RoomID][]id.UserID)}
}

// AddUser adds user to room, returning true iff the room transitioned
// from absent to present. Re-adding an existing user is a no-op and
// returns false.
func (r *RoomRegistry) AddUser(room id.RoomID, user id.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, exists := r.rooms[room]
	if !exists {
		r.rooms[room] = []id.UserID{user}
		return true
	}

	for _, u := range users {
		if u == user {
			return false
		}
	}
	r.rooms[room] = append(users, user)
	return false
}

// RemoveUser removes user from room, returning true iff the room became
// empty and was dropped.
func (r *RoomRegistry) RemoveUser(room id.RoomID, user id.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, exists := r.rooms[room]
	if !exists {
		return false
	}

	idx := -1
	for i, u := range users {
		if u == user {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}

	users = append(users[:idx], users[idx+1:]...)
	if len(users) == 0 {
		delete(r.rooms, room)
		return true
	}
	r.rooms[room] = users
	return false
}

// Users returns a point-in-time, order-preserving snapshot of a room's
// members. It never returns nil.
func (r *RoomRegistry) Users(room id.RoomID) []id.UserID {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, exists := r.rooms[room]
	if !exists {
		return []id.UserID{}
	}
	out := make([]id.UserID, len(users))
	copy(out, users)
	return out
}

// RoomCount returns the number of currently non-empty rooms.
func (r *RoomRegistry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

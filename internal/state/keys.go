// Package state persists peer sessions so a dropped connection can
// resume instead of losing its subscriptions: a local write-through
// cache backed by Redis, matching the teacher's suspend/resume design.
package state

import "fmt"

const (
	KeyPrefixSession = "sfu:session:"
	KeyPrefixRoom    = "sfu:room:"

	// SessionTTL is how long a session's Redis entry survives after its
	// most recent write, in seconds, before expiring; every SetSession
	// applies it, so a suspended session has this long to resume.
	SessionTTL = 30

	// RoomTTL bounds how long a room's peer-set key survives, in
	// seconds, after its last member leaves.
	RoomTTL = 300
)

// SessionKey returns the Redis key holding one session's serialized state.
func SessionKey(sessionID string) string {
	return fmt.Sprintf("%s%s", KeyPrefixSession, sessionID)
}

// RoomPeersKey returns the Redis key holding the set of session IDs
// belonging to a room.
func RoomPeersKey(roomID string) string {
	return fmt.Sprintf("%s%s:peers", KeyPrefixRoom, roomID)
}

package registry

import (
	"sync"

	"github.com/RoseWrightdev/sfu-go/internal/id"
)

// TrackRegistry maps a TrackKey to its broadcaster handle. Generic over
// the broadcaster type for the same reason as PeerRegistry.
type TrackRegistry[B any] struct {
	mu     sync.RWMutex
	tracks map[id.TrackKey]B
}

// NewTrackRegistry creates an empty track registry.
func NewTrackRegistry[B any]() *TrackRegistry[B] {
	return &TrackRegistry[B]{tracks: make(map[id.TrackKey]B)}
}

// Insert registers a broadcaster under key.
func (t *TrackRegistry[B]) Insert(key id.TrackKey, b B) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks[key] = b
}

// Get returns the broadcaster for key, if present.
func (t *TrackRegistry[B]) Get(key id.TrackKey) (B, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.tracks[key]
	return v, ok
}

// Remove deletes key, returning the removed broadcaster (if any).
func (t *TrackRegistry[B]) Remove(key id.TrackKey) (B, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.tracks[key]
	if ok {
		delete(t.tracks, key)
	}
	return v, ok
}

// RemoveSession removes and returns every TrackKey belonging to session.
func (t *TrackRegistry[B]) RemoveSession(session id.SessionKey) []id.TrackKey {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []id.TrackKey
	for k := range t.tracks {
		if k.HasSession(session) {
			removed = append(removed, k)
			delete(t.tracks, k)
		}
	}
	return removed
}

// KeysInRoom returns a snapshot of every TrackKey currently registered
// under room, excluding those belonging to excludeUser.
func (t *TrackRegistry[B]) KeysInRoom(room id.RoomID, excludeUser id.UserID) []id.TrackKey {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []id.TrackKey
	for k := range t.tracks {
		if k.Room == room && k.User != excludeUser {
			out = append(out, k)
		}
	}
	return out
}

// KindOf scans for any TrackKey matching (room, user, stream) and
// returns the media kind reported by kindOf for its broadcaster. The
// second return value is false when no matching track exists.
func (t *TrackRegistry[B]) KindOf(room id.RoomID, user id.UserID, stream id.StreamID, kindOf func(B) string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for k, b := range t.tracks {
		if k.Room == room && k.User == user && k.Stream == stream {
			return kindOf(b), true
		}
	}
	return "", false
}

// Len returns the number of registered tracks.
func (t *TrackRegistry[B]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tracks)
}

// Clear removes every registered track (§4.11 shutdown).
func (t *TrackRegistry[B]) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks = make(map[id.TrackKey]B)
}

// Package id defines the SFU's typed identifier handles.
//
// Each identifier wraps a plain string but is a distinct Go type per
// role, so a RoomID can never be passed where a UserID is expected
// without an explicit conversion. Go strings are already cheap to copy,
// so unlike the reference-counted handles these are modeled on, no
// indirection is needed to keep clone cost O(1).
package id

import "fmt"

// RoomID identifies a room.
type RoomID string

// UserID identifies a user within a room.
type UserID string

// StreamID identifies one published media stream (one MediaStream on the
// browser side, grouping related tracks).
type StreamID string

// TrackID identifies one track within a stream.
type TrackID string

func (r RoomID) String() string   { return string(r) }
func (u UserID) String() string   { return string(u) }
func (s StreamID) String() string { return string(s) }
func (t TrackID) String() string  { return string(t) }

// SessionKey uniquely identifies one peer session in the process.
type SessionKey struct {
	Room RoomID
	User UserID
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s/%s", k.Room, k.User)
}

// NewSessionKey builds a SessionKey from raw strings.
func NewSessionKey(room, user string) SessionKey {
	return SessionKey{Room: RoomID(room), User: UserID(user)}
}

// TrackKey uniquely identifies one source track in the process.
type TrackKey struct {
	Room   RoomID
	User   UserID
	Stream StreamID
	Track  TrackID
}

func (k TrackKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Room, k.User, k.Stream, k.Track)
}

// NewTrackKey builds a TrackKey from raw strings.
func NewTrackKey(room, user, stream, track string) TrackKey {
	return TrackKey{Room: RoomID(room), User: UserID(user), Stream: StreamID(stream), Track: TrackID(track)}
}

// HasSession reports whether the track key belongs to the given session.
func (k TrackKey) HasSession(s SessionKey) bool {
	return k.Room == s.Room && k.User == s.User
}

// Package session layers suspend/resume semantics on top of a live
// peer: a session survives a dropped transport for a grace window,
// keyed by a resume token the client presents to reclaim it.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/RoseWrightdev/sfu-go/internal/id"
	"github.com/RoseWrightdev/sfu-go/internal/state"
)

// Session is the in-process record of one peer's lifecycle, independent
// of whether its transport is currently connected.
type Session struct {
	ID    string
	Token string
	Key   id.SessionKey
	Name  string

	Media         state.MediaState
	Subscriptions []id.StreamID

	CreatedAt time.Time
	LastSeen  time.Time
	Suspended bool
}

// New creates a fresh, active session for a room/user pair.
func New(room id.RoomID, user id.UserID, name string) *Session {
	now := time.Now()
	return &Session{
		ID:    uuid.NewString(),
		Token: uuid.NewString(),
		Key:   id.SessionKey{Room: room, User: user},
		Name:  name,
		Media: state.MediaState{
			MicEnabled:    true,
			CameraEnabled: true,
		},
		CreatedAt: now,
		LastSeen:  now,
	}
}

// ToStateData projects a Session to its durable form. The resume token
// is deliberately not persisted: a recovered session always mints a
// fresh one.
func (s *Session) ToStateData() *state.SessionData {
	return &state.SessionData{
		ID:            s.ID,
		Key:           s.Key,
		Name:          s.Name,
		Media:         s.Media,
		Subscriptions: s.Subscriptions,
		CreatedAt:     s.CreatedAt,
		LastSeen:      s.LastSeen,
		Suspended:     s.Suspended,
	}
}

// FromStateData reconstructs a Session from its durable form. Token is
// left empty; callers must mint one before handing the session back to
// a client.
func FromStateData(data *state.SessionData) *Session {
	return &Session{
		ID:            data.ID,
		Key:           data.Key,
		Name:          data.Name,
		Media:         data.Media,
		Subscriptions: data.Subscriptions,
		CreatedAt:     data.CreatedAt,
		LastSeen:      data.LastSeen,
		Suspended:     data.Suspended,
	}
}

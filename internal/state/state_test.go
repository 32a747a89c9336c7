package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/sfu-go/internal/id"
)

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "sfu:session:abc123", SessionKey("abc123"))
}

func TestRoomPeersKey(t *testing.T) {
	assert.Equal(t, "sfu:room:r1:peers", RoomPeersKey("r1"))
}

// newTestManager dials a local Redis instance and skips the test when
// one isn't reachable, matching how integration tests against an
// external dependency are written elsewhere in the codebase.
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager("127.0.0.1:6379", "", 0, zap.NewNop())
	if err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestSetAndGetSessionRoundTrip(t *testing.T) {
	m := newTestManager(t)

	session := &SessionData{
		ID:            "sess-1",
		Key:           id.SessionKey{Room: "room1", User: "user1"},
		Name:          "alice",
		Media:         MediaState{MicEnabled: true},
		Subscriptions: []id.StreamID{"stream-a"},
		CreatedAt:     time.Now(),
		LastSeen:      time.Now(),
	}

	require.NoError(t, m.SetSession(session))

	got, err := m.GetSession("sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.Key, got.Key)
}

func TestGetSessionMissingReturnsNilNoError(t *testing.T) {
	m := newTestManager(t)

	got, err := m.GetSession("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteSessionRemovesFromCacheAndRedis(t *testing.T) {
	m := newTestManager(t)

	session := &SessionData{ID: "sess-del", Key: id.SessionKey{Room: "room1", User: "user1"}}
	require.NoError(t, m.SetSession(session))

	require.NoError(t, m.DeleteSession("sess-del"))

	got, err := m.GetSession("sess-del")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPingSucceedsAgainstReachableRedis(t *testing.T) {
	m := newTestManager(t)
	assert.NoError(t, m.Ping())
}

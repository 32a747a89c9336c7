package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/sfu-go/internal/id"
	"github.com/RoseWrightdev/sfu-go/internal/state"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := state.NewManager("127.0.0.1:6379", "", 0, zap.NewNop())
	if err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewManager(store, zap.NewNop())
}

func TestCreateReturnsNewSessionOnFirstCall(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create(id.RoomID("r1"), id.UserID("u1"), "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.NotEmpty(t, s.Token)
	assert.False(t, s.Suspended)
}

func TestCreateReturnsSameSessionOnSecondCall(t *testing.T) {
	m := newTestManager(t)

	s1, err := m.Create(id.RoomID("r1"), id.UserID("u1"), "alice")
	require.NoError(t, err)

	s2, err := m.Create(id.RoomID("r1"), id.UserID("u1"), "alice")
	require.NoError(t, err)

	assert.Equal(t, s1.ID, s2.ID)
}

func TestCreateReactivatesSuspendedSession(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create(id.RoomID("r1"), id.UserID("u1"), "alice")
	require.NoError(t, err)
	require.NoError(t, m.Suspend(s.ID))

	s2, err := m.Create(id.RoomID("r1"), id.UserID("u1"), "alice")
	require.NoError(t, err)
	assert.Equal(t, s.ID, s2.ID)
	assert.False(t, s2.Suspended)
}

func TestResumeRejectsWrongToken(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create(id.RoomID("r1"), id.UserID("u1"), "alice")
	require.NoError(t, err)
	require.NoError(t, m.Suspend(s.ID))

	_, err = m.Resume(s.ID, "not-the-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResumeIssuesFreshToken(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create(id.RoomID("r1"), id.UserID("u1"), "alice")
	require.NoError(t, err)
	oldToken := s.Token
	require.NoError(t, m.Suspend(s.ID))

	resumed, err := m.Resume(s.ID, oldToken)
	require.NoError(t, err)
	assert.NotEqual(t, oldToken, resumed.Token)
	assert.False(t, resumed.Suspended)

	_, err = m.GetByToken(oldToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDeleteRemovesSession(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create(id.RoomID("r1"), id.UserID("u1"), "alice")
	require.NoError(t, err)

	require.NoError(t, m.Delete(s.ID))

	m.mu.RLock()
	_, stillCached := m.sessions[s.ID]
	m.mu.RUnlock()
	assert.False(t, stillCached)
}

func TestSuspendOnColdCacheRelinksByKeyAndToken(t *testing.T) {
	store, err := state.NewManager("127.0.0.1:6379", "", 0, zap.NewNop())
	if err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	m1 := NewManager(store, zap.NewNop())
	s, err := m1.Create(id.RoomID("r1"), id.UserID("u1"), "alice")
	require.NoError(t, err)

	// m2 shares the durable store but has never seen s locally, so
	// Suspend must rebuild the byKey/tokens links from the store, not
	// just cache the session under its ID.
	m2 := NewManager(store, zap.NewNop())
	require.NoError(t, m2.Suspend(s.ID))

	reactivated, err := m2.Create(id.RoomID("r1"), id.UserID("u1"), "alice")
	require.NoError(t, err)
	assert.Equal(t, s.ID, reactivated.ID)
	assert.False(t, reactivated.Suspended)
}

func TestUpdateSubscriptionsRejectsUnknownSession(t *testing.T) {
	m := newTestManager(t)
	err := m.UpdateSubscriptions("ghost", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCleanupExpiredEvictsOldSuspendedSessions(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create(id.RoomID("r1"), id.UserID("u1"), "alice")
	require.NoError(t, err)
	require.NoError(t, m.Suspend(s.ID))

	m.mu.Lock()
	m.sessions[s.ID].LastSeen = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	cleaned := m.CleanupExpired(time.Minute)
	assert.Equal(t, 1, cleaned)

	m.mu.RLock()
	_, stillCached := m.sessions[s.ID]
	m.mu.RUnlock()
	assert.False(t, stillCached)
}

package sfu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/sfu-go/internal/id"
	"github.com/RoseWrightdev/sfu-go/internal/transport"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	api, err := transport.NewAPI()
	require.NoError(t, err)
	// Empty StunURL keeps ICE gathering to host candidates only, so it
	// completes immediately without outbound network access.
	return New(api, transport.Config{}, zap.NewNop(), nil, nil)
}

func TestCreateSessionRejectsEmptyRoom(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreateSession(context.Background(), id.RoomID(""), id.UserID("u1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCreateSessionRejectsEmptyUser(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreateSession(context.Background(), id.RoomID("r1"), id.UserID(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCreateSessionReturnsOffer(t *testing.T) {
	s := newTestService(t)
	sdp, err := s.CreateSession(context.Background(), id.RoomID("r1"), id.UserID("u1"))
	require.NoError(t, err)
	assert.Contains(t, sdp, "v=0")

	assert.Equal(t, 1, s.peers.Len())
	assert.Equal(t, []id.UserID{"u1"}, s.rooms.Users(id.RoomID("r1")))
}

func TestRollbackSessionRemovesPeerAndRoomMembership(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreateSession(context.Background(), id.RoomID("r1"), id.UserID("u1"))
	require.NoError(t, err)

	key := id.NewSessionKey("r1", "u1")
	p, ok := s.peers.Get(key)
	require.True(t, ok)

	s.rollbackSession(id.RoomID("r1"), id.UserID("u1"), key, p)

	assert.Equal(t, 0, s.peers.Len())
	assert.Equal(t, 0, s.rooms.RoomCount())
}

func TestDeleteSessionNotFound(t *testing.T) {
	s := newTestService(t)
	err := s.DeleteSession(id.RoomID("r1"), id.UserID("ghost"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSessionRemovesPeerAndRoomMembership(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreateSession(context.Background(), id.RoomID("r1"), id.UserID("u1"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteSession(id.RoomID("r1"), id.UserID("u1")))
	assert.Equal(t, 0, s.peers.Len())
	assert.Equal(t, 0, s.rooms.RoomCount())
}

func TestHandleSignalNotFound(t *testing.T) {
	s := newTestService(t)
	err := s.HandleSignal(context.Background(), id.RoomID("r1"), id.UserID("ghost"), Signal{Kind: SignalSdpAnswer, SDP: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHandleSignalInvalidIceCandidateJSON(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreateSession(context.Background(), id.RoomID("r1"), id.UserID("u1"))
	require.NoError(t, err)

	err = s.HandleSignal(context.Background(), id.RoomID("r1"), id.UserID("u1"), Signal{
		Kind:          SignalIceCandidate,
		CandidateJSON: "{not json",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestHandleSignalRejectsOverRateLimit(t *testing.T) {
	s := newTestService(t)
	s.WithRateLimit(1, 1)

	_, err := s.CreateSession(context.Background(), id.RoomID("r1"), id.UserID("u1"))
	require.NoError(t, err)

	sig := Signal{Kind: SignalIceCandidate, CandidateJSON: "{not json"}

	err = s.HandleSignal(context.Background(), id.RoomID("r1"), id.UserID("u1"), sig)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = s.HandleSignal(context.Background(), id.RoomID("r1"), id.UserID("u1"), sig)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestListenEventsNotFound(t *testing.T) {
	s := newTestService(t)
	_, err := s.ListenEvents(id.RoomID("r1"), id.UserID("ghost"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListenEventsInstallsChannel(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreateSession(context.Background(), id.RoomID("r1"), id.UserID("u1"))
	require.NoError(t, err)

	ch, err := s.ListenEvents(id.RoomID("r1"), id.UserID("u1"))
	require.NoError(t, err)
	assert.NotNil(t, ch)
}

func TestShutdownClosesAllPeers(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreateSession(context.Background(), id.RoomID("r1"), id.UserID("u1"))
	require.NoError(t, err)
	_, err = s.CreateSession(context.Background(), id.RoomID("r1"), id.UserID("u2"))
	require.NoError(t, err)

	s.Shutdown(context.Background())

	assert.Equal(t, 0, s.peers.Len())
	assert.Equal(t, 0, s.tracks.Len())
}

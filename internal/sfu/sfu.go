// Package sfu wires the room/peer/track registries, the broadcaster
// fan-out engine, and the renegotiation driver behind the four
// service entry points a signaling transport calls into.
package sfu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/RoseWrightdev/sfu-go/internal/broadcaster"
	"github.com/RoseWrightdev/sfu-go/internal/id"
	"github.com/RoseWrightdev/sfu-go/internal/metrics"
	"github.com/RoseWrightdev/sfu-go/internal/peer"
	"github.com/RoseWrightdev/sfu-go/internal/registry"
	"github.com/RoseWrightdev/sfu-go/internal/transport"
)

// gatherTimeout bounds how long session creation and mid-session answer
// creation wait for ICE gathering (§4.10). Session creation fails with
// ErrUnavailable on timeout; answer creation emits the SDP gathered so
// far.
const gatherTimeout = 1500 * time.Millisecond

var (
	// ErrInvalidArgument covers empty identifiers and malformed SDP/ICE
	// payloads handed to the service entry points.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned when room/user does not name a live peer
	// session.
	ErrNotFound = errors.New("session not found")
	// ErrUnavailable is returned when ICE gathering does not complete
	// within the gather timeout during session creation.
	ErrUnavailable = errors.New("gathering timed out")
	// ErrRateLimited is returned when a session's HandleSignal calls
	// exceed its configured rate.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// defaultRateLimitPerSec/defaultRateLimitBurst are the limits New
// installs; they stay in effect unless WithRateLimit is given positive
// values, keeping a sane limit even if config wiring is skipped (e.g.
// in tests).
const (
	defaultRateLimitPerSec = 20
	defaultRateLimitBurst  = 40
)

// CaptionSink receives raw audio payload bytes for an optional
// captioning side channel (§4.8). TrySend must not block; a full queue
// silently drops.
type CaptionSink interface {
	TrySend(sessionID string, payload []byte)
}

// SignalKind discriminates the handle_signal payload union (§4.10).
type SignalKind int

const (
	SignalSdpAnswer SignalKind = iota
	SignalIceCandidate
	SignalSdpOffer
)

// Signal is one handle_signal payload variant.
type Signal struct {
	Kind          SignalKind
	SDP           string
	CandidateJSON string
}

// Service is the SFU's service façade: the four RPC-style entry points
// plus shutdown.
type Service struct {
	api          *webrtc.API
	transportCfg transport.Config
	logger       *zap.Logger
	metrics      *metrics.Metrics
	captions     CaptionSink

	rooms  *registry.RoomRegistry
	peers  *registry.PeerRegistry[*peer.Peer]
	tracks *registry.TrackRegistry[*broadcaster.Broadcaster]

	rateLimitPerSec float64
	rateLimitBurst  int
	limitersMu      sync.Mutex
	limiters        map[id.SessionKey]*rate.Limiter
}

// New builds a service façade from an already-configured pion API. The
// per-session HandleSignal rate limit starts at the package defaults;
// see WithRateLimit.
func New(api *webrtc.API, cfg transport.Config, logger *zap.Logger, m *metrics.Metrics, captions CaptionSink) *Service {
	return &Service{
		api:             api,
		transportCfg:    cfg,
		logger:          logger,
		metrics:         m,
		captions:        captions,
		rooms:           registry.NewRoomRegistry(),
		peers:           registry.NewPeerRegistry[*peer.Peer](),
		tracks:          registry.NewTrackRegistry[*broadcaster.Broadcaster](),
		rateLimitPerSec: defaultRateLimitPerSec,
		rateLimitBurst:  defaultRateLimitBurst,
		limiters:        make(map[id.SessionKey]*rate.Limiter),
	}
}

// WithRateLimit overrides the default per-session signal rate limit.
// A non-positive perSec or burst leaves that value unchanged.
func (s *Service) WithRateLimit(perSec float64, burst int) *Service {
	if perSec > 0 {
		s.rateLimitPerSec = perSec
	}
	if burst > 0 {
		s.rateLimitBurst = burst
	}
	return s
}

func (s *Service) limiterFor(key id.SessionKey) *rate.Limiter {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()
	if l, ok := s.limiters[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(s.rateLimitPerSec), s.rateLimitBurst)
	s.limiters[key] = l
	return l
}

func (s *Service) removeLimiter(key id.SessionKey) {
	s.limitersMu.Lock()
	delete(s.limiters, key)
	s.limitersMu.Unlock()
}

// CreateSession implements §4.10 create_session.
func (s *Service) CreateSession(ctx context.Context, room id.RoomID, user id.UserID) (string, error) {
	if room == "" || user == "" {
		return "", fmt.Errorf("%w: room and user must not be empty", ErrInvalidArgument)
	}

	pc, err := transport.New(s.api, s.transportCfg)
	if err != nil {
		s.metrics.WebRTCConnectionFailure()
		return "", fmt.Errorf("create peer connection: %w", err)
	}

	p := peer.New(room, user, pc, s.logger)

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		s.logger.Debug("ice connection state changed",
			zap.String("room", room.String()), zap.String("user", user.String()),
			zap.String("state", state.String()))
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Info("peer connection state changed",
			zap.String("room", room.String()), zap.String("user", user.String()),
			zap.String("state", state.String()))
	})

	s.subscribeToExistingTracks(room, user, p)
	s.registerOnTrack(room, user, p)

	key := id.NewSessionKey(room.String(), user.String())
	s.peers.Insert(key, p)
	roomCreated := s.rooms.AddUser(room, user)

	s.metrics.PeerConnected()
	if roomCreated {
		s.metrics.RoomCreated()
	}

	committed := false
	defer func() {
		if !committed {
			s.rollbackSession(room, user, key, p)
		}
	}()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}

	gatherComplete := pc.GatheringCompletePromise()
	if err := pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	if pc.ICEGatheringState() != webrtc.ICEGatheringStateComplete {
		select {
		case <-gatherComplete:
		case <-time.After(gatherTimeout):
			return "", ErrUnavailable
		}
	}

	committed = true

	local := pc.LocalDescription()
	if local == nil {
		return offer.SDP, nil
	}
	return local.SDP, nil
}

// rollbackSession undoes the registry/room/metrics side effects of a
// CreateSession call that registered a peer but then failed before
// producing a usable offer, so a gather timeout or SDP error never
// leaks a registered peer, room membership, or active-peer count.
func (s *Service) rollbackSession(room id.RoomID, user id.UserID, key id.SessionKey, p *peer.Peer) {
	if _, ok := s.peers.Remove(key); !ok {
		return
	}
	s.removeLimiter(key)

	if err := p.Close(); err != nil {
		s.logger.Warn("error closing peer transport during rollback",
			zap.String("room", room.String()), zap.String("user", user.String()), zap.Error(err))
	}

	removed := s.tracks.RemoveSession(key)
	for range removed {
		s.metrics.TrackRemoved()
	}

	roomEmptied := s.rooms.RemoveUser(room, user)

	s.metrics.PeerDisconnected()
	if roomEmptied {
		s.metrics.RoomClosed()
	}
}

// HandleSignal implements §4.10 handle_signal.
func (s *Service) HandleSignal(ctx context.Context, room id.RoomID, user id.UserID, sig Signal) error {
	key := id.NewSessionKey(room.String(), user.String())

	if !s.limiterFor(key).Allow() {
		return ErrRateLimited
	}

	p, ok := s.peers.Get(key)
	if !ok {
		return ErrNotFound
	}

	switch sig.Kind {
	case SignalSdpAnswer:
		desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sig.SDP}
		if err := p.Transport().SetRemoteDescription(desc); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return nil

	case SignalIceCandidate:
		var init webrtc.ICECandidateInit
		if err := json.Unmarshal([]byte(sig.CandidateJSON), &init); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		if err := p.Transport().AddICECandidate(init); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return nil

	case SignalSdpOffer:
		return s.handleSdpOffer(p, sig.SDP)

	default:
		return fmt.Errorf("%w: unknown signal kind", ErrInvalidArgument)
	}
}

func (s *Service) handleSdpOffer(p *peer.Peer, sdp string) error {
	p.SignalingLock.Lock()
	defer p.SignalingLock.Unlock()

	t := p.Transport()

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := t.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	answer, err := t.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}

	gatherComplete := t.GatheringCompletePromise()
	if err := t.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	if t.ICEGatheringState() != webrtc.ICEGatheringStateComplete {
		select {
		case <-gatherComplete:
		case <-time.After(gatherTimeout):
		}
	}

	sdpOut := answer.SDP
	if local := t.LocalDescription(); local != nil {
		sdpOut = local.SDP
	}
	sdpOut = transport.RewritePassiveDTLS(sdpOut)

	p.EmitSdpAnswer(sdpOut)
	return nil
}

// ListenEvents implements §4.10 listen_events.
func (s *Service) ListenEvents(room id.RoomID, user id.UserID) (<-chan peer.Event, error) {
	key := id.NewSessionKey(room.String(), user.String())
	p, ok := s.peers.Get(key)
	if !ok {
		return nil, ErrNotFound
	}

	ch := p.ListenEvents()

	for _, sub := range p.Subscriptions() {
		kind, found := s.tracks.KindOf(room, sub.Owner, sub.Stream, func(b *broadcaster.Broadcaster) string { return b.Kind })
		if !found {
			continue
		}
		p.Emit(peer.Event{
			Kind:      peer.EventTrackAdded,
			UserID:    sub.Owner,
			StreamID:  sub.Stream,
			TrackKind: kind,
		})
	}

	return ch, nil
}

// DeleteSession implements §4.10 delete_session.
func (s *Service) DeleteSession(room id.RoomID, user id.UserID) error {
	key := id.NewSessionKey(room.String(), user.String())
	p, ok := s.peers.Remove(key)
	if !ok {
		return ErrNotFound
	}
	s.removeLimiter(key)

	if err := p.Close(); err != nil {
		s.logger.Warn("error closing peer transport",
			zap.String("room", room.String()), zap.String("user", user.String()), zap.Error(err))
	}

	removed := s.tracks.RemoveSession(key)
	for range removed {
		s.metrics.TrackRemoved()
	}

	roomEmptied := s.rooms.RemoveUser(room, user)

	s.metrics.PeerDisconnected()
	if roomEmptied {
		s.metrics.RoomClosed()
	}

	return nil
}

// Shutdown implements §4.11: close every peer's transport and clear the
// track registry, best-effort.
func (s *Service) Shutdown(ctx context.Context) {
	s.peers.Each(func(key id.SessionKey, p *peer.Peer) {
		if err := p.Close(); err != nil {
			s.logger.Warn("error closing peer transport during shutdown",
				zap.String("session", key.String()), zap.Error(err))
		}
		s.peers.Remove(key)
	})

	s.tracks.Clear()
}

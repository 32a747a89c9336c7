// Package peer implements the per-user peer session: a media transport,
// a signaling serialization lock, a replaceable event-channel listener,
// and the StreamId -> UserId subscription map for tracks currently being
// delivered to that peer.
package peer

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/sfu-go/internal/id"
	"github.com/RoseWrightdev/sfu-go/internal/renegotiation"
	"github.com/RoseWrightdev/sfu-go/internal/transport"
)

// eventChannelCapacity bounds the event channel installed by
// ListenEvents; a slow or abandoned listener can fall behind without
// blocking the peer's own goroutines.
const eventChannelCapacity = 100

// EventKind discriminates the SfuEvent union carried over a peer's event
// channel.
type EventKind int

const (
	EventTrackAdded EventKind = iota
	EventRenegotiateSdpOffer
	EventSdpAnswer
	EventIceCandidate
	EventCaption
)

// Event is the wire-agnostic representation of one SfuEvent variant.
type Event struct {
	Kind EventKind

	// EventTrackAdded
	UserID    id.UserID
	StreamID  id.StreamID
	TrackKind string

	// EventRenegotiateSdpOffer, EventSdpAnswer
	SDP string

	// EventIceCandidate
	CandidateJSON string

	// EventCaption
	SessionID  string
	Text       string
	IsFinal    bool
	Confidence float64
}

// iceCandidateInit mirrors the browser RTCIceCandidateInit wire shape.
type iceCandidateInit struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Peer is one user's session within a room.
type Peer struct {
	RoomID id.RoomID
	UserID id.UserID

	transport transport.MediaTransport

	// SignalingLock serializes SDP renegotiation for this peer. The hot
	// broadcast path never acquires it.
	SignalingLock sync.Mutex

	eventMu sync.Mutex
	eventCh chan Event

	subMu         sync.RWMutex
	subscriptions map[id.StreamID]id.UserID
	subOrder      []id.StreamID

	logger *zap.Logger
}

// New constructs a peer session wrapping an already-created media
// transport.
func New(room id.RoomID, user id.UserID, t transport.MediaTransport, logger *zap.Logger) *Peer {
	p := &Peer{
		RoomID:        room,
		UserID:        user,
		transport:     t,
		subscriptions: make(map[id.StreamID]id.UserID),
		logger:        logger,
	}

	t.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		p.emitLocalCandidate(c)
	})

	return p
}

// Transport returns the peer's underlying media transport.
func (p *Peer) Transport() transport.MediaTransport {
	return p.transport
}

func (p *Peer) emitLocalCandidate(c *webrtc.ICECandidate) {
	init := c.ToJSON()
	payload := iceCandidateInit{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("failed to marshal ICE candidate", zap.Error(err))
		return
	}

	p.Emit(Event{Kind: EventIceCandidate, CandidateJSON: string(raw)})
}

// ListenEvents installs a fresh event channel, replacing any previous
// one, and returns it to the caller. Any goroutine still reading the
// prior channel simply observes no further sends.
func (p *Peer) ListenEvents() <-chan Event {
	p.eventMu.Lock()
	defer p.eventMu.Unlock()

	ch := make(chan Event, eventChannelCapacity)
	p.eventCh = ch
	return ch
}

// Emit sends an event to the current listener, if any. Non-blocking: an
// absent listener silently drops the event, and a full listener drops it
// with a warning log, rather than stalling the caller (renegotiation,
// ICE gathering, keyframe requests).
func (p *Peer) Emit(evt Event) {
	p.eventMu.Lock()
	ch := p.eventCh
	p.eventMu.Unlock()

	if ch == nil {
		return
	}

	select {
	case ch <- evt:
	default:
		p.logger.Warn("event channel full, dropping event",
			zap.String("user", p.UserID.String()),
			zap.Int("kind", int(evt.Kind)),
		)
	}
}

// Subscribe records that streamID (published by owner) is now being
// delivered to this peer.
func (p *Peer) Subscribe(stream id.StreamID, owner id.UserID) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	if _, exists := p.subscriptions[stream]; !exists {
		p.subOrder = append(p.subOrder, stream)
	}
	p.subscriptions[stream] = owner
}

// Unsubscribe removes a StreamId -> UserId entry, e.g. when its
// broadcaster is torn down.
func (p *Peer) Unsubscribe(stream id.StreamID) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	if _, exists := p.subscriptions[stream]; !exists {
		return
	}
	delete(p.subscriptions, stream)
	for i, s := range p.subOrder {
		if s == stream {
			p.subOrder = append(p.subOrder[:i], p.subOrder[i+1:]...)
			break
		}
	}
}

// IsSubscribed reports whether this peer is currently receiving stream.
func (p *Peer) IsSubscribed(stream id.StreamID) bool {
	p.subMu.RLock()
	defer p.subMu.RUnlock()
	_, ok := p.subscriptions[stream]
	return ok
}

// Subscription is one StreamId -> UserId entry in a peer's subscription
// map.
type Subscription struct {
	Stream id.StreamID
	Owner  id.UserID
}

// Subscriptions returns a snapshot of the current subscriptions, in the
// order they were added.
func (p *Peer) Subscriptions() []Subscription {
	p.subMu.RLock()
	defer p.subMu.RUnlock()

	out := make([]Subscription, 0, len(p.subOrder))
	for _, stream := range p.subOrder {
		out = append(out, Subscription{Stream: stream, Owner: p.subscriptions[stream]})
	}
	return out
}

// EmitTrackAdded implements renegotiation.EventSink.
func (p *Peer) EmitTrackAdded(t renegotiation.TrackAdded) {
	p.Emit(Event{
		Kind:      EventTrackAdded,
		UserID:    id.UserID(t.User),
		StreamID:  id.StreamID(t.StreamID),
		TrackKind: t.TrackKind,
	})
}

// EmitRenegotiateOffer implements renegotiation.EventSink.
func (p *Peer) EmitRenegotiateOffer(sdp string) {
	p.Emit(Event{Kind: EventRenegotiateSdpOffer, SDP: sdp})
}

// EmitSdpAnswer emits the SdpAnswer variant produced by handling an
// incoming SdpOffer signal (§4.10).
func (p *Peer) EmitSdpAnswer(sdp string) {
	p.Emit(Event{Kind: EventSdpAnswer, SDP: sdp})
}

// Renegotiate runs the offer/gather/emit sequence for this peer,
// serialized by its signaling lock. See internal/renegotiation.
func (p *Peer) Renegotiate(ctx context.Context, trackAdded *renegotiation.TrackAdded) {
	renegotiation.Perform(ctx, &p.SignalingLock, p.transport, p, p.logger, trackAdded)
}

// Close tears down the underlying media transport.
func (p *Peer) Close() error {
	return p.transport.Close()
}

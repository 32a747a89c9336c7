// Package transport defines the narrow media-transport interface the
// core fan-out engine depends on, and the pion/webrtc-backed
// implementation of it. Everything the spec calls "the media-transport
// library" — peer connection, ICE, DTLS, SRTP, RTP depacketization, RTCP
// — lives behind this seam so the core never imports pion types directly
// in its hot-path logic.
package transport

import (
	"strings"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
)

// MediaTransport is the subset of a WebRTC peer connection the core
// needs: offer/answer negotiation, ICE candidate exchange, one send
// track per subscription, and upstream RTCP for keyframe requests.
type MediaTransport interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	GatheringCompletePromise() <-chan struct{}
	ICEGatheringState() webrtc.ICEGatheringState
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	AddTransceiverFromKind(kind webrtc.RTPCodecType, init ...webrtc.RTPTransceiverInit) (*webrtc.RTPTransceiver, error)
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnICEConnectionStateChange(f func(webrtc.ICEConnectionState))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	WriteRTCP(pkts []rtcp.Packet) error
	Close() error
}

// compile-time assertion that pion's concrete type satisfies the seam.
var _ MediaTransport = (*webrtc.PeerConnection)(nil)

// NewAPI builds a pion API configured with the default codec set and
// interceptor registry, matching the codebase's existing media-engine
// setup.
func NewAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(registry)), nil
}

// Config describes the WebRTC configuration new peer connections are
// built with.
type Config struct {
	StunURL string
}

// RTCConfiguration builds the pion configuration for a new connection:
// one STUN server (if configured) and the bundle policy the SFU relies
// on to keep a single ICE/DTLS transport per peer. An empty StunURL
// yields host-candidate-only gathering, used by tests that need
// gathering to complete without outbound network access.
func (c Config) RTCConfiguration() webrtc.Configuration {
	cfg := webrtc.Configuration{
		BundlePolicy: webrtc.BundlePolicyMaxBundle,
	}
	if c.StunURL != "" {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: []string{c.StunURL}}}
	}
	return cfg
}

// New creates a new peer connection configured with cfg, with one
// receive-only transceiver each for audio and video per §4.10.
func New(api *webrtc.API, cfg Config) (*webrtc.PeerConnection, error) {
	pc, err := api.NewPeerConnection(cfg.RTCConfiguration())
	if err != nil {
		return nil, err
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		_ = pc.Close()
		return nil, err
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		_ = pc.Close()
		return nil, err
	}

	return pc, nil
}

// RewritePassiveDTLS rewrites a DTLS-active setup attribute to passive.
// It is applied to the SFU's own answer to a browser offer (typically
// actpass), keeping the SFU in a fixed passive role.
func RewritePassiveDTLS(sdp string) string {
	const active = "a=setup:active"
	const passive = "a=setup:passive"
	if !strings.Contains(sdp, active) {
		return sdp
	}
	return strings.ReplaceAll(sdp, active, passive)
}

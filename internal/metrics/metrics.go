// Package metrics exposes the SFU's Prometheus counters and gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/gauge the SFU exports. The seven fields
// documented in the external-interfaces surface (active rooms/peers,
// packets forwarded/dropped, keyframes requested, webrtc connections/
// failures) are required; the remainder mirror the operational detail
// the rest of this codebase's services already export.
type Metrics struct {
	ActiveRooms  prometheus.Gauge
	ActivePeers  prometheus.Gauge
	ActiveTracks prometheus.Gauge

	PacketsForwardedTotal *prometheus.CounterVec
	PacketsDroppedTotal   *prometheus.CounterVec
	KeyframesRequested    prometheus.Counter

	WebRTCConnectionsTotal        prometheus.Counter
	WebRTCConnectionFailuresTotal prometheus.Counter

	RenegotiationsTotal  prometheus.Counter
	RenegotiationFailures prometheus.Counter

	SessionsSuspended prometheus.Gauge
	SessionsResumed   prometheus.Counter
}

// New registers and returns the metric set on reg. Pass
// prometheus.DefaultRegisterer to use the global registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sfu_active_rooms",
			Help: "Number of rooms that currently have at least one peer.",
		}),
		ActivePeers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sfu_active_peers",
			Help: "Number of peer sessions currently registered.",
		}),
		ActiveTracks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sfu_active_tracks",
			Help: "Number of source tracks currently broadcast.",
		}),
		PacketsForwardedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sfu_packets_forwarded_total",
			Help: "RTP packets successfully enqueued to a subscriber, by media type.",
		}, []string{"media_type"}),
		PacketsDroppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sfu_packets_dropped_total",
			Help: "RTP packets dropped instead of delivered to a subscriber, by reason.",
		}, []string{"reason"}),
		KeyframesRequested: factory.NewCounter(prometheus.CounterOpts{
			Name: "sfu_keyframes_requested_total",
			Help: "Picture-loss-indication RTCP packets sent upstream.",
		}),
		WebRTCConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sfu_webrtc_connections_total",
			Help: "Peer connections successfully created.",
		}),
		WebRTCConnectionFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sfu_webrtc_connection_failures_total",
			Help: "Peer connection creation or negotiation failures.",
		}),
		RenegotiationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sfu_renegotiations_total",
			Help: "Renegotiation sequences completed successfully.",
		}),
		RenegotiationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sfu_renegotiation_failures_total",
			Help: "Renegotiation sequences aborted due to a failed step.",
		}),
		SessionsSuspended: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sfu_sessions_suspended",
			Help: "Sessions currently suspended, awaiting reconnect within their TTL.",
		}),
		SessionsResumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "sfu_sessions_resumed_total",
			Help: "Suspended sessions successfully resumed by a reconnect.",
		}),
	}
}

// PacketsForwarded records one packet successfully enqueued for mediaType.
func (m *Metrics) PacketsForwarded(mediaType string) {
	if m == nil {
		return
	}
	m.PacketsForwardedTotal.WithLabelValues(mediaType).Inc()
}

// PacketsDropped records one packet dropped for reason.
func (m *Metrics) PacketsDropped(reason string) {
	if m == nil {
		return
	}
	m.PacketsDroppedTotal.WithLabelValues(reason).Inc()
}

// KeyframeRequested records one PLI sent upstream.
func (m *Metrics) KeyframeRequested() {
	if m == nil {
		return
	}
	m.KeyframesRequested.Inc()
}

// PeerConnected records one peer connection successfully created.
func (m *Metrics) PeerConnected() {
	if m == nil {
		return
	}
	m.ActivePeers.Inc()
	m.WebRTCConnectionsTotal.Inc()
}

// PeerDisconnected records one peer session torn down.
func (m *Metrics) PeerDisconnected() {
	if m == nil {
		return
	}
	m.ActivePeers.Dec()
}

// WebRTCConnectionFailure records a peer-connection creation or
// negotiation failure.
func (m *Metrics) WebRTCConnectionFailure() {
	if m == nil {
		return
	}
	m.WebRTCConnectionFailuresTotal.Inc()
}

// RoomCreated records a room transitioning from empty to non-empty.
func (m *Metrics) RoomCreated() {
	if m == nil {
		return
	}
	m.ActiveRooms.Inc()
}

// RoomClosed records a room transitioning to empty.
func (m *Metrics) RoomClosed() {
	if m == nil {
		return
	}
	m.ActiveRooms.Dec()
}

// TrackAdded records a new source track being broadcast.
func (m *Metrics) TrackAdded() {
	if m == nil {
		return
	}
	m.ActiveTracks.Inc()
}

// TrackRemoved records a source track no longer being broadcast.
func (m *Metrics) TrackRemoved() {
	if m == nil {
		return
	}
	m.ActiveTracks.Dec()
}

// RenegotiationSucceeded records a renegotiation sequence that emitted
// its offer.
func (m *Metrics) RenegotiationSucceeded() {
	if m == nil {
		return
	}
	m.RenegotiationsTotal.Inc()
}

// RenegotiationFailed records a renegotiation sequence that aborted.
func (m *Metrics) RenegotiationFailed() {
	if m == nil {
		return
	}
	m.RenegotiationFailures.Inc()
}

// SessionSuspended records a session entering suspended state.
func (m *Metrics) SessionSuspended() {
	if m == nil {
		return
	}
	m.SessionsSuspended.Inc()
}

// SessionResumed records a suspended session reconnecting.
func (m *Metrics) SessionResumed() {
	if m == nil {
		return
	}
	m.SessionsSuspended.Dec()
	m.SessionsResumed.Inc()
}

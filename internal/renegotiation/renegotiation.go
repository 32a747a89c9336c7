// Package renegotiation drives the serialized create-offer -> gather-ICE
// -> push-offer sequence run whenever a peer's set of media sections
// changes.
package renegotiation

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// gatherTimeout bounds how long a renegotiation waits for ICE gathering
// to reach "complete" before sending the offer as-is.
const gatherTimeout = 1500 * time.Millisecond

// Transport is the narrow transport surface the driver needs.
type Transport interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	GatheringCompletePromise() <-chan struct{}
	ICEGatheringState() webrtc.ICEGatheringState
}

// TrackAdded is the optional notification emitted before the offer is
// created, when the renegotiation was triggered by a newly subscribed
// track.
type TrackAdded struct {
	User      string
	StreamID  string
	TrackKind string
}

// EventSink receives the events a renegotiation sequence emits.
type EventSink interface {
	EmitTrackAdded(TrackAdded)
	EmitRenegotiateOffer(sdp string)
}

// Perform runs the full sequence under lock: optionally emits
// trackAdded, creates an offer, sets it as local description, waits up
// to 1500ms for ICE gathering, then emits the gathered offer. Any step
// failing aborts the sequence without emitting the offer; the caller can
// retry on the next trigger.
func Perform(ctx context.Context, lock *sync.Mutex, transport Transport, sink EventSink, logger *zap.Logger, trackAdded *TrackAdded) {
	lock.Lock()
	defer lock.Unlock()

	if trackAdded != nil {
		sink.EmitTrackAdded(*trackAdded)
	}

	offer, ok := createAndGatherOffer(transport, logger)
	if !ok {
		return
	}

	sink.EmitRenegotiateOffer(offer)
}

func createAndGatherOffer(transport Transport, logger *zap.Logger) (string, bool) {
	offer, err := transport.CreateOffer(nil)
	if err != nil {
		logger.Error("failed to create offer", zap.Error(err))
		return "", false
	}

	gatherComplete := transport.GatheringCompletePromise()

	if err := transport.SetLocalDescription(offer); err != nil {
		logger.Error("failed to set local description", zap.Error(err))
		return "", false
	}

	if transport.ICEGatheringState() != webrtc.ICEGatheringStateComplete {
		select {
		case <-gatherComplete:
		case <-time.After(gatherTimeout):
			logger.Info("ICE gathering timed out during renegotiation, sending partial SDP")
		}
	}

	local := transport.LocalDescription()
	if local == nil {
		return offer.SDP, true
	}
	return local.SDP, true
}

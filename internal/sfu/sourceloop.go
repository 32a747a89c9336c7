package sfu

import (
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/sfu-go/internal/broadcaster"
	"github.com/RoseWrightdev/sfu-go/internal/id"
	"github.com/RoseWrightdev/sfu-go/internal/keyframe"
)

// runSourceReadLoop implements §4.8: read RTP from the published track
// until the upstream transport errors, classifying keyframes and
// fanning every packet out through b. A slow subscriber never blocks
// this loop — Broadcast itself never blocks.
func (s *Service) runSourceReadLoop(track *webrtc.TrackRemote, b *broadcaster.Broadcaster, session id.SessionKey) {
	mimeType := track.Codec().MimeType
	isAudio := track.Kind() == webrtc.RTPCodecTypeAudio

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			s.logger.Debug("source read loop exiting",
				zap.String("session", session.String()), zap.Error(err))
			return
		}

		if !isAudio && keyframe.Detect(mimeType, pkt.Payload) {
			b.MarkKeyframeReceived()
		}

		if isAudio && s.captions != nil {
			s.captions.TrySend(session.String(), pkt.Payload)
		}

		b.Broadcast(pkt)
	}
}

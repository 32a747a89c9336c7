package sfu

import (
	"context"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/sfu-go/internal/broadcaster"
	"github.com/RoseWrightdev/sfu-go/internal/id"
	"github.com/RoseWrightdev/sfu-go/internal/peer"
	"github.com/RoseWrightdev/sfu-go/internal/renegotiation"
)

// subscribeToExistingTracks implements §4.9: before a newly joined peer
// is announced to anyone, it is caught up on every already-published
// track in the room. No renegotiation is emitted here; these tracks are
// folded into the peer's own initial SDP offer.
func (s *Service) subscribeToExistingTracks(room id.RoomID, user id.UserID, p *peer.Peer) {
	for _, key := range s.tracks.KeysInRoom(room, user) {
		b, ok := s.tracks.Get(key)
		if !ok {
			continue
		}
		s.attachSubscriber(p, key, b, false)
	}
}

// registerOnTrack implements §4.7's on-track side: whenever this peer
// publishes a new source track, a broadcaster is created for it and
// fanned out to every other room member, each on its own goroutine so a
// slow subscriber never blocks the others.
func (s *Service) registerOnTrack(room id.RoomID, user id.UserID, p *peer.Peer) {
	p.Transport().OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		kind := "audio"
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			kind = "video"
		}

		key := id.NewTrackKey(room.String(), user.String(), track.StreamID(), track.ID())

		b := broadcaster.New(kind, track.Codec().RTPCodecCapability, p.Transport(), uint32(track.SSRC()), s.logger, s.metrics)
		s.tracks.Insert(key, b)
		s.metrics.TrackAdded()

		for _, member := range s.rooms.Users(room) {
			if member == user {
				continue
			}
			memberKey := id.NewSessionKey(room.String(), member.String())
			target, ok := s.peers.Get(memberKey)
			if !ok {
				continue
			}

			go s.attachSubscriber(target, key, b, true)
		}

		go s.runSourceReadLoop(track, b, id.SessionKey{Room: room, User: user})
	})
}

// attachSubscriber runs the shared subscription-setup steps from §4.7
// (also reused, without renegotiation, by §4.9): create a local
// send-track for the broadcaster's codec, add it to the subscriber's
// media transport, spawn its RTCP reader, wire it into the broadcaster
// as a writer, prime it with PLI retries, and record the mapping.
func (s *Service) attachSubscriber(target *peer.Peer, key id.TrackKey, b *broadcaster.Broadcaster, renegotiate bool) {
	localTrack, err := webrtc.NewTrackLocalStaticRTP(b.Capability, key.Track.String(), key.Stream.String())
	if err != nil {
		s.logger.Error("failed to create local send track", zap.Error(err))
		return
	}

	sender, err := target.Transport().AddTrack(localTrack)
	if err != nil {
		s.logger.Error("failed to add local track to subscriber", zap.Error(err))
		return
	}

	go runRTCPReader(sender, b, s.logger)

	outgoingSSRC, outgoingPT := resolveOutgoingParams(sender, b, s.logger)

	b.AddWriter(localTrack, outgoingSSRC, outgoingPT)
	go b.SchedulePLIRetry()

	target.Subscribe(key.Stream, key.User)

	if renegotiate {
		target.Renegotiate(context.Background(), &renegotiation.TrackAdded{
			User:      key.User.String(),
			StreamID:  key.Stream.String(),
			TrackKind: b.Kind,
		})
	}
}

// resolveOutgoingParams reads the negotiated outgoing SSRC (first
// encoding) and payload type (first codec) off sender. If the outgoing
// codec list is empty, it logs a warning and returns payload type 0,
// which makes the writer keep the source packets' payload type; the
// SSRC is still taken from the first encoding.
func resolveOutgoingParams(sender *webrtc.RTPSender, b *broadcaster.Broadcaster, logger *zap.Logger) (uint32, uint8) {
	params := sender.GetParameters()

	var ssrc uint32
	if len(params.Encodings) > 0 {
		ssrc = uint32(params.Encodings[0].SSRC)
	}

	if len(params.Codecs) == 0 {
		logger.Warn("outgoing codec list empty, falling back to source payload type")
		return ssrc, 0
	}

	return ssrc, uint8(params.Codecs[0].PayloadType)
}

// runRTCPReader drains RTCP from sender so pion's internal buffers
// don't stall, and forwards any Picture-Loss-Indication as a keyframe
// request to the source broadcaster. It exits when the sender closes.
func runRTCPReader(sender *webrtc.RTPSender, b *broadcaster.Broadcaster, logger *zap.Logger) {
	for {
		pkts, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			if _, ok := pkt.(*rtcp.PictureLossIndication); ok {
				b.RequestKeyframe()
			}
		}
	}
}

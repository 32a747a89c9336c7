// Package broadcaster implements the SFU's core hot path: fan-out of one
// published source track to N per-subscriber delivery queues.
package broadcaster

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/sfu-go/internal/metrics"
)

// writerQueueCapacity is the bounded per-subscriber queue depth.
const writerQueueCapacity = 128

// pliRetryDelay is how long SchedulePLIRetry waits before deciding
// whether a second PLI is needed.
const pliRetryDelay = 500 * time.Millisecond

// iceGatherTimeout is the renegotiation gather bound (§4.6/§4.10). It
// is unexported and not referenced in this package; internal/sfu and
// internal/renegotiation each define their own copy.
const iceGatherTimeout = 1500 * time.Millisecond

// UpstreamTransport is the narrow view of the publisher's media
// transport the broadcaster needs: only the ability to send an RTCP
// packet upstream to request a keyframe.
type UpstreamTransport interface {
	WriteRTCP(pkts []rtcp.Packet) error
}

// SendTrack is the narrow view of a subscriber's local send track the
// writer task needs.
type SendTrack interface {
	WriteRTP(p *rtp.Packet) error
}

// Writer is one subscriber's delivery endpoint onto a broadcaster.
type Writer struct {
	ch          chan *rtp.Packet
	ssrc        uint32
	payloadType uint8
	closed      atomic.Bool
}

// Broadcaster fans out one published source track to its subscribers.
type Broadcaster struct {
	Kind       string // "audio" | "video"
	Capability webrtc.RTPCodecCapability

	upstream   UpstreamTransport
	sourceSSRC uint32

	lastKeyframeTS atomic.Int64

	mu      sync.RWMutex
	writers []*Writer

	logger  *zap.Logger
	metrics *metrics.Metrics

	dropLogCount atomic.Uint64
}

// New constructs a broadcaster for a freshly observed source track.
func New(kind string, capability webrtc.RTPCodecCapability, upstream UpstreamTransport, sourceSSRC uint32, logger *zap.Logger, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{
		Kind:       kind,
		Capability: capability,
		upstream:   upstream,
		sourceSSRC: sourceSSRC,
		logger:     logger,
		metrics:    m,
	}
}

// AddWriter allocates a bounded queue for a new subscriber, spawns its
// writer task, and immediately requests a keyframe upstream so the new
// subscriber can start decoding as soon as possible.
func (b *Broadcaster) AddWriter(sendTrack SendTrack, ssrc uint32, payloadType uint8) *Writer {
	w := &Writer{
		ch:          make(chan *rtp.Packet, writerQueueCapacity),
		ssrc:        ssrc,
		payloadType: payloadType,
	}

	b.mu.Lock()
	b.writers = append(b.writers, w)
	b.mu.Unlock()

	go b.runWriter(w, sendTrack)

	b.logger.Info("writer added to broadcaster",
		zap.String("kind", b.Kind),
		zap.Uint32("ssrc", ssrc),
	)

	b.RequestKeyframe()

	return w
}

func (b *Broadcaster) runWriter(w *Writer, sendTrack SendTrack) {
	for pkt := range w.ch {
		if err := sendTrack.WriteRTP(pkt); err != nil {
			if isPeerDisconnectError(err) {
				b.logger.Debug("writer exiting: peer disconnected", zap.Error(err))
			} else {
				b.logger.Warn("writer exiting: write error", zap.Error(err))
			}
			w.closed.Store(true)
			return
		}
	}
}

func isPeerDisconnectError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Broken pipe") || strings.Contains(msg, "Connection reset")
}

// Broadcast fans packet out to every writer. It never blocks: each send
// is non-blocking, and a writer whose queue is full or whose consumer
// has exited only affects that writer. After the fan-out pass it sweeps
// any writers that have gone silent (closed), satisfying the requirement
// that a dead writer eventually becomes collectable.
func (b *Broadcaster) Broadcast(pkt *rtp.Packet) {
	b.mu.RLock()
	writers := b.writers
	var deadIdx []int
	for i, w := range writers {
		if w.closed.Load() {
			deadIdx = append(deadIdx, i)
			b.metrics.PacketsDropped("channel_closed")
			continue
		}

		clone := &rtp.Packet{
			Header:  pkt.Header,
			Payload: pkt.Payload,
		}
		clone.Header.SSRC = w.ssrc
		if w.payloadType != 0 {
			clone.Header.PayloadType = w.payloadType
		}

		select {
		case w.ch <- clone:
			b.metrics.PacketsForwarded(b.Kind)
		default:
			b.metrics.PacketsDropped("buffer_full")
			if n := b.dropLogCount.Add(1); n%100 == 0 {
				b.logger.Warn("subscriber queue full, dropping packet",
					zap.String("kind", b.Kind),
					zap.Uint64("total_drops", n),
				)
			}
		}
	}
	b.mu.RUnlock()

	if len(deadIdx) > 0 {
		b.sweep()
	}
}

// sweep removes every writer whose consumer has gone silent, closing its
// queue now that no further sends will target it.
func (b *Broadcaster) sweep() {
	b.mu.Lock()
	defer b.mu.Unlock()

	live := b.writers[:0:0]
	for _, w := range b.writers {
		if w.closed.Load() {
			close(w.ch)
			continue
		}
		live = append(live, w)
	}
	b.writers = live
}

// WriterCount returns the current number of live subscriber writers.
func (b *Broadcaster) WriterCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.writers)
}

// RequestKeyframe sends a Picture-Loss-Indication upstream. It is a
// no-op for audio.
func (b *Broadcaster) RequestKeyframe() {
	if b.Kind != "video" {
		return
	}

	pli := []rtcp.Packet{
		&rtcp.PictureLossIndication{SenderSSRC: 0, MediaSSRC: b.sourceSSRC},
	}
	if err := b.upstream.WriteRTCP(pli); err != nil {
		b.logger.Warn("failed to send PLI upstream", zap.Error(err))
		return
	}
	b.metrics.KeyframeRequested()
}

// MarkKeyframeReceived records that a keyframe was just observed on the
// source track.
func (b *Broadcaster) MarkKeyframeReceived() {
	b.lastKeyframeTS.Store(time.Now().UnixMilli())
}

// SchedulePLIRetry sends an immediate PLI and, if no keyframe has been
// observed within pliRetryDelay, sends a second one. Intended to be
// invoked as its own goroutine.
func (b *Broadcaster) SchedulePLIRetry() {
	startTime := time.Now().UnixMilli()
	b.RequestKeyframe()

	time.Sleep(pliRetryDelay)

	if b.lastKeyframeTS.Load() < startTime {
		b.RequestKeyframe()
	}
}

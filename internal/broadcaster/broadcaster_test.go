package broadcaster

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/sfu-go/internal/metrics"
)

type fakeUpstream struct {
	mu   sync.Mutex
	sent []rtcp.Packet
}

func (f *fakeUpstream) WriteRTCP(pkts []rtcp.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, pkts...)
	return nil
}

func (f *fakeUpstream) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeSendTrack struct {
	mu       sync.Mutex
	received []*rtp.Packet
	failWith error
}

func (f *fakeSendTrack) WriteRTP(p *rtp.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.received = append(f.received, p)
	return nil
}

func (f *fakeSendTrack) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func newTestBroadcaster(kind string) (*Broadcaster, *fakeUpstream) {
	up := &fakeUpstream{}
	b := New(kind, webrtc.RTPCodecCapability{MimeType: "video/VP8"}, up, 12345, zap.NewNop(), nil)
	return b, up
}

func TestAddWriterRequestsKeyframeForVideo(t *testing.T) {
	b, up := newTestBroadcaster("video")
	track := &fakeSendTrack{}
	b.AddWriter(track, 999, 96)

	require.Eventually(t, func() bool { return up.count() >= 1 }, time.Second, time.Millisecond)
}

func TestAddWriterSkipsKeyframeForAudio(t *testing.T) {
	b, up := newTestBroadcaster("audio")
	track := &fakeSendTrack{}
	b.AddWriter(track, 999, 0)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, up.count())
}

func TestBroadcastRewritesSSRCAndPayloadType(t *testing.T) {
	b, _ := newTestBroadcaster("video")
	track := &fakeSendTrack{}
	b.AddWriter(track, 555, 100)

	pkt := &rtp.Packet{Header: rtp.Header{SSRC: 1, PayloadType: 96}, Payload: []byte{1, 2, 3}}
	b.Broadcast(pkt)

	require.Eventually(t, func() bool { return track.count() == 1 }, time.Second, time.Millisecond)
	track.mu.Lock()
	got := track.received[0]
	track.mu.Unlock()
	assert.Equal(t, uint32(555), got.Header.SSRC)
	assert.EqualValues(t, 100, got.Header.PayloadType)
}

func TestBroadcastLeavesPayloadTypeUnchangedWhenZero(t *testing.T) {
	b, _ := newTestBroadcaster("video")
	track := &fakeSendTrack{}
	b.AddWriter(track, 555, 0)

	pkt := &rtp.Packet{Header: rtp.Header{SSRC: 1, PayloadType: 96}, Payload: []byte{1}}
	b.Broadcast(pkt)

	require.Eventually(t, func() bool { return track.count() == 1 }, time.Second, time.Millisecond)
	track.mu.Lock()
	got := track.received[0]
	track.mu.Unlock()
	assert.EqualValues(t, 96, got.Header.PayloadType)
}

func TestZombieWriterCleanup(t *testing.T) {
	b, _ := newTestBroadcaster("video")
	track := &fakeSendTrack{failWith: assertErr{"connection reset"}}
	b.AddWriter(track, 1, 0)

	// Drive one packet through so the writer task observes the error and
	// marks itself closed.
	pkt := &rtp.Packet{Header: rtp.Header{SSRC: 1}, Payload: []byte{1}}
	b.Broadcast(pkt)

	require.Eventually(t, func() bool {
		for i := 0; i < 50; i++ {
			b.Broadcast(pkt)
		}
		return b.WriterCount() == 0
	}, time.Second, time.Millisecond)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return "Connection reset by peer: " + e.msg }

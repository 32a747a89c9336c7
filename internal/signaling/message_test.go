package signaling

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTripsThroughJSON(t *testing.T) {
	payload, err := json.Marshal(SdpPayload{SDP: "v=0\r\n"})
	require.NoError(t, err)

	msg := Message{Type: MessageTypeOffer, Payload: payload}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, MessageTypeOffer, decoded.Type)

	var sdp SdpPayload
	require.NoError(t, json.Unmarshal(decoded.Payload, &sdp))
	assert.Equal(t, "v=0\r\n", sdp.SDP)
}

func TestSdpPayloadOmitsEmptySessionFields(t *testing.T) {
	raw, err := json.Marshal(SdpPayload{SDP: "v=0\r\n"})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sessionId")
	assert.NotContains(t, string(raw), "sessionToken")
}

func TestSdpPayloadCarriesSessionIdentity(t *testing.T) {
	payload := SdpPayload{SDP: "v=0\r\n", SessionID: "sess-1", Token: "tok-1"}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	var decoded SdpPayload
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestTrackAddedPayloadRoundTrip(t *testing.T) {
	payload := TrackAddedPayload{UserID: "u1", StreamID: "s1", TrackKind: "video"}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	var decoded TrackAddedPayload
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, payload, decoded)
}

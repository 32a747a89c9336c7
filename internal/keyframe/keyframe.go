// Package keyframe implements codec-aware keyframe detection on raw RTP
// payload bytes.
package keyframe

import "strings"

// Detect reports whether payload, taken from a packet whose codec mime
// type is mimeType, is a video keyframe.
//
// VP8: the packet is a keyframe iff the low bit of the first payload
// byte is 0. H.264: nal = payload[0] & 0x1F; nal == 5 is an IDR
// keyframe; nal == 28 (FU-A) with len(payload) >= 2 is a keyframe iff
// the fragment's start bit is set and the inner NAL type is 5. Any other
// codec, or an empty payload, is conservatively not a keyframe.
func Detect(mimeType string, payload []byte) bool {
	if len(payload) == 0 {
		return false
	}

	mime := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mime, "vp8"):
		return payload[0]&0x01 == 0
	case strings.Contains(mime, "h264"):
		nal := payload[0] & 0x1F
		switch {
		case nal == 5:
			return true
		case nal == 28 && len(payload) >= 2:
			startBit := payload[1]&0x80 != 0
			innerType := payload[1] & 0x1F
			return startBit && innerType == 5
		default:
			return false
		}
	default:
		return false
	}
}

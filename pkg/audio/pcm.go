package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrOddLength is returned when a PCM16 payload does not contain a whole
// number of 2-byte samples.
var ErrOddLength = errors.New("audio: odd byte count in PCM16 data")

// Float32ToPCM16 converts float samples to 16-bit signed little-endian PCM.
//
// Each sample is clamped to [-1, 1]. Negative values scale by 32768 and
// non-negative values by 32767, so -1 maps to -32768 and 1 maps to 32767.
// The scaled value is truncated toward zero.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

func floatToInt16(s float32) int16 {
	switch {
	case s != s: // NaN
		return 0
	case s > 1:
		s = 1
	case s < -1:
		s = -1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// PCM16ToFloat32 converts 16-bit signed little-endian PCM to float samples by
// dividing every sample by 32768. The payload must hold an even number of
// bytes; otherwise ErrOddLength is returned and no samples are produced.
func PCM16ToFloat32(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddLength, len(pcm))
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out, nil
}

// PCMMIMEType returns the MIME type used to tag raw 16-bit PCM at rate Hz,
// for example "audio/pcm;rate=16000".
func PCMMIMEType(rate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(rate)
}

// ParsePCMRate extracts the rate parameter from a PCM MIME type such as
// "audio/pcm;rate=24000". The second result is false when the type is not
// audio/pcm or carries no valid rate.
func ParsePCMRate(mimeType string) (int, bool) {
	base, params, _ := strings.Cut(mimeType, ";")
	if !strings.EqualFold(strings.TrimSpace(base), "audio/pcm") {
		return 0, false
	}
	for p := range strings.SplitSeq(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(k, "rate") {
			continue
		}
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 {
			return 0, false
		}
		return rate, true
	}
	return 0, false
}

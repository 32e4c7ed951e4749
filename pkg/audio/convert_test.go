package audio_test

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/soelive/pkg/audio"
)

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestFloat32ToPCM16_Scaling(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"full positive", 1, 32767},
		{"full negative", -1, -32768},
		{"half negative", -0.5, -16384},
		{"half positive truncates", 0.5, 16383},
		{"clamp above", 1.7, 32767},
		{"clamp below", -3, -32768},
		{"nan", float32(math.NaN()), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := bytesToSamples(audio.Float32ToPCM16([]float32{tt.in}))
			if len(got) != 1 {
				t.Fatalf("got %d samples, want 1", len(got))
			}
			if got[0] != tt.want {
				t.Errorf("Float32ToPCM16(%v) = %d, want %d", tt.in, got[0], tt.want)
			}
		})
	}
}

func TestPCM16ToFloat32_Scaling(t *testing.T) {
	t.Parallel()
	pcm := make([]byte, 6)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(0x8000)) // -32768
	binary.LittleEndian.PutUint16(pcm[2:], 0)
	binary.LittleEndian.PutUint16(pcm[4:], 16384)

	got, err := audio.PCM16ToFloat32(pcm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float32{-1, 0, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPCM16ToFloat32_OddLength(t *testing.T) {
	t.Parallel()
	_, err := audio.PCM16ToFloat32([]byte{1, 2, 3})
	if !errors.Is(err, audio.ErrOddLength) {
		t.Fatalf("expected ErrOddLength, got %v", err)
	}
}

func TestPCM16_RoundTripBound(t *testing.T) {
	t.Parallel()
	// Scaling by 32767 on the way in and 32768 on the way out plus truncation
	// stays within two quantisation steps.
	const bound = 2.0/32768 + 1e-7

	in := make([]float32, 0, 4001)
	for i := -2000; i <= 2000; i++ {
		in = append(in, float32(i)/2000)
	}
	out, err := audio.PCM16ToFloat32(audio.Float32ToPCM16(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(in))
	}
	for i := range in {
		if d := math.Abs(float64(out[i] - in[i])); d > bound {
			t.Errorf("sample %v: round trip error %v exceeds %v", in[i], d, bound)
		}
	}
}

func TestPCM16_SilentBlockEncoding(t *testing.T) {
	t.Parallel()
	pcm := audio.Float32ToPCM16(make([]float32, 4096))
	if len(pcm) != 8192 {
		t.Fatalf("got %d bytes, want 8192", len(pcm))
	}
	for i, b := range pcm {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0", i, b)
		}
	}
	if n := len(base64.StdEncoding.EncodeToString(pcm)); n != 10924 {
		t.Errorf("base64 length = %d, want 10924", n)
	}
}

func TestParsePCMRate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mime string
		rate int
		ok   bool
	}{
		{"audio/pcm;rate=24000", 24000, true},
		{"audio/pcm; rate=16000", 16000, true},
		{"AUDIO/PCM;RATE=8000", 8000, true},
		{"audio/pcm", 0, false},
		{"audio/pcm;rate=abc", 0, false},
		{"audio/opus;rate=48000", 0, false},
	}
	for _, tt := range tests {
		rate, ok := audio.ParsePCMRate(tt.mime)
		if rate != tt.rate || ok != tt.ok {
			t.Errorf("ParsePCMRate(%q) = (%d, %v), want (%d, %v)", tt.mime, rate, ok, tt.rate, tt.ok)
		}
	}
	if got := audio.PCMMIMEType(16000); got != "audio/pcm;rate=16000" {
		t.Errorf("PCMMIMEType = %q", got)
	}
}

func TestResampleFloat32(t *testing.T) {
	t.Parallel()

	t.Run("same rate unchanged", func(t *testing.T) {
		in := []float32{0.1, 0.2}
		out := audio.ResampleFloat32(in, 24000, 24000)
		if &out[0] != &in[0] {
			t.Error("expected input slice to be returned unchanged")
		}
	})

	t.Run("upsample doubles length", func(t *testing.T) {
		out := audio.ResampleFloat32([]float32{0, 1, 0, -1}, 12000, 24000)
		if len(out) != 8 {
			t.Fatalf("got %d samples, want 8", len(out))
		}
		if out[1] != 0.5 {
			t.Errorf("interpolated sample = %v, want 0.5", out[1])
		}
	})

	t.Run("downsample halves length", func(t *testing.T) {
		out := audio.ResampleFloat32(make([]float32, 480), 48000, 24000)
		if len(out) != 240 {
			t.Errorf("got %d samples, want 240", len(out))
		}
	})
}

func TestRateConverter(t *testing.T) {
	t.Parallel()
	c := audio.RateConverter{Target: 24000}

	same := audio.Frame{Samples: []float32{1, 2}, SampleRate: 24000}
	if got := c.Convert(same); len(got.Samples) != 2 || got.SampleRate != 24000 {
		t.Errorf("matching frame changed: %+v", got)
	}

	got := c.Convert(audio.Frame{Samples: make([]float32, 160), SampleRate: 16000})
	if got.SampleRate != 24000 || len(got.Samples) != 240 {
		t.Errorf("converted frame = %d Hz / %d samples, want 24000 / 240", got.SampleRate, len(got.Samples))
	}
}

func TestBlocker(t *testing.T) {
	t.Parallel()
	b := audio.NewBlocker(4)
	var blocks [][]float32
	emit := func(s []float32) { blocks = append(blocks, s) }

	b.Write([]float32{1, 2, 3}, emit)
	if len(blocks) != 0 {
		t.Fatalf("emitted %d blocks before one was full", len(blocks))
	}
	b.Write([]float32{4, 5, 6, 7, 8, 9}, emit)
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	want := [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}
	for i := range want {
		for j := range want[i] {
			if blocks[i][j] != want[i][j] {
				t.Errorf("block %d sample %d = %v, want %v", i, j, blocks[i][j], want[i][j])
			}
		}
	}

	b.Reset()
	b.Write([]float32{10, 11, 12, 13}, emit)
	if blocks[2][0] != 10 {
		t.Errorf("Reset did not discard the partial block: got %v", blocks[2])
	}
}

func TestFrameDuration(t *testing.T) {
	t.Parallel()
	f := audio.Frame{Samples: make([]float32, 12000), SampleRate: 24000}
	if got := f.Duration(); got != 500*time.Millisecond {
		t.Errorf("Duration = %v, want 500ms", got)
	}
	if got := audio.SamplesDuration(10, 0); got != 0 {
		t.Errorf("SamplesDuration with zero rate = %v, want 0", got)
	}
}

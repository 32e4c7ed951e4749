package miniaudio

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/soelive/pkg/audio"
)

func TestBytesToFloats(t *testing.T) {
	t.Parallel()
	want := []float32{0, 0.5, -1, 0.25}
	raw := make([]byte, len(want)*4)
	for i, v := range want {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}

	got := bytesToFloats(raw, nil)
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}

	reused := bytesToFloats(raw[:8], got)
	if len(reused) != 2 || &reused[0] != &got[0] {
		t.Error("expected the destination backing array to be reused")
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	denied := classify("init capture device", errors.New("Access denied."))
	if !errors.Is(denied, audio.ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", denied)
	}
	other := classify("init capture device", errors.New("No backend."))
	if !errors.Is(other, audio.ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", other)
	}
}

func TestLatency(t *testing.T) {
	t.Parallel()
	if got := latency(480, 4, 24000); got != 80*time.Millisecond {
		t.Errorf("latency = %v, want 80ms", got)
	}
}

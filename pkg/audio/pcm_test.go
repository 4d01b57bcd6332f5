package audio_test

import (
	"math"
	"testing"
	"time"

	"github.com/MrWong99/docent/pkg/audio"
)

func TestMeanAbs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		samples []int16
		want    float64
	}{
		{"empty", nil, 0},
		{"silence", []int16{0, 0, 0, 0}, 0},
		{"symmetric", []int16{100, -100, 100, -100}, 100},
		{"mixed", []int16{10, -20, 30, -40}, 25},
		{"min int16 does not overflow", []int16{math.MinInt16, math.MaxInt16}, 32767.5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := audio.MeanAbs(tc.samples); got != tc.want {
				t.Errorf("MeanAbs(%v) = %v, want %v", tc.samples, got, tc.want)
			}
		})
	}
}

func TestInt16BytesRoundTrip(t *testing.T) {
	t.Parallel()

	in := []int16{0, 1, -1, 12345, math.MinInt16, math.MaxInt16}
	b := audio.Int16ToBytes(in)
	if len(b) != len(in)*2 {
		t.Fatalf("len(bytes) = %d, want %d", len(b), len(in)*2)
	}
	// Little-endian: 1 -> 0x01 0x00.
	if b[2] != 0x01 || b[3] != 0x00 {
		t.Errorf("sample 1 encoded as %#x %#x, want 0x01 0x00", b[2], b[3])
	}
	out := audio.BytesToInt16(b)
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d = %d, want %d", i, out[i], in[i])
		}
	}
}

func TestBytesToInt16_OddLength(t *testing.T) {
	t.Parallel()

	if got := audio.BytesToInt16([]byte{0x01, 0x00, 0xFF}); len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}

func TestInt16ToFloat32(t *testing.T) {
	t.Parallel()

	got := audio.Int16ToFloat32([]int16{0, math.MinInt16, 16384})
	want := []float32{0, -1, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	in := make([]int16, 1600)
	for i := range in {
		in[i] = int16(i)
	}

	t.Run("same rate is identity", func(t *testing.T) {
		if got := audio.Resample(in, 16000, 16000); len(got) != len(in) {
			t.Errorf("len = %d, want %d", len(got), len(in))
		}
	})
	t.Run("upsample", func(t *testing.T) {
		got := audio.Resample(in, 16000, 48000)
		if len(got) != 4800 {
			t.Fatalf("len = %d, want 4800", len(got))
		}
		if got[0] != 0 || got[4799] != 1599 {
			t.Errorf("endpoints = %d, %d, want 0, 1599", got[0], got[4799])
		}
	})
	t.Run("downsample", func(t *testing.T) {
		got := audio.Resample(in, 16000, 8000)
		if len(got) != 800 {
			t.Fatalf("len = %d, want 800", len(got))
		}
		if got[10] != 20 {
			t.Errorf("got[10] = %d, want 20", got[10])
		}
	})
	t.Run("invalid rate", func(t *testing.T) {
		if got := audio.Resample(in, 0, 16000); len(got) != len(in) {
			t.Errorf("len = %d, want input unchanged", len(got))
		}
	})
}

func TestUtterance(t *testing.T) {
	t.Parallel()

	u := audio.NewUtterance(16000, audio.Frame{Samples: make([]int16, 1600), Seq: 1})
	u.Append(audio.Frame{Samples: make([]int16, 1600), Seq: 2})

	if u.Len() != 2 {
		t.Errorf("Len = %d, want 2", u.Len())
	}
	if u.NumSamples() != 3200 {
		t.Errorf("NumSamples = %d, want 3200", u.NumSamples())
	}
	if len(u.Samples()) != 3200 {
		t.Errorf("len(Samples) = %d, want 3200", len(u.Samples()))
	}
	if u.Duration() != 200*time.Millisecond {
		t.Errorf("Duration = %v, want 200ms", u.Duration())
	}
	if u.Empty() {
		t.Error("Empty = true, want false")
	}
	if len(u.PCM()) != 6400 {
		t.Errorf("len(PCM) = %d, want 6400", len(u.PCM()))
	}

	var nilU *audio.Utterance
	if !nilU.Empty() || nilU.Len() != 0 {
		t.Error("nil utterance must be empty")
	}
}

package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/MrWong99/docent/pkg/audio"
)

func TestEncodeWAV_Header(t *testing.T) {
	t.Parallel()

	samples := []int16{1, -1, 2, -2}
	wav := audio.EncodeWAV(samples, 16000)

	if len(wav) != 44+8 {
		t.Fatalf("len = %d, want 52", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE magic")
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 32000 {
		t.Errorf("byte rate = %d, want 32000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 8 {
		t.Errorf("data size = %d, want 8", got)
	}
}

func TestDecodeWAV_Mono(t *testing.T) {
	t.Parallel()

	in := []int16{100, -200, 300}
	got, info, err := audio.DecodeWAV(audio.EncodeWAV(in, 22050))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if info.SampleRate != 22050 || info.Channels != 1 || info.DataOffset != 44 {
		t.Errorf("info = %+v", info)
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], in[i])
		}
	}
}

func TestDecodeWAV_StereoDownmix(t *testing.T) {
	t.Parallel()

	wav := audio.EncodeWAV([]int16{100, 300, -100, -300}, 16000)
	binary.LittleEndian.PutUint16(wav[22:24], 2) // pretend stereo

	got, info, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if info.Channels != 2 {
		t.Errorf("Channels = %d, want 2", info.Channels)
	}
	if len(got) != 2 || got[0] != 200 || got[1] != -200 {
		t.Errorf("downmix = %v, want [200 -200]", got)
	}
}

func TestParseWAV_ExtraChunkBeforeData(t *testing.T) {
	t.Parallel()

	base := audio.EncodeWAV([]int16{7}, 16000)
	// Insert a 3-byte LIST chunk (odd size, padded) between fmt and data.
	list := []byte{'L', 'I', 'S', 'T', 3, 0, 0, 0, 'a', 'b', 'c', 0}
	wav := append(append(append([]byte{}, base[:36]...), list...), base[36:]...)

	info, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if info.DataOffset != 44+len(list) {
		t.Errorf("DataOffset = %d, want %d", info.DataOffset, 44+len(list))
	}
}

func TestParseWAV_Errors(t *testing.T) {
	t.Parallel()

	tests := map[string][]byte{
		"too short": []byte("RIFF"),
		"bad magic": []byte("RIFX\x00\x00\x00\x00WAVEfmt "),
		"no data":   audio.EncodeWAV(nil, 16000)[:36],
		"not wave":  []byte("RIFF\x00\x00\x00\x00AVI LIST"),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := audio.ParseWAV(data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	wavHeaderSize = 44
	bitsPerSample = 16
)

// WAVInfo describes the PCM payload of a RIFF/WAVE container.
type WAVInfo struct {
	// DataOffset is the byte offset of the first sample.
	DataOffset int

	// SampleRate in Hz.
	SampleRate int

	// Channels is the interleaved channel count.
	Channels int
}

// EncodeWAV wraps mono samples in a canonical 44-byte-header RIFF/WAVE file.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	const channels = 1
	dataSize := len(samples) * 2
	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*channels*bitsPerSample/8))
	binary.LittleEndian.PutUint16(buf[32:34], channels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[wavHeaderSize+i*2:], uint16(s))
	}
	return buf
}

// ParseWAV walks the RIFF chunks of data and returns the format and data
// offset. The fmt chunk size may vary, so the header is never assumed to be
// 44 bytes.
func ParseWAV(data []byte) (WAVInfo, error) {
	if len(data) < 12 {
		return WAVInfo{}, errors.New("audio: wav too short")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAVInfo{}, errors.New("audio: not a RIFF/WAVE container")
	}

	info := WAVInfo{}
	haveFmt := false
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return WAVInfo{}, errors.New("audio: truncated fmt chunk")
			}
			if format := binary.LittleEndian.Uint16(data[body:]); format != 1 {
				return WAVInfo{}, fmt.Errorf("audio: unsupported wav format %d", format)
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			if bits := binary.LittleEndian.Uint16(data[body+14:]); bits != bitsPerSample {
				return WAVInfo{}, fmt.Errorf("audio: unsupported bit depth %d", bits)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return WAVInfo{}, errors.New("audio: data chunk before fmt chunk")
			}
			info.DataOffset = body
			return info, nil
		}

		off = body + size
		if size%2 != 0 {
			off++
		}
	}
	return WAVInfo{}, errors.New("audio: wav has no data chunk")
}

// DecodeWAV parses a 16-bit PCM WAV file and returns its samples down-mixed
// to mono together with the format.
func DecodeWAV(data []byte) ([]int16, WAVInfo, error) {
	info, err := ParseWAV(data)
	if err != nil {
		return nil, WAVInfo{}, err
	}
	samples := BytesToInt16(data[info.DataOffset:])
	if info.Channels > 1 {
		samples = downmix(samples, info.Channels)
	}
	return samples, info, nil
}

func downmix(interleaved []int16, channels int) []int16 {
	out := make([]int16, len(interleaved)/channels)
	for i := range out {
		var sum int32
		for c := range channels {
			sum += int32(interleaved[i*channels+c])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

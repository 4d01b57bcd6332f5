package playback

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/docent/internal/device"
)

// framesPerBuffer is the fixed block size of the output stream.
const framesPerBuffer = 1024

// PortAudioDevice plays on a named portaudio output device. An empty Name
// selects the host default.
type PortAudioDevice struct {
	Name string
}

// Open initializes portaudio and starts a mono int16 output stream.
func (d PortAudioDevice) Open(sampleRate int) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	fail := func(err error) (Stream, error) {
		_ = portaudio.Terminate()
		return nil, err
	}

	dev, err := device.Find(d.Name, device.Output)
	if err != nil {
		return fail(err)
	}
	buf := make([]int16, framesPerBuffer)
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultHighOutputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: framesPerBuffer,
	}
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return fail(err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fail(err)
	}

	w := newBlockWriter(buf, func() error {
		err := stream.Write()
		if errors.Is(err, portaudio.OutputUnderflowed) {
			return nil
		}
		return err
	})
	return &paStream{stream: stream, w: w}, nil
}

type paStream struct {
	stream *portaudio.Stream
	w      *blockWriter
}

func (s *paStream) Write(samples []int16) error { return s.w.Write(samples) }

// Close pads and writes the final block, waits for playback to finish and
// releases portaudio.
func (s *paStream) Close() error {
	flushErr := s.w.Flush()
	// Stop returns after all queued buffers have played.
	return errors.Join(flushErr, s.stream.Stop(), s.stream.Close(), portaudio.Terminate())
}

// Abort drops the partial block and everything queued in the device, then
// releases portaudio.
func (s *paStream) Abort() error {
	return errors.Join(s.stream.Abort(), s.stream.Close(), portaudio.Terminate())
}

// blockWriter slices an arbitrary sample stream into the fixed-size blocks a
// blocking portaudio stream requires.
type blockWriter struct {
	block []int16
	n     int
	write func() error
}

func newBlockWriter(block []int16, write func() error) *blockWriter {
	return &blockWriter{block: block, write: write}
}

// Write copies samples into the block and writes every block that fills up.
func (w *blockWriter) Write(samples []int16) error {
	for len(samples) > 0 {
		c := copy(w.block[w.n:], samples)
		w.n += c
		samples = samples[c:]
		if w.n == len(w.block) {
			if err := w.write(); err != nil {
				return err
			}
			w.n = 0
		}
	}
	return nil
}

// Flush pads a partial block with silence and writes it.
func (w *blockWriter) Flush() error {
	if w.n == 0 {
		return nil
	}
	clear(w.block[w.n:])
	w.n = 0
	return w.write()
}

package capture

import (
	"errors"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/docent/internal/device"
)

// paSource is a blocking portaudio input stream.
type paSource struct {
	stream *portaudio.Stream
	buf    []int16
	name   string
}

// OpenPortAudio initializes portaudio and starts a mono int16 input stream
// on the configured device with one frame per buffer. It is the default
// [Opener]. Every failure is a [*DeviceError] and leaves portaudio
// terminated.
func OpenPortAudio(cfg Config) (Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &DeviceError{Op: "initialize", Err: err}
	}
	fail := func(op string, err error) (Source, error) {
		_ = portaudio.Terminate()
		return nil, &DeviceError{Op: op, Err: err}
	}

	dev, err := device.Find(cfg.Device, device.Input)
	if err != nil {
		return fail("open", err)
	}

	s := &paSource{buf: make([]int16, cfg.FrameSize), name: dev.Name}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.FrameSize,
	}
	s.stream, err = portaudio.OpenStream(params, s.buf)
	if err != nil {
		return fail("open", err)
	}
	if err := s.stream.Start(); err != nil {
		_ = s.stream.Close()
		return fail("start", err)
	}
	return s, nil
}

// Name returns the device name.
func (s *paSource) Name() string { return s.name }

// Read blocks until one buffer is available and copies it into buf.
func (s *paSource) Read(buf []int16) error {
	err := s.stream.Read()
	if err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return err
	}
	copy(buf, s.buf)
	if err != nil {
		return ErrOverflow
	}
	return nil
}

// Close stops and closes the stream and releases portaudio.
func (s *paSource) Close() error {
	return errors.Join(s.stream.Stop(), s.stream.Close(), portaudio.Terminate())
}

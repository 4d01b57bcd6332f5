// Package playback speaks replies: it streams synthesised PCM from a
// [tts.Provider] into an output device and returns once the audio has been
// played.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/docent/internal/observe"
	"github.com/MrWong99/docent/pkg/audio"
	"github.com/MrWong99/docent/pkg/provider/tts"
)

// Stream is an open output stream.
type Stream interface {
	// Write queues samples for playback. It may block while the device
	// buffer is full.
	Write(samples []int16) error

	// Close plays out everything written so far, then releases the device.
	Close() error

	// Abort discards queued audio and releases the device immediately.
	Abort() error
}

// Device opens output streams.
type Device interface {
	Open(sampleRate int) (Stream, error)
}

// Speaker synthesises text and plays it on a device.
type Speaker struct {
	tts    tts.Provider
	voice  tts.VoiceProfile
	device Device
	log    *slog.Logger

	metrics  *observe.Metrics
	provider string
}

// Option configures a [Speaker].
type Option func(*Speaker)

// WithDevice replaces the portaudio output device.
func WithDevice(d Device) Option {
	return func(s *Speaker) { s.device = d }
}

// WithMetrics records one provider request per Speak call under the given
// provider name.
func WithMetrics(m *observe.Metrics, provider string) Option {
	return func(s *Speaker) {
		s.metrics = m
		s.provider = provider
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Speaker) { s.log = l }
}

// NewSpeaker returns a Speaker using provider with voice. Without
// [WithDevice] it plays on the output device named outputDevice (empty
// selects the host default).
func NewSpeaker(provider tts.Provider, voice tts.VoiceProfile, outputDevice string, opts ...Option) (*Speaker, error) {
	if provider == nil {
		return nil, errors.New("playback: tts provider must not be nil")
	}
	s := &Speaker{
		tts:    provider,
		voice:  voice,
		device: PortAudioDevice{Name: outputDevice},
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "playback")
	return s, nil
}

// Speak synthesises text and blocks until it has been played. The device is
// opened when the first audio arrives, so a synthesis failure before any
// audio leaves the speaker untouched. On cancellation queued audio is
// discarded rather than played out, and ctx.Err() is returned.
func (s *Speaker) Speak(ctx context.Context, text string) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.metrics != nil {
		defer func() { s.record(ctx, err) }()
	}

	chunks, err := s.tts.Synthesize(ctx, text, s.voice)
	if err != nil {
		return fmt.Errorf("playback: synthesize: %w", err)
	}
	// Release the producer on early return.
	defer func() {
		cancel()
		audio.Drain(chunks)
	}()

	var (
		stream  Stream
		samples int
	)
	defer func() {
		if stream == nil {
			return
		}
		if ctx.Err() != nil {
			if aerr := stream.Abort(); aerr != nil {
				s.log.Warn("aborting output", "err", aerr)
			}
			return
		}
		if cerr := stream.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("playback: close output: %w", cerr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-chunks:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.Debug("reply played", "samples", samples, "sample_rate", s.tts.SampleRate())
				return nil
			}
			if c.Err != nil {
				return fmt.Errorf("playback: synthesize: %w", c.Err)
			}
			if len(c.Samples) == 0 {
				continue
			}
			if stream == nil {
				if stream, err = s.device.Open(s.tts.SampleRate()); err != nil {
					stream = nil
					return fmt.Errorf("playback: open output: %w", err)
				}
			}
			if err := stream.Write(c.Samples); err != nil {
				return fmt.Errorf("playback: write: %w", err)
			}
			samples += len(c.Samples)
		}
	}
}

func (s *Speaker) record(ctx context.Context, err error) {
	switch {
	case err == nil:
		s.metrics.RecordProviderRequest(ctx, s.provider, "tts", "ok")
	case errors.Is(err, context.Canceled):
		s.metrics.RecordProviderRequest(ctx, s.provider, "tts", "cancelled")
	default:
		s.metrics.RecordProviderRequest(ctx, s.provider, "tts", "error")
		s.metrics.RecordProviderError(ctx, s.provider, "tts")
	}
}

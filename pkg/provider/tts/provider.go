// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider turns one reply into a stream of mono int16 PCM chunks at a
// fixed sample rate. Streaming lets playback start on the first sentence
// while later sentences are still being synthesised.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Chunk is one piece of synthesised audio. A chunk with a non-nil Err is the
// last value on the channel.
type Chunk struct {
	// Samples is mono int16 PCM at the provider's SampleRate.
	Samples []int16

	// Err reports a synthesis failure after the stream started.
	Err error
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize starts synthesising text with voice and returns a channel
	// of audio chunks in playback order. The channel is closed when synthesis
	// finishes, fails or ctx is cancelled; callers must drain it.
	//
	// The error return is non-nil only when the stream cannot be started.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (<-chan Chunk, error)

	// SampleRate returns the sample rate of every emitted chunk in Hz.
	SampleRate() int

	// ListVoices returns the voices available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}

// Package stt defines the Provider interface for speech-to-text backends.
//
// A provider receives one finalized utterance as mono int16 PCM and returns
// its transcript. Backends that speak a streaming protocol (Deepgram) stream
// the utterance internally and wait for the final result, so every provider
// exposes the same blocking call.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when Transcribe is called without samples.
var ErrEmptyAudio = errors.New("stt: no audio samples")

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe recognises the speech in samples recorded at sampleRate Hz
	// and returns the final transcript. An utterance containing no
	// recognisable speech yields a Transcript with empty Text and a nil error.
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (Transcript, error)
}

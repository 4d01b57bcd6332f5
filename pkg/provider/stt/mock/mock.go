// Package mock provides a test double for [stt.Provider].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/docent/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the samples passed to Transcribe.
	Samples []int16
	// SampleRate is the sample rate passed to Transcribe.
	SampleRate int
}

// Provider is a mock implementation of stt.Provider.
//
// Results are consumed in order; once exhausted the last entry is repeated.
// When Results is empty, Transcribe returns Transcript{Text: Text}.
type Provider struct {
	mu sync.Mutex

	// Text is returned when Results is empty.
	Text string

	// Results are returned one per call.
	Results []stt.Transcript

	// Err, if non-nil, is returned by every call.
	Err error

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the next scripted result.
func (p *Provider) Transcribe(ctx context.Context, samples []int16, sampleRate int) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := make([]int16, len(samples))
	copy(cp, samples)
	p.Calls = append(p.Calls, TranscribeCall{Samples: cp, SampleRate: sampleRate})

	if p.Err != nil {
		return stt.Transcript{}, p.Err
	}
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}
	if len(p.Results) == 0 {
		return stt.Transcript{Text: p.Text}, nil
	}
	i := len(p.Calls) - 1
	if i >= len(p.Results) {
		i = len(p.Results) - 1
	}
	return p.Results[i], nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

var _ stt.Provider = (*Provider)(nil)

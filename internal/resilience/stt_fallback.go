package resilience

import (
	"context"

	"github.com/MrWong99/docent/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] that fails over between recognizers.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] preferring primary.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another recognizer.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Group exposes the underlying group, for health checks.
func (f *STTFallback) Group() *FallbackGroup[stt.Provider] { return f.group }

// Transcribe recognises samples with the first healthy recognizer.
func (f *STTFallback) Transcribe(ctx context.Context, samples []int16, sampleRate int) (stt.Transcript, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, samples, sampleRate)
	})
}

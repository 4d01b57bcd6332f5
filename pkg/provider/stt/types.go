package stt

import "time"

// Transcript is the recognition result for one utterance.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// backend does not report one.
	Confidence float64

	// Words contains per-word detail when available (Deepgram).
	Words []WordDetail

	// Duration is the length of the recognised audio.
	Duration time.Duration
}

// WordDetail holds per-word metadata from providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a vocabulary hint that raises the recognition probability
// of an uncommon word such as an exhibit name.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "Sundial").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

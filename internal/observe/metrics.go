// Package observe provides application-wide observability primitives for
// docent: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware for the local metrics listener.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from /metrics. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all docent metrics.
const meterName = "github.com/MrWong99/docent"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech recognition latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks dialogue generation latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks synthesis plus playback time.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks a whole round from finalized utterance to the end
	// of playback.
	TurnDuration metric.Float64Histogram

	// --- Audio path counters ---

	// CaptureFrames counts frames read from the input device.
	CaptureFrames metric.Int64Counter

	// CaptureDroppedFrames counts frames dropped because the hand-off queue
	// was full.
	CaptureDroppedFrames metric.Int64Counter

	// CaptureOverflows counts input overflows reported by the audio device.
	CaptureOverflows metric.Int64Counter

	// SegmentUtterances counts finalized utterances handed to the orchestrator.
	SegmentUtterances metric.Int64Counter

	// SegmentDiscarded counts utterances discarded for having too few voiced
	// frames.
	SegmentDiscarded metric.Int64Counter

	// TurnRounds counts conversation rounds. Use with attribute:
	//   attribute.String("outcome", ...)
	TurnRounds metric.Int64Counter

	// --- Provider counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// recognizer, model and synthesis calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.STTDuration, "docent.stt.duration", "Latency of speech recognition."},
		{&met.LLMDuration, "docent.llm.duration", "Latency of dialogue generation."},
		{&met.TTSDuration, "docent.tts.duration", "Time spent synthesising and playing a reply."},
		{&met.TurnDuration, "docent.turn.duration", "Duration of a full conversation round."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.CaptureFrames, "docent.capture.frames", "Frames read from the input device."},
		{&met.CaptureDroppedFrames, "docent.capture.dropped_frames", "Frames dropped because the hand-off queue was full."},
		{&met.CaptureOverflows, "docent.capture.overflows", "Input overflows reported by the audio device."},
		{&met.SegmentUtterances, "docent.segment.utterances", "Utterances finalized by the segmenter."},
		{&met.SegmentDiscarded, "docent.segment.discarded", "Utterances discarded for too few voiced frames."},
		{&met.TurnRounds, "docent.turn.rounds", "Conversation rounds by outcome."},
		{&met.ProviderRequests, "docent.provider.requests", "Total provider API requests by provider, kind, and status."},
		{&met.ProviderErrors, "docent.provider.errors", "Total provider errors by provider and kind."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("docent.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordRound counts one conversation round with its outcome.
func (m *Metrics) RecordRound(ctx context.Context, outcome string) {
	m.TurnRounds.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

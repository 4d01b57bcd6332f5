// Package segment turns the stream of captured frames into utterances.
//
// A [Segmenter] runs a small amplitude-based voice-activity state machine:
//
//	Idle --voiced frame--> Capturing --silence >= Gap--> finalize --> Idle
//
// A frame is voiced when its mean absolute amplitude is strictly above the
// threshold. While Capturing every frame is kept, voiced or not, so the
// emitted utterance runs from the onset frame through the trailing silence.
// The gap is checked after every pull, including pulls that time out, so an
// utterance is finalized even when the queue runs dry.
//
// A Segmenter is driven by a single goroutine; only [Segmenter.SetTuning] and
// [Segmenter.State] may be called concurrently with [Segmenter.Next].
package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/docent/internal/observe"
	"github.com/MrWong99/docent/pkg/audio"
)

// State is the segmenter's voice-activity state.
type State int32

const (
	// Idle means no speech is in progress.
	Idle State = iota

	// Capturing means an utterance is open and frames are being collected.
	Capturing
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// FrameSource delivers captured frames. [*audio.Queue] satisfies it.
//
// Pop must return [audio.ErrTimeout] when nothing arrives within timeout and
// ctx.Err() once ctx is done.
type FrameSource interface {
	Pop(ctx context.Context, timeout time.Duration) (audio.Frame, error)
}

// flusher is implemented by sources that can discard stale frames.
type flusher interface {
	Flush() int
}

// Tuning holds the thresholds that may be changed while the segmenter runs.
type Tuning struct {
	// Threshold is the mean absolute amplitude a frame must exceed to count as
	// voiced.
	Threshold float64

	// Gap is how long the speaker must stay below the threshold before the
	// utterance is finalized.
	Gap time.Duration
}

func (t Tuning) validate() error {
	var errs []error
	if t.Threshold < 0 {
		errs = append(errs, fmt.Errorf("threshold %v must not be negative", t.Threshold))
	}
	if t.Gap <= 0 {
		errs = append(errs, fmt.Errorf("gap %v must be positive", t.Gap))
	}
	return errors.Join(errs...)
}

// Config configures a [Segmenter].
type Config struct {
	// Threshold is the initial voiced-frame amplitude threshold.
	Threshold float64

	// Gap is the initial trailing-silence duration that ends an utterance.
	Gap time.Duration

	// Poll bounds each pull from the source so the gap check runs even while
	// no frames arrive.
	Poll time.Duration

	// MinVoiced is the minimum number of voiced frames an utterance needs to
	// be emitted. Shorter utterances (a cough, a door) are discarded. Values
	// below one are treated as one.
	MinVoiced int

	// MaxDuration force-finalizes an utterance once it reaches this length.
	// Zero means unbounded.
	MaxDuration time.Duration

	// SampleRate of the frames in Hz.
	SampleRate int
}

// Option configures a [Segmenter].
type Option func(*Segmenter)

// WithClock replaces time.Now for gap measurements.
func WithClock(now func() time.Time) Option {
	return func(s *Segmenter) { s.now = now }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Segmenter) { s.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Segmenter) { s.log = l }
}

// Segmenter groups frames into utterances. Create one with [New].
type Segmenter struct {
	src     FrameSource
	cfg     Config
	tuning  atomic.Pointer[Tuning]
	state   atomic.Int32
	now     func() time.Time
	metrics *observe.Metrics
	log     *slog.Logger

	// Open utterance. Only touched by the goroutine calling Next.
	open       *audio.Utterance
	voiced     int
	lastVoiced time.Time
}

// New validates cfg and returns a Segmenter reading from src.
func New(src FrameSource, cfg Config, opts ...Option) (*Segmenter, error) {
	var errs []error
	if src == nil {
		errs = append(errs, errors.New("frame source must not be nil"))
	}
	if cfg.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate %d must be positive", cfg.SampleRate))
	}
	if cfg.Poll <= 0 {
		errs = append(errs, fmt.Errorf("poll interval %v must be positive", cfg.Poll))
	}
	if cfg.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("max duration %v must not be negative", cfg.MaxDuration))
	}
	tuning := Tuning{Threshold: cfg.Threshold, Gap: cfg.Gap}
	if err := tuning.validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	if cfg.MinVoiced < 1 {
		cfg.MinVoiced = 1
	}

	s := &Segmenter{
		src: src,
		cfg: cfg,
		now: time.Now,
		log: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.log = s.log.With("component", "segmenter")
	s.tuning.Store(&tuning)
	return s, nil
}

// SetTuning atomically replaces the threshold and gap. The new values apply
// from the next frame on.
func (s *Segmenter) SetTuning(t Tuning) error {
	if err := t.validate(); err != nil {
		return fmt.Errorf("segment: %w", err)
	}
	s.tuning.Store(&t)
	s.log.Info("tuning updated", "threshold", t.Threshold, "gap", t.Gap)
	return nil
}

// Tuning returns the thresholds currently in effect.
func (s *Segmenter) Tuning() Tuning {
	return *s.tuning.Load()
}

// State reports the current state.
func (s *Segmenter) State() State {
	return State(s.state.Load())
}

// Next blocks until one utterance is finalized and returns it. The caller
// owns the returned utterance; it always contains at least MinVoiced voiced
// frames.
//
// Frames buffered before the call are discarded first, so audio recorded
// while the previous reply was playing is never segmented. When ctx is done
// any open utterance is discarded and ctx.Err() is returned.
func (s *Segmenter) Next(ctx context.Context) (*audio.Utterance, error) {
	if f, ok := s.src.(flusher); ok {
		if n := f.Flush(); n > 0 {
			s.log.Debug("flushed stale frames", "count", n)
		}
	}

	for {
		tuning := s.tuning.Load()

		frame, err := s.src.Pop(ctx, s.cfg.Poll)
		timedOut := errors.Is(err, audio.ErrTimeout)
		if err != nil && !timedOut {
			s.discard("pull failed")
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("segment: pull frame: %w", err)
		}
		now := s.now()

		if !timedOut {
			voiced := frame.MeanAbs() > tuning.Threshold
			switch s.State() {
			case Idle:
				if !voiced {
					continue
				}
				s.open = audio.NewUtterance(s.cfg.SampleRate, frame)
				s.voiced = 1
				s.lastVoiced = now
				s.state.Store(int32(Capturing))
				s.log.Debug("speech started", "seq", frame.Seq, "amplitude", frame.MeanAbs())
			case Capturing:
				s.open.Append(frame)
				if voiced {
					s.voiced++
					s.lastVoiced = now
				}
			}
		}

		if s.State() != Capturing {
			continue
		}
		silent := now.Sub(s.lastVoiced) >= tuning.Gap
		tooLong := s.cfg.MaxDuration > 0 && s.open.Duration() >= s.cfg.MaxDuration
		if !silent && !tooLong {
			continue
		}
		if tooLong && !silent {
			s.log.Debug("utterance reached max duration", "max", s.cfg.MaxDuration)
		}
		if ctx.Err() != nil {
			s.discard("shutdown")
			return nil, ctx.Err()
		}
		if u := s.finalize(ctx); u != nil {
			return u, nil
		}
	}
}

// finalize closes the open utterance and returns it, or nil when it had too
// few voiced frames.
func (s *Segmenter) finalize(ctx context.Context) *audio.Utterance {
	u, voiced := s.open, s.voiced
	s.open, s.voiced = nil, 0
	s.state.Store(int32(Idle))

	if voiced < s.cfg.MinVoiced {
		s.metrics.SegmentDiscarded.Add(ctx, 1)
		s.log.Debug("utterance discarded", "voiced_frames", voiced, "min_voiced", s.cfg.MinVoiced)
		return nil
	}
	s.metrics.SegmentUtterances.Add(ctx, 1)
	s.log.Debug("utterance finalized", "frames", u.Len(), "voiced_frames", voiced, "duration", u.Duration())
	return u
}

// discard drops the open utterance without emitting it.
func (s *Segmenter) discard(reason string) {
	if s.State() == Capturing {
		s.log.Debug("open utterance discarded", "reason", reason, "frames", s.open.Len())
	}
	s.open, s.voiced = nil, 0
	s.state.Store(int32(Idle))
}

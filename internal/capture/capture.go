// Package capture owns the microphone. An [Ingestor] reads fixed-size blocks
// of mono int16 PCM from the input device and pushes each one as an
// [audio.Frame] into the hand-off queue. Capture never waits for the
// consumer: when the queue is full the frame is dropped and counted.
package capture

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

// warnInterval rate-limits drop and overflow warnings.
const warnInterval = 5 * time.Second

// Config configures the input stream.
type Config struct {
	// SampleRate in Hz.
	SampleRate int

	// FrameSize is the number of samples per frame.
	FrameSize int

	// Device selects the input device by name. Empty selects the host default.
	Device string
}

// Source is an open, started input stream.
type Source interface {
	// Read blocks until len(buf) samples are available and copies them into
	// buf. It may return [ErrOverflow] together with valid samples.
	Read(buf []int16) error

	// Close stops the stream and releases the device.
	Close() error
}

// namedSource is implemented by sources that know their device name.
type namedSource interface {
	Name() string
}

// Opener opens and starts a [Source] for cfg. Failures should be
// [*DeviceError] values.
type Opener func(cfg Config) (Source, error)

// Option configures an [Ingestor].
type Option func(*Ingestor)

// WithOpener replaces the portaudio opener. Tests use it to drive the
// ingestor with a scripted source.
func WithOpener(open Opener) Option {
	return func(in *Ingestor) { in.open = open }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(in *Ingestor) { in.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(in *Ingestor) { in.log = l }
}

// Ingestor reads the input device into the hand-off queue.
type Ingestor struct {
	cfg     Config
	q       *audio.Queue
	open    Opener
	metrics *observe.Metrics
	log     *slog.Logger

	running   atomic.Bool
	frames    atomic.Uint64
	overflows atomic.Uint64

	lastDropWarn     time.Time
	lastOverflowWarn time.Time
	droppedAtWarn    uint64
}

// New validates cfg and returns an Ingestor feeding q.
func New(cfg Config, q *audio.Queue, opts ...Option) (*Ingestor, error) {
	var errs []error
	if cfg.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate %d must be positive", cfg.SampleRate))
	}
	if cfg.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("frame size %d must be positive", cfg.FrameSize))
	}
	if q == nil {
		errs = append(errs, errors.New("queue must not be nil"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}

	in := &Ingestor{
		cfg:  cfg,
		q:    q,
		open: OpenPortAudio,
		log:  slog.Default(),
	}
	for _, o := range opts {
		o(in)
	}
	if in.metrics == nil {
		in.metrics = observe.DefaultMetrics()
	}
	in.log = in.log.With("component", "capture")
	return in, nil
}

// Running reports whether the input stream is open and being read.
func (in *Ingestor) Running() bool { return in.running.Load() }

// Frames returns the number of frames read from the device so far.
func (in *Ingestor) Frames() uint64 { return in.frames.Load() }

// Overflows returns the number of device input overflows observed.
func (in *Ingestor) Overflows() uint64 { return in.overflows.Load() }

// Run opens the input stream and pushes frames until ctx is done. It returns
// nil on cancellation and a [*DeviceError] when the device cannot be opened
// or a read fails. The stream is closed on every exit path.
func (in *Ingestor) Run(ctx context.Context) error {
	src, err := in.open(in.cfg)
	if err != nil {
		var de *DeviceError
		if !errors.As(err, &de) {
			err = &DeviceError{Op: "open", Err: err}
		}
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			in.log.Warn("closing input stream", "err", err)
		}
	}()

	in.running.Store(true)
	defer in.running.Store(false)
	device := in.cfg.Device
	if n, ok := src.(namedSource); ok {
		device = n.Name()
	}
	in.log.Info("capture started", "sample_rate", in.cfg.SampleRate, "frame_size", in.cfg.FrameSize, "device", device)

	var seq uint64
	for {
		if ctx.Err() != nil {
			in.log.Info("capture stopped", "frames", in.frames.Load(), "dropped", in.q.Dropped())
			return nil
		}

		buf := make([]int16, in.cfg.FrameSize)
		err := src.Read(buf)
		switch {
		case err == nil:
		case errors.Is(err, ErrOverflow):
			in.overflows.Add(1)
			in.metrics.CaptureOverflows.Add(ctx, 1)
			in.warnOverflow()
		default:
			if ctx.Err() != nil {
				return nil
			}
			return &DeviceError{Op: "read", Err: err}
		}

		f := audio.Frame{Samples: buf, Seq: seq, Arrived: time.Now()}
		seq++
		in.frames.Add(1)
		in.metrics.CaptureFrames.Add(ctx, 1)
		if !in.q.TryPush(f) {
			in.warnDrop()
		}
	}
}

func (in *Ingestor) warnDrop() {
	now := time.Now()
	if now.Sub(in.lastDropWarn) < warnInterval {
		return
	}
	dropped := in.q.Dropped()
	in.log.Warn("hand-off queue full, dropping frames",
		"dropped_since_last_warning", dropped-in.droppedAtWarn,
		"dropped_total", dropped,
		"capacity", in.q.Cap(),
	)
	in.lastDropWarn = now
	in.droppedAtWarn = dropped
}

func (in *Ingestor) warnOverflow() {
	now := time.Now()
	if now.Sub(in.lastOverflowWarn) < warnInterval {
		return
	}
	in.log.Warn("input device overflowed", "overflows_total", in.overflows.Load())
	in.lastOverflowWarn = now
}

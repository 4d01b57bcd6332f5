// Package app wires the docent subsystems into a running assistant.
//
// The App owns the full lifecycle: New builds the capture ingestor, the
// segmenter, the resilient engines and the turn orchestrator from the config;
// Run drives them until the context is cancelled; Shutdown releases what New
// acquired.
//
// For testing, inject doubles through the options (WithCaptureOpener,
// WithOutputDevice, ...). When an option is not provided, New uses the
// portaudio devices named in the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/docent/internal/capture"
	"github.com/MrWong99/docent/internal/config"
	"github.com/MrWong99/docent/internal/health"
	"github.com/MrWong99/docent/internal/observe"
	"github.com/MrWong99/docent/internal/playback"
	"github.com/MrWong99/docent/internal/resilience"
	"github.com/MrWong99/docent/internal/segment"
	"github.com/MrWong99/docent/internal/transcript"
	"github.com/MrWong99/docent/internal/turn"
	"github.com/MrWong99/docent/pkg/audio"
	"github.com/MrWong99/docent/pkg/provider/llm"
	"github.com/MrWong99/docent/pkg/provider/stt"
	"github.com/MrWong99/docent/pkg/provider/tts"
)

// Providers holds one engine per stage, built by main through the config
// registry. The fallbacks are optional.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider

	FallbackSTT stt.Provider
	FallbackLLM llm.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	log            *slog.Logger
	level          *slog.LevelVar
	metrics        *observe.Metrics
	out            io.Writer
	opener         capture.Opener
	output         playback.Device
	metricsHandler http.Handler

	queue        *audio.Queue
	ingestor     *capture.Ingestor
	segmenter    *segment.Segmenter
	corrector    *transcript.Corrector
	recognizer   *resilience.STTFallback
	dialogue     *resilience.LLMFallback
	speaker      *playback.Speaker
	orchestrator *turn.Orchestrator
	health       *health.Handler

	mu       sync.Mutex
	listener net.Listener

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevelVar lets hot reloads change the log level. Without it a changed
// server.log_level is only reported.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetrics sets the metrics instance. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithOutput sets the console the visitor reads. Default: os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithCaptureOpener replaces the portaudio input stream.
func WithCaptureOpener(open capture.Opener) Option {
	return func(a *App) { a.opener = open }
}

// WithOutputDevice replaces the portaudio output device.
func WithOutputDevice(d playback.Device) Option {
	return func(a *App) { a.output = d }
}

// WithMetricsHandler replaces the /metrics handler. Default:
// promhttp.Handler().
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// New creates an App from cfg and the engines in providers.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil || providers.STT == nil || providers.LLM == nil || providers.TTS == nil {
		return nil, errors.New("app: stt, llm and tts providers are required")
	}

	a := &App{
		cfg:            cfg,
		providers:      providers,
		log:            slog.Default(),
		out:            os.Stdout,
		metricsHandler: promhttp.Handler(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initAudio(); err != nil {
		return nil, fmt.Errorf("app: init audio: %w", err)
	}
	a.initEngines()
	if err := a.initSpeaker(); err != nil {
		return nil, fmt.Errorf("app: init speaker: %w", err)
	}
	if err := a.initOrchestrator(); err != nil {
		return nil, fmt.Errorf("app: init orchestrator: %w", err)
	}
	a.initHealth()
	a.initClosers()
	return a, nil
}

// initAudio builds the capture side: queue, ingestor and segmenter.
func (a *App) initAudio() error {
	ac := a.cfg.Audio
	a.queue = audio.NewQueue(ac.QueueSize, audio.WithDropHook(func(audio.Frame) {
		a.metrics.CaptureDroppedFrames.Add(context.Background(), 1)
	}))

	capOpts := []capture.Option{capture.WithMetrics(a.metrics), capture.WithLogger(a.log)}
	if a.opener != nil {
		capOpts = append(capOpts, capture.WithOpener(a.opener))
	}
	ing, err := capture.New(capture.Config{
		SampleRate: ac.SampleRate,
		FrameSize:  ac.FrameSize,
		Device:     ac.InputDevice,
	}, a.queue, capOpts...)
	if err != nil {
		return err
	}
	a.ingestor = ing

	sc := a.cfg.Segmenter
	seg, err := segment.New(a.queue, segment.Config{
		Threshold:   sc.SilenceThreshold,
		Gap:         sc.SilenceGap,
		Poll:        sc.PollInterval,
		MinVoiced:   sc.MinVoicedFrames,
		MaxDuration: sc.MaxUtterance,
		SampleRate:  ac.SampleRate,
	}, segment.WithMetrics(a.metrics), segment.WithLogger(a.log))
	if err != nil {
		return err
	}
	a.segmenter = seg
	return nil
}

// initEngines puts the recognizer and the dialogue model behind breakers,
// with the configured fallbacks.
func (a *App) initEngines() {
	bc := a.cfg.Providers.Breaker
	breaker := resilience.CircuitBreakerConfig{
		MaxFailures:  bc.MaxFailures,
		ResetTimeout: bc.ResetTimeout,
		Logger:       a.log,
	}
	p := a.cfg.Providers

	a.recognizer = resilience.NewSTTFallback(a.providers.STT, p.STT.Name, resilience.FallbackConfig{
		CircuitBreaker: breaker, Kind: "stt", Metrics: a.metrics,
	})
	if a.providers.FallbackSTT != nil {
		a.recognizer.AddFallback(p.FallbackSTT.Name, a.providers.FallbackSTT)
	}

	a.dialogue = resilience.NewLLMFallback(a.providers.LLM, p.LLM.Name, resilience.FallbackConfig{
		CircuitBreaker: breaker, Kind: "llm", Metrics: a.metrics,
	})
	if a.providers.FallbackLLM != nil {
		a.dialogue.AddFallback(p.FallbackLLM.Name, a.providers.FallbackLLM)
	}
}

func (a *App) initSpeaker() error {
	te := a.cfg.Providers.TTS
	opts := []playback.Option{
		playback.WithLogger(a.log),
		playback.WithMetrics(a.metrics, te.Name),
	}
	if a.output != nil {
		opts = append(opts, playback.WithDevice(a.output))
	}
	voice := tts.VoiceProfile{ID: te.Voice, Provider: te.Name}
	sp, err := playback.NewSpeaker(a.providers.TTS, voice, a.cfg.Audio.OutputDevice, opts...)
	if err != nil {
		return err
	}
	a.speaker = sp
	return nil
}

func (a *App) initOrchestrator() error {
	dc := a.cfg.Dialogue
	a.corrector = transcript.NewCorrector(a.cfg.Exhibits, transcript.WithLogger(a.log))

	orch, err := turn.New(
		a.segmenter,
		turn.STTRecognizer{Provider: a.recognizer},
		turn.LLMDialogue{
			Provider:    a.dialogue,
			Temperature: dc.Temperature,
			MaxTokens:   dc.MaxTokens,
			Timeout:     dc.Timeout,
		},
		a.speaker,
		turn.Config{
			SystemPrompt: dc.SystemPrompt,
			MaxTurns:     dc.MaxHistoryTurns,
			Apology:      dc.Apology,
		},
		turn.WithCorrector(a.corrector),
		turn.WithMetrics(a.metrics),
		turn.WithOutput(a.out),
		turn.WithLogger(a.log),
	)
	if err != nil {
		return err
	}
	a.orchestrator = orch
	return nil
}

func (a *App) initHealth() {
	checks := []health.Checker{
		health.Flag("capture", a.ingestor.Running, "input stream is not running"),
	}
	checks = append(checks, a.recognizer.Group().Checkers()...)
	checks = append(checks, a.dialogue.Group().Checkers()...)
	a.health = health.New(checks...)
}

// initClosers registers providers that hold resources (the native whisper
// model, for one).
func (a *App) initClosers() {
	for _, p := range []any{
		a.providers.STT, a.providers.FallbackSTT,
		a.providers.LLM, a.providers.FallbackLLM,
		a.providers.TTS,
	} {
		if c, ok := p.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}
}

// Orchestrator returns the turn orchestrator.
func (a *App) Orchestrator() *turn.Orchestrator { return a.orchestrator }

// Health returns the readiness handler.
func (a *App) Health() *health.Handler { return a.health }

// Handler returns the local HTTP surface: /metrics, /healthz and /readyz,
// wrapped in the observe middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", a.metricsHandler)
	a.health.Register(mux)
	return observe.Middleware(a.metrics)(mux)
}

// MetricsAddr returns the bound address of the metrics listener, or "" when
// it is disabled or not yet listening.
func (a *App) MetricsAddr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Run captures audio and runs conversation rounds until ctx is cancelled.
// It returns nil on cancellation. A capture device failure, a listener
// failure or a metrics server failure stops everything and is returned.
func (a *App) Run(ctx context.Context) error {
	var ln net.Listener
	if addr := a.cfg.Server.MetricsAddr; addr != "" {
		var err error
		if ln, err = net.Listen("tcp", addr); err != nil {
			return fmt.Errorf("app: metrics listener: %w", err)
		}
		a.mu.Lock()
		a.listener = ln
		a.mu.Unlock()
		a.log.Info("metrics listening", "addr", ln.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.ingestor.Run(gctx); err != nil {
			return fmt.Errorf("app: capture: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.orchestrator.Run(gctx); err != nil {
			return fmt.Errorf("app: %w", err)
		}
		return nil
	})

	if ln != nil {
		srv := &http.Server{Handler: a.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// ApplyConfig applies the hot-reloadable parts of a changed config: log
// level, segmenter tuning, system prompt and exhibit vocabulary. Other
// changes are logged and wait for a restart.
func (a *App) ApplyConfig(old, updated *config.Config) {
	d := config.Diff(old, updated)

	if d.LogLevelChanged {
		if a.level != nil {
			a.level.Set(SlogLevel(d.NewLogLevel))
		}
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.TuningChanged {
		err := a.segmenter.SetTuning(segment.Tuning{Threshold: d.NewThreshold, Gap: d.NewSilenceGap})
		if err != nil {
			a.log.Warn("segmenter tuning rejected", "err", err)
		} else {
			a.log.Info("segmenter retuned", "threshold", d.NewThreshold, "gap", d.NewSilenceGap)
		}
	}
	if d.SystemPromptChanged {
		a.orchestrator.SetSystemPrompt(d.NewSystemPrompt)
		a.log.Info("system prompt updated")
	}
	if d.ExhibitsChanged {
		a.corrector.SetNames(d.NewExhibits)
		a.log.Info("exhibit vocabulary updated", "exhibits", len(d.NewExhibits))
	}
	if d.RestartRequired {
		a.log.Warn("config change needs a restart to take effect")
	}
}

// Shutdown releases provider resources. It respects the context deadline:
// if ctx expires before all closers finish, remaining closers are skipped
// and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			if ctx.Err() != nil {
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				err = ctx.Err()
				return
			}
			if cerr := closer(); cerr != nil {
				a.log.Warn("closer error", "index", i, "err", cerr)
			}
		}
	})
	return err
}

// SlogLevel maps a config log level to its slog equivalent. Unknown levels
// map to info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

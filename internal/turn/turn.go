// Package turn runs the conversation loop: wait for an utterance, recognise
// it, ask the dialogue engine for a reply, speak the reply, repeat.
//
// The [Orchestrator] owns the conversation [History] and is the only
// component that talks to the engines. Engine failures end the current round
// but never the loop: a recognition failure leaves the history untouched, a
// dialogue failure is answered with a spoken apology, and a synthesis failure
// falls back to printing the reply.
package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/docent/internal/observe"
	"github.com/MrWong99/docent/pkg/audio"
)

const (
	// DefaultMaxTurns bounds the history when Config.MaxTurns is unset.
	DefaultMaxTurns = 5

	// DefaultApology is spoken when the dialogue engine fails.
	DefaultApology = "Sorry, I encountered an error trying to think."
)

// Listener blocks until the visitor has finished speaking.
type Listener interface {
	Next(ctx context.Context) (*audio.Utterance, error)
}

// Recognizer turns speech into text.
type Recognizer interface {
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error)
}

// Dialogue produces the assistant's reply. history holds the conversation
// before userText, oldest first.
type Dialogue interface {
	Generate(ctx context.Context, systemPrompt string, history []Entry, userText string) (string, error)
}

// Speaker says text aloud and returns once playback has finished.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Corrector repairs known misrecognitions in a transcript.
type Corrector interface {
	Correct(text string) string
}

// Outcome classifies how a round ended.
type Outcome int

const (
	// OutcomeNone means no round took place (the listener failed or the
	// context ended).
	OutcomeNone Outcome = iota
	OutcomeCompleted
	OutcomeEmpty
	OutcomeRecognitionFailed
	OutcomeDialogueFailed
	OutcomeSpokenAsText
)

// String implements fmt.Stringer. The values double as metric labels.
func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeCompleted:
		return "completed"
	case OutcomeEmpty:
		return "empty"
	case OutcomeRecognitionFailed:
		return "recognition_failed"
	case OutcomeDialogueFailed:
		return "dialogue_failed"
	case OutcomeSpokenAsText:
		return "spoken_as_text"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Config configures an [Orchestrator].
type Config struct {
	// SystemPrompt is sent with every dialogue request.
	SystemPrompt string

	// MaxTurns bounds the history to this many rounds. Defaults to
	// [DefaultMaxTurns].
	MaxTurns int

	// Apology is spoken when the dialogue engine fails. Defaults to
	// [DefaultApology].
	Apology string
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithCorrector runs every transcript through c before it is used.
func WithCorrector(c Corrector) Option {
	return func(o *Orchestrator) { o.corrector = c }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithOutput sets the console the visitor reads. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) { o.out = w }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// Orchestrator runs conversation rounds. Create one with [New].
type Orchestrator struct {
	listener   Listener
	recognizer Recognizer
	dialogue   Dialogue
	speaker    Speaker

	apology      string
	systemPrompt atomic.Pointer[string]
	history      *History

	corrector Corrector
	metrics   *observe.Metrics
	out       io.Writer
	log       *slog.Logger
}

// New wires the engines into an Orchestrator.
func New(listener Listener, recognizer Recognizer, dialogue Dialogue, speaker Speaker, cfg Config, opts ...Option) (*Orchestrator, error) {
	var errs []error
	if listener == nil {
		errs = append(errs, errors.New("listener must not be nil"))
	}
	if recognizer == nil {
		errs = append(errs, errors.New("recognizer must not be nil"))
	}
	if dialogue == nil {
		errs = append(errs, errors.New("dialogue must not be nil"))
	}
	if speaker == nil {
		errs = append(errs, errors.New("speaker must not be nil"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("turn: %w", err)
	}

	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.Apology == "" {
		cfg.Apology = DefaultApology
	}

	o := &Orchestrator{
		listener:   listener,
		recognizer: recognizer,
		dialogue:   dialogue,
		speaker:    speaker,
		apology:    cfg.Apology,
		history:    NewHistory(cfg.MaxTurns),
		out:        os.Stdout,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	o.log = o.log.With("component", "turn")
	o.SetSystemPrompt(cfg.SystemPrompt)
	return o, nil
}

// SetSystemPrompt replaces the system prompt from the next round on.
func (o *Orchestrator) SetSystemPrompt(prompt string) {
	o.systemPrompt.Store(&prompt)
}

// SystemPrompt returns the prompt currently in effect.
func (o *Orchestrator) SystemPrompt() string {
	return *o.systemPrompt.Load()
}

// History returns a copy of the conversation so far.
func (o *Orchestrator) History() []Entry {
	return o.history.Snapshot()
}

// Run performs rounds until ctx is done, then returns nil. It returns early
// only when the listener fails, which means the audio path is broken.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		outcome, err := o.Round(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if outcome == OutcomeNone && err != nil {
			return fmt.Errorf("turn: listen: %w", err)
		}
	}
}

// Round performs one round and reports how it ended. Engine failures are
// returned as [*RecognitionError], [*DialogueError] or [*SynthesisError]
// together with the matching outcome; the conversation can continue after
// any of them.
func (o *Orchestrator) Round(ctx context.Context) (Outcome, error) {
	o.say("Listening... (pause to send)")
	u, err := o.listener.Next(ctx)
	if err != nil {
		return OutcomeNone, err
	}
	if ctx.Err() != nil {
		return OutcomeNone, ctx.Err()
	}

	start := time.Now()
	roundID := uuid.NewString()
	ctx, span := observe.StartSpan(ctx, "turn.round", trace.WithAttributes(attribute.String("round_id", roundID)))
	defer span.End()
	log := o.log.With("round_id", roundID, "trace_id", observe.CorrelationID(ctx))

	outcome, err := o.converse(ctx, log, u)
	if outcome == OutcomeNone {
		return outcome, err
	}

	span.SetAttributes(attribute.String("outcome", outcome.String()))
	o.metrics.RecordRound(ctx, outcome.String())
	o.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	log.Info("round finished", "outcome", outcome.String(), "duration", time.Since(start), "history", o.history.Len())
	return outcome, err
}

func (o *Orchestrator) converse(ctx context.Context, log *slog.Logger, u *audio.Utterance) (Outcome, error) {
	if u.Empty() {
		log.Info("empty utterance")
		o.say("No input detected.")
		return OutcomeEmpty, nil
	}
	log.Debug("utterance received", "frames", u.Len(), "duration", u.Duration())

	// Recognise.
	rctx, finish := observe.StartStage(ctx, "turn.recognize", o.metrics.STTDuration)
	text, err := o.recognizer.Transcribe(rctx, u.Samples(), u.SampleRate)
	finish(err)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeNone, ctx.Err()
		}
		log.Warn("recognition failed", "err", err)
		o.say("Sorry, I didn't catch that.")
		return OutcomeRecognitionFailed, &RecognitionError{Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		log.Info("empty transcript")
		o.say("No input detected.")
		return OutcomeEmpty, nil
	}
	if o.corrector != nil {
		if fixed := o.corrector.Correct(text); fixed != text {
			log.Debug("transcript corrected", "from", text, "to", fixed)
			text = fixed
		}
	}
	o.say("You: " + text)

	// Generate.
	prior := o.history.Snapshot()
	o.history.Append(RoleUser, text)
	o.say("Thinking...")

	gctx, finish := observe.StartStage(ctx, "turn.generate", o.metrics.LLMDuration)
	reply, err := o.dialogue.Generate(gctx, o.SystemPrompt(), prior, text)
	reply = strings.TrimSpace(reply)
	if err == nil && reply == "" {
		err = ErrEmptyReply
	}
	finish(err)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeNone, ctx.Err()
		}
		log.Warn("dialogue failed", "err", err)
		o.say("Assistant: " + o.apology)
		if serr := o.speak(ctx, o.apology); serr != nil && ctx.Err() == nil {
			log.Warn("speaking apology failed", "err", serr)
			o.say("Assistant (TTS failed): " + o.apology)
		}
		return OutcomeDialogueFailed, &DialogueError{Err: err}
	}
	o.history.Append(RoleAssistant, reply)
	o.say("Assistant: " + reply)

	// Speak.
	if err := o.speak(ctx, reply); err != nil {
		if ctx.Err() != nil {
			return OutcomeCompleted, nil
		}
		log.Warn("synthesis failed", "err", err)
		o.say("Assistant (TTS failed): " + reply)
		return OutcomeSpokenAsText, &SynthesisError{Text: reply, Err: err}
	}
	return OutcomeCompleted, nil
}

func (o *Orchestrator) speak(ctx context.Context, text string) error {
	sctx, finish := observe.StartStage(ctx, "turn.speak", o.metrics.TTSDuration)
	err := o.speaker.Speak(sctx, text)
	finish(err)
	return err
}

// say writes one line to the visitor's console.
func (o *Orchestrator) say(line string) {
	fmt.Fprintln(o.out, line)
}

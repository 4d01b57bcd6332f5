// Package config provides the configuration schema, loader, provider
// registry and hot-reload watcher for docent.
package config

import (
	"fmt"
	"strings"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. Load it from YAML with [Load]
// or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Dialogue  DialogueConfig  `yaml:"dialogue"`

	// Exhibits lists the names the assistant knows about. They seed the
	// default system prompt, the recognizer keyword hints and the transcript
	// corrector.
	Exhibits []string `yaml:"exhibits"`

	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds logging and the optional local metrics listener.
type ServerConfig struct {
	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the listen address for /metrics, /healthz and /readyz
	// (e.g. "127.0.0.1:9090"). Empty disables the listener.
	MetricsAddr string `yaml:"metrics_addr"`
}

// AudioConfig describes the capture and playback devices.
type AudioConfig struct {
	// SampleRate of the microphone stream in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameSize is the number of samples per captured frame. Default: 1600
	// (100 ms at 16 kHz).
	FrameSize int `yaml:"frame_size"`

	// QueueSize is the capacity of the hand-off queue in frames. Default: 64.
	QueueSize int `yaml:"queue_size"`

	// InputDevice and OutputDevice select devices by name. Empty selects the
	// host default.
	InputDevice  string `yaml:"input_device"`
	OutputDevice string `yaml:"output_device"`
}

// SegmenterConfig tunes utterance detection.
type SegmenterConfig struct {
	// SilenceThreshold is the mean absolute amplitude a frame must exceed to
	// count as voiced. Default: 500. Hot-reloadable.
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// SilenceGap is the quiet time that ends an utterance. Default: 2s.
	// Hot-reloadable.
	SilenceGap time.Duration `yaml:"silence_gap"`

	// PollInterval bounds each wait for a frame. Default: 1s.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MinVoicedFrames discards utterances with fewer voiced frames.
	// Default: 2.
	MinVoicedFrames int `yaml:"min_voiced_frames"`

	// MaxUtterance force-finalizes long utterances. Default: 30s.
	MaxUtterance time.Duration `yaml:"max_utterance"`
}

// DialogueConfig configures the conversation.
type DialogueConfig struct {
	// SystemPrompt is sent with every request. When empty a museum guide
	// prompt listing the exhibits is used. Hot-reloadable.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxHistoryTurns bounds the conversation memory. Default: 5.
	MaxHistoryTurns int `yaml:"max_history_turns"`

	// Apology is spoken when the dialogue engine fails.
	Apology string `yaml:"apology"`

	// Timeout bounds a single completion. Default: 60s.
	Timeout time.Duration `yaml:"timeout"`

	// Temperature and MaxTokens are passed to the model. Zero keeps the
	// provider default.
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ProvidersConfig selects the engine behind each stage. The fallback entries
// are optional; an empty Name disables them.
type ProvidersConfig struct {
	STT         ProviderEntry `yaml:"stt"`
	LLM         ProviderEntry `yaml:"llm"`
	TTS         ProviderEntry `yaml:"tts"`
	FallbackSTT ProviderEntry `yaml:"fallback_stt"`
	FallbackLLM ProviderEntry `yaml:"fallback_llm"`

	// Breaker tunes the circuit breakers around the recognizer and the
	// dialogue engine.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes provider circuit breakers.
type BreakerConfig struct {
	// MaxFailures opens a breaker. Default: 3.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long an open breaker waits before probing.
	// Default: 30s.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
// Name looks up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation (e.g. "whisper", "ollama").
	Name string `yaml:"name"`

	// APIKey authenticates against hosted APIs. "${VAR}" references are
	// expanded from the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider.
	Model string `yaml:"model"`

	// Voice selects the synthesis voice (TTS only).
	Voice string `yaml:"voice"`

	// Options holds provider-specific settings.
	Options map[string]any `yaml:"options"`
}

// Defaults used by [ApplyDefaults].
const (
	DefaultSampleRate      = 16000
	DefaultFrameSize       = 1600
	DefaultQueueSize       = 64
	DefaultThreshold       = 500
	DefaultSilenceGap      = 2 * time.Second
	DefaultPollInterval    = time.Second
	DefaultMinVoicedFrames = 2
	DefaultMaxUtterance    = 30 * time.Second
	DefaultMaxHistoryTurns = 5
	DefaultApology         = "Sorry, I encountered an error trying to think."
	DefaultDialogueTimeout = 60 * time.Second
	DefaultBreakerFailures = 3
	DefaultBreakerReset    = 30 * time.Second
)

// ApplyDefaults fills every zero field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	a := &cfg.Audio
	setDefault(&a.SampleRate, DefaultSampleRate)
	setDefault(&a.FrameSize, DefaultFrameSize)
	setDefault(&a.QueueSize, DefaultQueueSize)

	s := &cfg.Segmenter
	setDefault(&s.SilenceThreshold, DefaultThreshold)
	setDefault(&s.SilenceGap, DefaultSilenceGap)
	setDefault(&s.PollInterval, DefaultPollInterval)
	setDefault(&s.MinVoicedFrames, DefaultMinVoicedFrames)
	setDefault(&s.MaxUtterance, DefaultMaxUtterance)

	d := &cfg.Dialogue
	setDefault(&d.MaxHistoryTurns, DefaultMaxHistoryTurns)
	setDefault(&d.Apology, DefaultApology)
	setDefault(&d.Timeout, DefaultDialogueTimeout)
	if d.SystemPrompt == "" {
		d.SystemPrompt = MuseumPrompt(cfg.Exhibits)
	}

	b := &cfg.Providers.Breaker
	setDefault(&b.MaxFailures, DefaultBreakerFailures)
	setDefault(&b.ResetTimeout, DefaultBreakerReset)
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// MuseumPrompt builds the default system prompt for a guide who knows the
// given exhibits.
func MuseumPrompt(exhibits []string) string {
	var b strings.Builder
	b.WriteString("You are the Grand Museum Assistant, a friendly guide speaking with a visitor.")
	if len(exhibits) > 0 {
		b.WriteString(" You have encyclopedic knowledge of the following exhibits:\n\n")
		for i, e := range exhibits {
			fmt.Fprintf(&b, "%d. %s\n", i+1, e)
		}
		b.WriteString("\nAnswer using only this knowledge; you may infer logically but do not invent new exhibits.")
	}
	b.WriteString(" Your answers are spoken aloud, so answer concisely in plain sentences without lists or markup.")
	return b.String()
}

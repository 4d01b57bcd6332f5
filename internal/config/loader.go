package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "whisper-native", "deepgram"},
	"llm": {"ollama", "openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "openai-compatible"},
	"tts": {"coqui", "elevenlabs"},
}

// Load reads the YAML configuration file at path, applies defaults and
// returns a validated [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands "${VAR}" references
// from the environment, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	a := cfg.Audio
	if a.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", a.SampleRate))
	}
	if a.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", a.FrameSize))
	}
	if a.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("audio.queue_size %d must be positive", a.QueueSize))
	}

	s := cfg.Segmenter
	if s.SilenceThreshold < 0 || s.SilenceThreshold > 32768 {
		errs = append(errs, fmt.Errorf("segmenter.silence_threshold %.1f is out of range [0, 32768]", s.SilenceThreshold))
	}
	if s.SilenceGap < 0 {
		errs = append(errs, fmt.Errorf("segmenter.silence_gap %v must not be negative", s.SilenceGap))
	}
	if s.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("segmenter.poll_interval %v must not be negative", s.PollInterval))
	}
	if s.MinVoicedFrames < 0 {
		errs = append(errs, fmt.Errorf("segmenter.min_voiced_frames %d must not be negative", s.MinVoicedFrames))
	}
	if s.MaxUtterance < 0 {
		errs = append(errs, fmt.Errorf("segmenter.max_utterance %v must not be negative", s.MaxUtterance))
	}

	d := cfg.Dialogue
	if d.MaxHistoryTurns < 0 {
		errs = append(errs, fmt.Errorf("dialogue.max_history_turns %d must not be negative", d.MaxHistoryTurns))
	}
	if d.Temperature < 0 || d.Temperature > 2 {
		errs = append(errs, fmt.Errorf("dialogue.temperature %.2f is out of range [0, 2]", d.Temperature))
	}
	if d.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("dialogue.max_tokens %d must not be negative", d.MaxTokens))
	}

	seen := make(map[string]int, len(cfg.Exhibits))
	for i, e := range cfg.Exhibits {
		key := strings.ToLower(strings.TrimSpace(e))
		if key == "" {
			errs = append(errs, fmt.Errorf("exhibits[%d] must not be empty", i))
			continue
		}
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("exhibits[%d] %q is a duplicate of exhibits[%d]", i, e, prev))
		}
		seen[key] = i
	}

	p := cfg.Providers
	for _, req := range []struct {
		kind  string
		entry ProviderEntry
	}{
		{"stt", p.STT},
		{"llm", p.LLM},
		{"tts", p.TTS},
	} {
		if req.entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.name is required", req.kind))
		}
	}
	validateProviderName("stt", p.STT.Name)
	validateProviderName("llm", p.LLM.Name)
	validateProviderName("tts", p.TTS.Name)
	validateProviderName("stt", p.FallbackSTT.Name)
	validateProviderName("llm", p.FallbackLLM.Name)

	if p.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("providers.breaker.max_failures %d must not be negative", p.Breaker.MaxFailures))
	}
	if p.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("providers.breaker.reset_timeout %v must not be negative", p.Breaker.ResetTimeout))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

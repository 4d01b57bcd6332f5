package config

import (
	"maps"
	"reflect"
	"slices"
	"time"
)

// ConfigDiff describes what changed between two configs. Only fields that can
// be applied without restarting the capture device or the engines are
// tracked; everything else needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	TuningChanged bool
	NewThreshold  float64
	NewSilenceGap time.Duration

	SystemPromptChanged bool
	NewSystemPrompt     string

	ExhibitsChanged bool
	NewExhibits     []string

	// RestartRequired is set when a field outside the hot-reloadable set
	// differs. The new values are ignored until the process restarts.
	RestartRequired bool
}

// Changed reports whether any hot-reloadable field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.TuningChanged || d.SystemPromptChanged || d.ExhibitsChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Segmenter.SilenceThreshold != new.Segmenter.SilenceThreshold ||
		old.Segmenter.SilenceGap != new.Segmenter.SilenceGap {
		d.TuningChanged = true
		d.NewThreshold = new.Segmenter.SilenceThreshold
		d.NewSilenceGap = new.Segmenter.SilenceGap
	}

	if old.Dialogue.SystemPrompt != new.Dialogue.SystemPrompt {
		d.SystemPromptChanged = true
		d.NewSystemPrompt = new.Dialogue.SystemPrompt
	}

	if !slices.Equal(old.Exhibits, new.Exhibits) {
		d.ExhibitsChanged = true
		d.NewExhibits = slices.Clone(new.Exhibits)
	}

	d.RestartRequired = old.Server.MetricsAddr != new.Server.MetricsAddr ||
		old.Audio != new.Audio ||
		old.Segmenter.PollInterval != new.Segmenter.PollInterval ||
		old.Segmenter.MinVoicedFrames != new.Segmenter.MinVoicedFrames ||
		old.Segmenter.MaxUtterance != new.Segmenter.MaxUtterance ||
		old.Dialogue.MaxHistoryTurns != new.Dialogue.MaxHistoryTurns ||
		old.Dialogue.Apology != new.Dialogue.Apology ||
		old.Dialogue.Timeout != new.Dialogue.Timeout ||
		old.Dialogue.Temperature != new.Dialogue.Temperature ||
		old.Dialogue.MaxTokens != new.Dialogue.MaxTokens ||
		!providersEqual(old.Providers, new.Providers)

	return d
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.STT, b.STT) &&
		entryEqual(a.LLM, b.LLM) &&
		entryEqual(a.TTS, b.TTS) &&
		entryEqual(a.FallbackSTT, b.FallbackSTT) &&
		entryEqual(a.FallbackLLM, b.FallbackLLM) &&
		a.Breaker == b.Breaker
}

func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL &&
		a.Model == b.Model && a.Voice == b.Voice &&
		maps.EqualFunc(a.Options, b.Options, func(x, y any) bool { return reflect.DeepEqual(x, y) })
}

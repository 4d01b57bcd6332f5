// Command docent is a voice-driven museum guide: it listens on the
// microphone, transcribes what the visitor says, asks a language model for
// an answer and speaks it back.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/docent/internal/app"
	"github.com/MrWong99/docent/internal/config"
	"github.com/MrWong99/docent/internal/device"
	"github.com/MrWong99/docent/internal/observe"
	"github.com/MrWong99/docent/pkg/provider/llm"
	"github.com/MrWong99/docent/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/docent/pkg/provider/llm/openai"
	"github.com/MrWong99/docent/pkg/provider/stt"
	"github.com/MrWong99/docent/pkg/provider/stt/deepgram"
	"github.com/MrWong99/docent/pkg/provider/stt/whisper"
	"github.com/MrWong99/docent/pkg/provider/tts"
	"github.com/MrWong99/docent/pkg/provider/tts/coqui"
	"github.com/MrWong99/docent/pkg/provider/tts/elevenlabs"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "docent.yaml", "path to the YAML configuration file")
	listDevices := flag.Bool("list-devices", false, "list audio devices and exit")
	listVoices := flag.Bool("list-voices", false, "list the voices of the configured TTS provider and exit")
	flag.Parse()

	if *listDevices {
		return printDevices()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "docent: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "docent: %v\n", err)
		}
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Exhibits)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *listVoices {
		return printVoices(ctx, cfg, reg)
	}

	slog.Info("docent starting", "version", version, "config", *configPath, "log_level", cfg.Server.LogLevel)

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "docent",
		ServiceVersion: version,
		MetricsEnabled: cfg.Server.MetricsAddr != "",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(cfg, providers,
		app.WithLevelVar(level),
		app.WithMetrics(tel.Metrics),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("ready, press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil {
		slog.Error("run error", "err", err)
		code = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if code == 0 {
		fmt.Println("Goodbye!")
	}
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Exhibit names become recognizer keyword hints where the backend supports
// them.
func registerBuiltinProviders(reg *config.Registry, exhibits []string) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	for _, name := range anyllm.Backends {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// Any server speaking the OpenAI chat API (vLLM, LM Studio, ...).
	reg.RegisterLLM("openai-compatible", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oaillm.WithTimeout(d))
		}
		key := entry.APIKey
		if key == "" {
			// Local servers ignore the key but the client requires one.
			key = "unused"
		}
		return oaillm.New(key, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if len(exhibits) > 0 {
			boosts := make([]stt.KeywordBoost, len(exhibits))
			for i, e := range exhibits {
				boosts[i] = stt.KeywordBoost{Keyword: e, Boost: 2}
			}
			opts = append(opts, deepgram.WithKeywords(boosts))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithAPIBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	for _, kind := range []string{"stt", "llm", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates every provider named in cfg.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	p := cfg.Providers
	ps := &app.Providers{}
	var err error

	if ps.STT, err = reg.CreateSTT(p.STT); err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", p.STT.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", p.STT.Name)

	if ps.LLM, err = reg.CreateLLM(p.LLM); err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", p.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", p.LLM.Name)

	if ps.TTS, err = reg.CreateTTS(p.TTS); err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", p.TTS.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", p.TTS.Name)

	if name := p.FallbackSTT.Name; name != "" {
		if ps.FallbackSTT, err = reg.CreateSTT(p.FallbackSTT); err != nil {
			return nil, fmt.Errorf("create fallback stt provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "stt", "name", name, "fallback", true)
	}
	if name := p.FallbackLLM.Name; name != "" {
		if ps.FallbackLLM, err = reg.CreateLLM(p.FallbackLLM); err != nil {
			return nil, fmt.Errorf("create fallback llm provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "llm", "name", name, "fallback", true)
	}
	return ps, nil
}

// ── Listing ───────────────────────────────────────────────────────────────────

func printDevices() int {
	devs, err := device.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "docent: %v\n", err)
		return 1
	}
	for _, d := range devs {
		mark := " "
		switch {
		case d.DefaultInput && d.DefaultOutput:
			mark = "*"
		case d.DefaultInput:
			mark = ">"
		case d.DefaultOutput:
			mark = "<"
		}
		fmt.Printf("%s %3d  %-40s  in:%d out:%d  %.0f Hz  (%s)\n",
			mark, d.Index, d.Name, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate, d.HostAPI)
	}
	return 0
}

func printVoices(ctx context.Context, cfg *config.Config, reg *config.Registry) int {
	p, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		fmt.Fprintf(os.Stderr, "docent: %v\n", err)
		return 1
	}
	voices, err := p.ListVoices(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "docent: list voices: %v\n", err)
		return 1
	}
	for _, v := range voices {
		fmt.Printf("%-30s %s\n", v.ID, v.Name)
	}
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          docent, startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("STT", providerLabel(cfg.Providers.STT))
	printRow("LLM", providerLabel(cfg.Providers.LLM))
	printRow("TTS", providerLabel(cfg.Providers.TTS))
	if cfg.Providers.FallbackSTT.Name != "" {
		printRow("STT fallback", providerLabel(cfg.Providers.FallbackSTT))
	}
	if cfg.Providers.FallbackLLM.Name != "" {
		printRow("LLM fallback", providerLabel(cfg.Providers.FallbackLLM))
	}
	printRow("Input", deviceLabel(cfg.Audio.InputDevice))
	printRow("Output", deviceLabel(cfg.Audio.OutputDevice))
	printRow("Threshold", fmt.Sprintf("%.0f", cfg.Segmenter.SilenceThreshold))
	printRow("Silence gap", cfg.Segmenter.SilenceGap.String())
	printRow("Exhibits", fmt.Sprintf("%d", len(cfg.Exhibits)))
	if cfg.Server.MetricsAddr != "" {
		printRow("Metrics", cfg.Server.MetricsAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(e config.ProviderEntry) string {
	if e.Model != "" {
		return e.Name + " / " + e.Model
	}
	return e.Name
}

func deviceLabel(name string) string {
	if name == "" {
		return "(default)"
	}
	return name
}

func printRow(label, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optDuration parses a duration string ("30s") from a provider Options map.
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}

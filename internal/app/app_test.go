package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/docent/internal/app"
	"github.com/MrWong99/docent/internal/capture"
	"github.com/MrWong99/docent/internal/config"
	"github.com/MrWong99/docent/internal/observe"
	"github.com/MrWong99/docent/internal/playback"
	"github.com/MrWong99/docent/pkg/provider/llm"
	llmmock "github.com/MrWong99/docent/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/docent/pkg/provider/stt/mock"
	"github.com/MrWong99/docent/pkg/provider/tts"
	ttsmock "github.com/MrWong99/docent/pkg/provider/tts/mock"
)

// syncBuffer is a console the test can read while the app writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// speechSource alternates short bursts of loud frames with silence, paced
// like a real device.
type speechSource struct {
	n      atomic.Int64
	closed atomic.Bool
}

func (s *speechSource) Read(buf []int16) error {
	time.Sleep(2 * time.Millisecond)
	amp := int16(0)
	if s.n.Add(1)%40 < 5 {
		amp = 3000
	}
	for i := range buf {
		buf[i] = amp
	}
	return nil
}

func (s *speechSource) Close() error {
	s.closed.Store(true)
	return nil
}

type nullStream struct{ written atomic.Int64 }

func (s *nullStream) Write(samples []int16) error {
	s.written.Add(int64(len(samples)))
	return nil
}
func (s *nullStream) Close() error { return nil }
func (s *nullStream) Abort() error { return nil }

type nullDevice struct{ stream nullStream }

func (d *nullDevice) Open(int) (playback.Stream, error) { return &d.stream, nil }

func testConfig() *config.Config {
	cfg := &config.Config{
		Audio: config.AudioConfig{SampleRate: 16000, FrameSize: 160},
		Segmenter: config.SegmenterConfig{
			SilenceGap:      40 * time.Millisecond,
			PollInterval:    10 * time.Millisecond,
			MinVoicedFrames: 1,
		},
		Exhibits: []string{"Sundial", "Silk Fan"},
		Providers: config.ProvidersConfig{
			STT: config.ProviderEntry{Name: "whisper"},
			LLM: config.ProviderEntry{Name: "ollama"},
			TTS: config.ProviderEntry{Name: "coqui", Voice: "p225"},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

type rig struct {
	app    *app.App
	src    *speechSource
	out    *syncBuffer
	stt    *sttmock.Provider
	llm    *llmmock.Provider
	device *nullDevice
	level  *slog.LevelVar
}

func newRig(t *testing.T, cfg *config.Config) *rig {
	t.Helper()
	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	r := &rig{
		src:    &speechSource{},
		out:    &syncBuffer{},
		stt:    &sttmock.Provider{Text: "tell me about the sun dial"},
		llm:    &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "It dates from 1500 BCE."}},
		device: &nullDevice{},
		level:  new(slog.LevelVar),
	}
	a, err := app.New(cfg, &app.Providers{
		STT: r.stt,
		LLM: r.llm,
		TTS: &ttsmock.Provider{Chunks: []tts.Chunk{{Samples: []int16{1, 2, 3}}}},
	},
		app.WithMetrics(metrics),
		app.WithOutput(r.out),
		app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		app.WithLevelVar(r.level),
		app.WithCaptureOpener(func(capture.Config) (capture.Source, error) { return r.src, nil }),
		app.WithOutputDevice(r.device),
		app.WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "# metrics\n")
		})),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.app = a
	return r
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	if _, err := app.New(testConfig(), &app.Providers{STT: &sttmock.Provider{}}); err == nil {
		t.Error("New without llm and tts succeeded")
	}
	if _, err := app.New(testConfig(), nil); err == nil {
		t.Error("New without providers succeeded")
	}
	if _, err := app.New(nil, &app.Providers{}); err == nil {
		t.Error("New without config succeeded")
	}
}

func TestNew_InvalidAudioConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Audio.FrameSize = -1
	_, err := app.New(cfg, &app.Providers{STT: &sttmock.Provider{}, LLM: &llmmock.Provider{}, TTS: &ttsmock.Provider{}})
	if err == nil || !strings.Contains(err.Error(), "init audio") {
		t.Errorf("err = %v, want an init audio error", err)
	}
}

func TestApp_RunsConversationRounds(t *testing.T) {
	t.Parallel()

	r := newRig(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.app.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for !strings.Contains(r.out.String(), "Assistant: It dates from 1500 BCE.") {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("no reply within deadline; console:\n%s", r.out.String())
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if !strings.Contains(r.out.String(), "You: tell me about the Sundial") {
		t.Errorf("transcript was not corrected; console:\n%s", r.out.String())
	}
	calls := r.llm.Calls()
	if len(calls) == 0 {
		t.Fatal("dialogue engine was never called")
	}
	first := calls[0].Req
	if !strings.Contains(first.SystemPrompt, "Sundial") {
		t.Errorf("system prompt = %q, want the museum prompt", first.SystemPrompt)
	}
	if last := first.Messages[len(first.Messages)-1]; last.Content != "tell me about the Sundial" {
		t.Errorf("user message = %q", last.Content)
	}
	if r.device.stream.written.Load() == 0 {
		t.Error("no audio was played")
	}
	if !r.src.closed.Load() {
		t.Error("input stream was not closed")
	}
}

func TestApp_CaptureFailureStopsRun(t *testing.T) {
	t.Parallel()

	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	deviceErr := errors.New("no such device")
	a, err := app.New(testConfig(), &app.Providers{STT: &sttmock.Provider{}, LLM: &llmmock.Provider{}, TTS: &ttsmock.Provider{}},
		app.WithMetrics(metrics),
		app.WithOutput(io.Discard),
		app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		app.WithCaptureOpener(func(capture.Config) (capture.Source, error) { return nil, deviceErr }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(context.Background()) }()
	select {
	case err := <-errCh:
		var de *capture.DeviceError
		if !errors.As(err, &de) || !errors.Is(err, deviceErr) {
			t.Errorf("err = %v, want a capture device error", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the capture failure")
	}
}

func TestApp_Handler(t *testing.T) {
	t.Parallel()

	r := newRig(t, testConfig())
	srv := httptest.NewServer(r.app.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "# metrics") {
		t.Errorf("/metrics = %d %q", resp.StatusCode, body)
	}

	// Capture has not started, so the assistant is not ready.
	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	var ready struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ready); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable || ready.Status != "fail" {
		t.Errorf("/readyz = %d %q", resp.StatusCode, ready.Status)
	}
	for _, name := range []string{"capture", "circuit:whisper", "circuit:ollama"} {
		if _, ok := ready.Checks[name]; !ok {
			t.Errorf("readiness checks missing %q: %v", name, ready.Checks)
		}
	}
	if ready.Checks["circuit:ollama"] != "ok" {
		t.Errorf("circuit:ollama = %q, want ok", ready.Checks["circuit:ollama"])
	}

	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz = %d", resp.StatusCode)
	}
}

func TestApp_MetricsListener(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.MetricsAddr = "127.0.0.1:0"
	r := newRig(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.app.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for r.app.MetricsAddr() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	addr := r.app.MetricsAddr()
	if addr == "" {
		cancel()
		t.Fatal("metrics listener did not start")
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		cancel()
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestApp_ApplyConfig(t *testing.T) {
	t.Parallel()

	old := testConfig()
	r := newRig(t, old)

	updated := testConfig()
	updated.Server.LogLevel = config.LogDebug
	updated.Segmenter.SilenceThreshold = 900
	updated.Dialogue.SystemPrompt = "Be brief."
	r.app.ApplyConfig(old, updated)

	if r.level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", r.level.Level())
	}
	if got := r.app.Orchestrator().SystemPrompt(); got != "Be brief." {
		t.Errorf("system prompt = %q", got)
	}

	// An invalid threshold is rejected and leaves the app running.
	bad := testConfig()
	bad.Segmenter.SilenceThreshold = -5
	r.app.ApplyConfig(updated, bad)
}

func TestApp_Shutdown(t *testing.T) {
	t.Parallel()

	r := newRig(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.app.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	// Idempotent.
	if err := r.app.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"":              slog.LevelInfo,
	}
	for in, want := range tests {
		if got := app.SlogLevel(in); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

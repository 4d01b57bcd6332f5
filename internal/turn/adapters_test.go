package turn_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/docent/internal/turn"
	"github.com/MrWong99/docent/pkg/provider/llm"
	llmmock "github.com/MrWong99/docent/pkg/provider/llm/mock"
	"github.com/MrWong99/docent/pkg/provider/stt"
	sttmock "github.com/MrWong99/docent/pkg/provider/stt/mock"
)

func TestSTTRecognizer(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{Results: []stt.Transcript{{Text: "where is the globe", Confidence: 0.9}}}
	r := turn.STTRecognizer{Provider: p}

	got, err := r.Transcribe(context.Background(), []int16{1, 2, 3}, 16000)
	if err != nil || got != "where is the globe" {
		t.Fatalf("Transcribe = %q, %v", got, err)
	}
	if p.CallCount() != 1 || p.Calls[0].SampleRate != 16000 || !slices.Equal(p.Calls[0].Samples, []int16{1, 2, 3}) {
		t.Errorf("calls = %+v", p.Calls)
	}

	boom := errors.New("whisper down")
	p.Err = boom
	if _, err := r.Transcribe(context.Background(), []int16{1}, 16000); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestLLMDialogue_BuildsRequest(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "It is a sundial."}}
	d := turn.LLMDialogue{Provider: p, Temperature: 0.7, MaxTokens: 120}

	history := []turn.Entry{
		{Role: turn.RoleUser, Text: "hi"},
		{Role: turn.RoleAssistant, Text: "Welcome!"},
	}
	got, err := d.Generate(context.Background(), "Be brief.", history, "what is this")
	if err != nil || got != "It is a sundial." {
		t.Fatalf("Generate = %q, %v", got, err)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	want := []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "Welcome!"},
		{Role: llm.RoleUser, Content: "what is this"},
	}
	if !slices.Equal(req.Messages, want) {
		t.Errorf("messages = %+v, want %+v", req.Messages, want)
	}
	if req.SystemPrompt != "Be brief." || req.Temperature != 0.7 || req.MaxTokens != 120 {
		t.Errorf("request = %+v", req)
	}
}

func TestLLMDialogue_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("rate limited")
	tests := []struct {
		name string
		p    *llmmock.Provider
		want error
	}{
		{"provider error", &llmmock.Provider{CompleteErr: boom}, boom},
		{"empty content", &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{}}, turn.ErrEmptyReply},
		{"nil response", &llmmock.Provider{}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := turn.LLMDialogue{Provider: tc.p}.Generate(context.Background(), "", nil, "q")
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLLMDialogue_Timeout(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteFunc: func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	d := turn.LLMDialogue{Provider: p, Timeout: 10 * time.Millisecond}
	if _, err := d.Generate(context.Background(), "", nil, "q"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

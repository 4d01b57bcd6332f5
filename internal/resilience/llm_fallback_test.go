package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/docent/pkg/provider/llm"
	llmmock "github.com/MrWong99/docent/pkg/provider/llm/mock"
)

func TestLLMFallback_Complete_PrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "hello from primary"}}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "hello from secondary"}}

	fb := NewLLMFallback(primary, "ollama", FallbackConfig{})
	fb.AddFallback("openai", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hello from primary" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(primary.Calls()) != 1 || len(secondary.Calls()) != 0 {
		t.Errorf("calls = %d/%d, want 1/0", len(primary.Calls()), len(secondary.Calls()))
	}
}

func TestLLMFallback_Complete_Failover(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errors.New("connection refused")}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "hello from secondary"}}

	fb := NewLLMFallback(primary, "ollama", FallbackConfig{})
	fb.AddFallback("openai", secondary)

	req := llm.CompletionRequest{
		SystemPrompt: "Be brief.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	}
	resp, err := fb.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hello from secondary" {
		t.Errorf("content = %q", resp.Content)
	}
	calls := secondary.Calls()
	if len(calls) != 1 || calls[0].Req.SystemPrompt != "Be brief." || len(calls[0].Req.Messages) != 1 {
		t.Errorf("secondary calls = %+v", calls)
	}
}

func TestLLMFallback_Complete_AllFail(t *testing.T) {
	t.Parallel()

	fb := NewLLMFallback(&llmmock.Provider{CompleteErr: errors.New("a")}, "a", FallbackConfig{})
	fb.AddFallback("b", &llmmock.Provider{CompleteErr: errors.New("b")})

	if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
	if len(fb.Group().Checkers()) != 2 {
		t.Error("expected one checker per backend")
	}
}

package turn

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/docent/pkg/provider/llm"
	"github.com/MrWong99/docent/pkg/provider/stt"
)

// STTRecognizer adapts an [stt.Provider] to [Recognizer].
type STTRecognizer struct {
	Provider stt.Provider
}

// Transcribe implements [Recognizer].
func (r STTRecognizer) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	tr, err := r.Provider.Transcribe(ctx, samples, sampleRate)
	if err != nil {
		return "", err
	}
	return tr.Text, nil
}

// LLMDialogue adapts an [llm.Provider] to [Dialogue].
type LLMDialogue struct {
	Provider llm.Provider

	// Temperature and MaxTokens are passed through. Zero keeps the provider
	// default.
	Temperature float64
	MaxTokens   int

	// Timeout bounds a single completion. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// Generate implements [Dialogue].
func (d LLMDialogue) Generate(ctx context.Context, systemPrompt string, history []Entry, userText string) (string, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	msgs := make([]llm.Message, 0, len(history)+1)
	for _, e := range history {
		msgs = append(msgs, llm.Message{Role: string(e.Role), Content: e.Text})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: userText})

	resp, err := d.Provider.Complete(ctx, llm.CompletionRequest{
		Messages:     msgs,
		SystemPrompt: systemPrompt,
		Temperature:  d.Temperature,
		MaxTokens:    d.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errors.New("turn: dialogue returned no response")
	}
	if resp.Content == "" {
		return "", ErrEmptyReply
	}
	return resp.Content, nil
}

var (
	_ Recognizer = STTRecognizer{}
	_ Dialogue   = LLMDialogue{}
)

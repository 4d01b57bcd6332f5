// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API.
//
// Each Transcribe call opens one streaming session, sends the utterance as
// binary PCM messages, asks Deepgram to flush with a CloseStream message and
// collects every final result until the server ends the stream.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/docent/pkg/audio"
	"github.com/MrWong99/docent/pkg/provider/stt"
	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// chunkDuration is how much audio each binary message carries.
	chunkDuration = 100 * time.Millisecond
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithKeywords sets vocabulary hints sent with every session.
func WithKeywords(keywords []stt.KeywordBoost) Option {
	return func(p *Provider) { p.keywords = append([]stt.KeywordBoost(nil), keywords...) }
}

// WithEndpoint overrides the streaming endpoint (ws:// or wss://).
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	endpoint string
	model    string
	language string
	keywords []stt.KeywordBoost
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		endpoint: deepgramEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams samples to Deepgram and returns the concatenated final
// results.
func (p *Provider) Transcribe(ctx context.Context, samples []int16, sampleRate int) (stt.Transcript, error) {
	if len(samples) == 0 {
		return stt.Transcript{}, stt.ErrEmptyAudio
	}
	if sampleRate <= 0 {
		return stt.Transcript{}, fmt.Errorf("deepgram: invalid sample rate %d", sampleRate)
	}

	wsURL, err := p.buildURL(sampleRate)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	var (
		collected stt.Transcript
		finals    []string
		confSum   float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sendAudio(gctx, conn, samples, sampleRate)
	})
	g.Go(func() error {
		for {
			_, msg, err := conn.Read(gctx)
			if err != nil {
				if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
					return nil
				}
				return fmt.Errorf("deepgram: read: %w", err)
			}
			resp, ok := parseDeepgramResponse(msg)
			if !ok {
				continue
			}
			if resp.done {
				return nil
			}
			if !resp.isFinal || resp.transcript.Text == "" {
				continue
			}
			finals = append(finals, resp.transcript.Text)
			confSum += resp.transcript.Confidence
			collected.Words = append(collected.Words, resp.transcript.Words...)
		}
	})
	if err := g.Wait(); err != nil {
		return stt.Transcript{}, err
	}
	_ = conn.Close(websocket.StatusNormalClosure, "transcription complete")

	collected.Text = strings.Join(finals, " ")
	if len(finals) > 0 {
		collected.Confidence = confSum / float64(len(finals))
	}
	collected.Duration = time.Duration(int64(len(samples)) * int64(time.Second) / int64(sampleRate))
	return collected, nil
}

// sendAudio writes samples in chunkDuration pieces followed by CloseStream.
func sendAudio(ctx context.Context, conn *websocket.Conn, samples []int16, sampleRate int) error {
	step := int(int64(sampleRate) * int64(chunkDuration) / int64(time.Second))
	if step <= 0 {
		step = len(samples)
	}
	for start := 0; start < len(samples); start += step {
		end := min(start+step, len(samples))
		if err := conn.Write(ctx, websocket.MessageBinary, audio.Int16ToBytes(samples[start:end])); err != nil {
			return fmt.Errorf("deepgram: write audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: write CloseStream: %w", err)
	}
	return nil
}

// buildURL constructs the streaming endpoint URL for one session.
func (p *Provider) buildURL(sampleRate int) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("channels", "1")
	q.Set("sample_rate", strconv.Itoa(sampleRate))

	for _, kw := range p.keywords {
		// Deepgram keyword format: word:boost (e.g., "Sundial:5")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure of a Deepgram stream message.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type parsedResponse struct {
	transcript stt.Transcript
	isFinal    bool
	// done is set for the Metadata message Deepgram sends after CloseStream.
	done bool
}

// parseDeepgramResponse decodes a raw message. It reports false for messages
// that should be ignored.
func parseDeepgramResponse(data []byte) (parsedResponse, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return parsedResponse{}, false
	}
	switch resp.Type {
	case "Metadata":
		return parsedResponse{done: true}, true
	case "Results":
	default:
		return parsedResponse{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return parsedResponse{}, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, stt.WordDetail{
			Word:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}

	return parsedResponse{
		transcript: stt.Transcript{
			Text:       strings.TrimSpace(alt.Transcript),
			Confidence: alt.Confidence,
			Words:      words,
		},
		isFinal: resp.IsFinal,
	}, true
}

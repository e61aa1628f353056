package provider

import (
	"context"
	"fmt"

	"github.com/zulandar/parley/internal/store"
	"golang.org/x/sync/semaphore"
	"google.golang.org/genai"
)

// ProviderGemini is the registry id of the Gemini adapter.
const ProviderGemini = "gemini"

// GeminiAdapter talks to the Google Gemini API. It is the multimodal
// adapter: an inline audio payload is attached to the final user part.
type GeminiAdapter struct {
	client *genai.Client
	model  string
	turns  store.TurnStore
	sem    *semaphore.Weighted
}

// GeminiOpts holds parameters for creating a GeminiAdapter.
type GeminiOpts struct {
	APIKey        string
	Model         string
	Turns         store.TurnStore
	MaxConcurrent int64
}

// NewGemini creates a Gemini adapter.
func NewGemini(ctx context.Context, opts GeminiOpts) (*GeminiAdapter, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("provider: gemini: api key is required")
	}
	if opts.Turns == nil {
		return nil, fmt.Errorf("provider: gemini: turn store is required")
	}
	if opts.Model == "" {
		opts.Model = "gemini-2.0-flash"
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: gemini: create client: %w", err)
	}
	return &GeminiAdapter{
		client: client,
		model:  opts.Model,
		turns:  opts.Turns,
		sem:    semaphore.NewWeighted(opts.MaxConcurrent),
	}, nil
}

// ID returns the registry id.
func (a *GeminiAdapter) ID() string { return ProviderGemini }

// Send records the user turn, calls the vendor, and records the assistant
// turn on success. An audio payload rides along with the final user part.
func (a *GeminiAdapter) Send(ctx context.Context, userID int64, message string, opts SendOpts) Result {
	history := beginExchange(ctx, a.turns, a.ID(), userID, message, opts.SystemPrompt)
	return a.generate(ctx, userID, history, opts)
}

// SendBatch replaces the conversation with msgs wholesale and calls the
// vendor on the resulting transcript.
func (a *GeminiAdapter) SendBatch(ctx context.Context, userID int64, msgs []store.Turn) Result {
	replaceHistory(ctx, a.turns, a.ID(), userID, msgs)
	return a.generate(ctx, userID, msgs, SendOpts{})
}

// ClearHistory closes the user's conversation with this provider.
func (a *GeminiAdapter) ClearHistory(ctx context.Context, userID int64) {
	a.turns.ClearHistory(ctx, userID, a.ID())
}

// HistoryLength returns the open conversation's turn count.
func (a *GeminiAdapter) HistoryLength(ctx context.Context, userID int64) int {
	return a.turns.HistoryLength(ctx, userID, a.ID())
}

func (a *GeminiAdapter) generate(ctx context.Context, userID int64, history []store.Turn, opts SendOpts) Result {
	model := a.model
	if opts.Model != "" {
		model = opts.Model
	}
	contents, systemPrompt := toGeminiContents(history, opts)

	var cfg *genai.GenerateContentConfig
	if systemPrompt != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
		}
	}

	if err := a.sem.Acquire(ctx, 1); err != nil {
		return Failure("gemini: %v", err)
	}
	defer a.sem.Release(1)

	resp, err := a.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return Failure("gemini: %v", err)
	}
	content := resp.Text()
	if content == "" {
		return Failure("gemini: empty response")
	}

	recordReply(ctx, a.turns, a.ID(), userID, content)
	return Result{
		Content: content,
		Success: true,
		Metadata: map[string]string{
			"provider": a.ID(),
			"model":    model,
		},
	}
}

// toGeminiContents maps the transcript to the Gemini wire shape. Gemini has
// no system role inside contents; the system turn (or the explicit system
// prompt) becomes the system instruction, and assistant maps to "model".
func toGeminiContents(history []store.Turn, opts SendOpts) ([]*genai.Content, string) {
	systemPrompt := opts.SystemPrompt
	contents := make([]*genai.Content, 0, len(history))
	for _, t := range history {
		if t.Role == store.RoleSystem {
			systemPrompt = t.Content
			continue
		}
		// Gemini's dialogue roles are "user" and "model".
		role := "user"
		if t.Role == store.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: t.Content}},
		})
	}
	if len(opts.Audio) > 0 && len(contents) > 0 {
		last := contents[len(contents)-1]
		mime := opts.AudioMIME
		if mime == "" {
			mime = "audio/ogg"
		}
		last.Parts = append([]*genai.Part{{
			InlineData: &genai.Blob{MIMEType: mime, Data: opts.Audio},
		}}, last.Parts...)
	}
	return contents, systemPrompt
}

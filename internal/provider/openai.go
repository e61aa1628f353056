package provider

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/zulandar/parley/internal/store"
	"golang.org/x/sync/semaphore"
)

// ProviderOpenAI is the registry id of the OpenAI adapter.
const ProviderOpenAI = "openai"

// OpenAIAdapter talks to the OpenAI chat completions API. It is text-only;
// inline audio payloads are rejected.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
	turns  store.TurnStore
	sem    *semaphore.Weighted
}

// OpenAIOpts holds parameters for creating an OpenAIAdapter.
type OpenAIOpts struct {
	APIKey        string
	Model         string
	Turns         store.TurnStore
	MaxConcurrent int64 // bound on simultaneous vendor calls; defaults to 5
}

// NewOpenAI creates an OpenAI adapter.
func NewOpenAI(opts OpenAIOpts) (*OpenAIAdapter, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("provider: openai: api key is required")
	}
	if opts.Turns == nil {
		return nil, fmt.Errorf("provider: openai: turn store is required")
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	return &OpenAIAdapter{
		client: openai.NewClient(opts.APIKey),
		model:  opts.Model,
		turns:  opts.Turns,
		sem:    semaphore.NewWeighted(opts.MaxConcurrent),
	}, nil
}

// ID returns the registry id.
func (a *OpenAIAdapter) ID() string { return ProviderOpenAI }

// Send records the user turn, calls the vendor, and records the assistant
// turn on success.
func (a *OpenAIAdapter) Send(ctx context.Context, userID int64, message string, opts SendOpts) Result {
	if len(opts.Audio) > 0 {
		return PermanentFailure("openai: audio input is not supported")
	}
	history := beginExchange(ctx, a.turns, a.ID(), userID, message, opts.SystemPrompt)
	return a.complete(ctx, userID, history, opts.Model)
}

// SendBatch replaces the conversation with msgs wholesale and calls the
// vendor on the resulting transcript.
func (a *OpenAIAdapter) SendBatch(ctx context.Context, userID int64, msgs []store.Turn) Result {
	replaceHistory(ctx, a.turns, a.ID(), userID, msgs)
	return a.complete(ctx, userID, msgs, "")
}

// ClearHistory closes the user's conversation with this provider.
func (a *OpenAIAdapter) ClearHistory(ctx context.Context, userID int64) {
	a.turns.ClearHistory(ctx, userID, a.ID())
}

// HistoryLength returns the open conversation's turn count.
func (a *OpenAIAdapter) HistoryLength(ctx context.Context, userID int64) int {
	return a.turns.HistoryLength(ctx, userID, a.ID())
}

func (a *OpenAIAdapter) complete(ctx context.Context, userID int64, history []store.Turn, modelOverride string) Result {
	model := a.model
	if modelOverride != "" {
		model = modelOverride
	}

	// The vendor client blocks for the whole round trip; the semaphore keeps
	// one user's slow calls from occupying every worker.
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return Failure("openai: %v", err)
	}
	defer a.sem.Release(1)

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(history),
	})
	if err != nil {
		return Failure("openai: %v", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Failure("openai: empty completion")
	}
	content := resp.Choices[0].Message.Content

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

func toOpenAIMessages(history []store.Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, t := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    t.Role,
			Content: t.Content,
		})
	}
	return msgs
}

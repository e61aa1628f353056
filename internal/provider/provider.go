// Package provider integrates LLM vendors behind a common adapter interface
// and routes calls through a gateway with per-attempt timeout and retry.
package provider

import (
	"context"
	"fmt"

	"github.com/zulandar/parley/internal/store"
)

// Result is the normalized outcome of one provider call. Failures travel as
// values, not errors: Success is false and Err carries the description.
// Permanent marks a failure no retry can cure, such as an unsupported input;
// the gateway gives up on it immediately instead of burning the retry budget.
type Result struct {
	Content   string
	Success   bool
	Err       string
	Permanent bool
	Metadata  map[string]string
}

// Failure builds a failed Result.
func Failure(format string, args ...any) Result {
	return Result{Success: false, Err: fmt.Sprintf(format, args...)}
}

// PermanentFailure builds a failed Result that must not be retried.
func PermanentFailure(format string, args ...any) Result {
	return Result{Success: false, Err: fmt.Sprintf(format, args...), Permanent: true}
}

// SendOpts carries the optional parts of a send.
type SendOpts struct {
	SystemPrompt string
	Model        string // overrides the adapter's default model
	Audio        []byte // inline binary payload for multimodal adapters
	AudioMIME    string
}

// Adapter is one LLM vendor integration. Adapters own all Turn creation and
// conversation open/close transitions for their provider: Send appends the
// user turn, performs the vendor call, and appends the assistant turn only
// on success, so a failed call leaves no phantom reply for a retry or
// fallback to see.
type Adapter interface {
	ID() string
	Send(ctx context.Context, userID int64, message string, opts SendOpts) Result
	SendBatch(ctx context.Context, userID int64, msgs []store.Turn) Result
	ClearHistory(ctx context.Context, userID int64)
	HistoryLength(ctx context.Context, userID int64) int
}

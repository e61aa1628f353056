// Package dialogue runs the per-user turn loop of a training case: it calls
// the provider gateway through the case's fallback chain, parses the
// structured reply, tracks progress, and decides when the case is complete.
package dialogue

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/zulandar/parley/internal/cases"
	"github.com/zulandar/parley/internal/provider"
	"github.com/zulandar/parley/internal/store"
)

// Session state tags. The zero tag is idle: no case in progress.
const (
	StateAwaitingInput  = "awaiting_input"
	StateReviewing      = "reviewing"
	StateReviewComplete = "review_complete"
)

// reviewerIDOffset derives the reviewer identity from the user id, keeping
// the reviewer's conversation context separate from the dialogue's.
const reviewerIDOffset int64 = 999999

// replyAfterReview is returned for any turn submitted once the review is out.
const replyAfterReview = "The review for this case has already been produced. Start the case again to practice once more, or pick another case."

// replyChainFailed is the user-facing message for a total chain failure.
// The aggregated per-attempt detail travels separately for privileged
// callers.
const replyChainFailed = "Sorry, the conversation partner is unavailable right now. Please try again in a moment."

// CompletionKind says which condition ended the case.
type CompletionKind string

const (
	CompletionNone       CompletionKind = ""
	CompletionCoverage   CompletionKind = "coverage"
	CompletionExhaustion CompletionKind = "exhaustion"
)

// Gateway is the provider surface the orchestrator needs.
type Gateway interface {
	Send(ctx context.Context, providerID string, userID int64, message string, opts provider.SendOpts) provider.Result
	Clear(ctx context.Context, providerID string, userID int64)
}

// Recorder receives case lifecycle events for statistics. Implementations
// must not fail the turn; the orchestrator treats every call as
// fire-and-forget.
type Recorder interface {
	CaseStarted(ctx context.Context, userID int64, caseID string)
	CaseCompleted(ctx context.Context, userID int64, caseID string, kind CompletionKind)
	CaseAutoFinished(ctx context.Context, userID int64, caseID string)
	ClaimFirstCompletion(ctx context.Context, userID int64) bool
}

// TurnResult is the outcome of one submitted turn.
type TurnResult struct {
	ReplyText  string
	Components map[string]bool
	TurnCount  int
	Achieved   []string

	Completion      CompletionKind
	FirstCompletion bool
	Review          string

	// Failed is set on total chain failure; Detail carries the aggregated
	// per-attempt errors for privileged callers.
	Failed bool
	Detail string
}

// Orchestrator drives the dialogue state machine for every user.
type Orchestrator struct {
	gateway  Gateway
	states   store.StateStore
	registry *cases.Registry
	stats    Recorder
}

// Opts holds the Orchestrator's dependencies. Stats is optional.
type Opts struct {
	Gateway  Gateway
	States   store.StateStore
	Registry *cases.Registry
	Stats    Recorder
}

// New creates an Orchestrator.
func New(opts Opts) (*Orchestrator, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("dialogue: gateway is required")
	}
	if opts.States == nil {
		return nil, fmt.Errorf("dialogue: state store is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("dialogue: case registry is required")
	}
	return &Orchestrator{
		gateway:  opts.Gateway,
		states:   opts.States,
		registry: opts.Registry,
		stats:    opts.Stats,
	}, nil
}

// StartCase resets the user's dialogue: provider histories for every
// provider in the case's chains are cleared, progress is emptied, and the
// session enters AwaitingInput.
func (o *Orchestrator) StartCase(ctx context.Context, userID int64, caseID string) error {
	c, err := o.registry.Case(caseID)
	if err != nil {
		return err
	}
	o.clearCaseHistories(ctx, userID, c)

	key := store.ForUser(userID)
	o.states.SetData(ctx, key, newProgress(caseID).save())
	o.states.SetState(ctx, key, StateAwaitingInput)
	if o.stats != nil {
		o.stats.CaseStarted(ctx, userID, caseID)
	}
	return nil
}

// TurnOpts carries the optional parts of a submitted turn.
type TurnOpts struct {
	Audio     []byte
	AudioMIME string
}

// SubmitTurn processes one user turn. Turns are accepted only in
// AwaitingInput; a turn after the review gets a fixed reply, and a turn
// with no case in progress is an error.
func (o *Orchestrator) SubmitTurn(ctx context.Context, userID int64, caseID, text string, opts TurnOpts) (*TurnResult, error) {
	c, err := o.registry.Case(caseID)
	if err != nil {
		return nil, err
	}
	key := store.ForUser(userID)
	switch state := o.states.State(ctx, key); state {
	case StateAwaitingInput:
	case StateReviewComplete:
		return &TurnResult{ReplyText: replyAfterReview}, nil
	case StateReviewing:
		return nil, fmt.Errorf("dialogue: user %d: review in progress", userID)
	default:
		return nil, fmt.Errorf("dialogue: user %d: no case in progress", userID)
	}

	progress := loadProgress(o.states.Data(ctx, key))
	if progress.CaseID != caseID {
		return nil, fmt.Errorf("dialogue: user %d: case %q is not the active case", userID, caseID)
	}

	result := o.callChain(ctx, userID, c.Chain(cases.ChannelDialogue), c.UserPrompt(text), c.SystemPrompt, opts)
	if !result.Success {
		// Progress does not advance on total failure; the user can retry
		// the same turn.
		return &TurnResult{
			ReplyText: replyChainFailed,
			Failed:    true,
			Detail:    result.Err,
			TurnCount: progress.TurnCount,
			Achieved:  progress.Achieved.Sorted(),
		}, nil
	}

	reply := parseReply(result.Content, c.ComponentKeys)
	progress.Entries = append(progress.Entries,
		Entry{Role: c.UserLabel, Text: text},
		Entry{Role: c.CounterpartLabel, Text: reply.Text},
	)
	for name, achieved := range reply.Components {
		if achieved {
			progress.Achieved.Add(name)
		}
	}
	progress.TurnCount++
	o.states.SetData(ctx, key, progress.save())

	turn := &TurnResult{
		ReplyText:  reply.Text,
		Components: reply.Components,
		TurnCount:  progress.TurnCount,
		Achieved:   progress.Achieved.Sorted(),
		Completion: o.evaluateCompletion(c, progress),
	}
	if turn.Completion == CompletionNone {
		return turn, nil
	}

	o.states.SetState(ctx, key, StateReviewing)
	turn.Review = o.runReview(ctx, userID, c, progress)
	o.states.SetState(ctx, key, StateReviewComplete)

	if o.stats != nil {
		o.stats.CaseCompleted(ctx, userID, caseID, turn.Completion)
		o.stats.CaseAutoFinished(ctx, userID, caseID)
		// Only a genuine coverage completion may claim the one-time
		// celebration; running out of turns must not burn it.
		if turn.Completion == CompletionCoverage {
			turn.FirstCompletion = o.stats.ClaimFirstCompletion(ctx, userID)
		}
	}
	return turn, nil
}

// RequestReview produces the critique on demand, independent of automatic
// completion. The session moves to ReviewComplete.
func (o *Orchestrator) RequestReview(ctx context.Context, userID int64, caseID string) (string, error) {
	c, err := o.registry.Case(caseID)
	if err != nil {
		return "", err
	}
	key := store.ForUser(userID)
	if state := o.states.State(ctx, key); state == "" {
		return "", fmt.Errorf("dialogue: user %d: no case in progress", userID)
	}
	progress := loadProgress(o.states.Data(ctx, key))

	o.states.SetState(ctx, key, StateReviewing)
	review := o.runReview(ctx, userID, c, progress)
	o.states.SetState(ctx, key, StateReviewComplete)
	return review, nil
}

// StopCase clears provider histories and removes the session entirely.
func (o *Orchestrator) StopCase(ctx context.Context, userID int64, caseID string) error {
	c, err := o.registry.Case(caseID)
	if err != nil {
		return err
	}
	o.clearCaseHistories(ctx, userID, c)

	key := store.ForUser(userID)
	o.states.SetData(ctx, key, map[string]any{})
	o.states.SetState(ctx, key, "")
	return nil
}

// State returns the user's current session state tag.
func (o *Orchestrator) State(ctx context.Context, userID int64) string {
	return o.states.State(ctx, store.ForUser(userID))
}

// evaluateCompletion checks coverage before exhaustion, so full coverage on
// the budget-exhausting turn still counts as coverage.
func (o *Orchestrator) evaluateCompletion(c *cases.Case, p *Progress) CompletionKind {
	if len(p.Achieved) >= c.RequiredComponents && p.TurnCount >= c.MinTurns {
		return CompletionCoverage
	}
	if p.TurnCount >= c.MaxTurns {
		return CompletionExhaustion
	}
	return CompletionNone
}

// callChain walks the fallback chain in order, returning the first
// successful Result. Each failed attempt's conversation is cleared before
// moving on, and every attempt's error is kept in the aggregate.
func (o *Orchestrator) callChain(ctx context.Context, userID int64, chain []cases.Attempt, message, systemPrompt string, opts TurnOpts) provider.Result {
	var errs []string
	for _, attempt := range chain {
		result := o.gateway.Send(ctx, attempt.Provider, userID, message, provider.SendOpts{
			SystemPrompt: systemPrompt,
			Model:        attempt.Model,
			Audio:        opts.Audio,
			AudioMIME:    opts.AudioMIME,
		})
		if result.Success {
			return result
		}
		errs = append(errs, fmt.Sprintf("%s:%s => %s", attempt.Provider, attempt.Model, result.Err))
		o.gateway.Clear(ctx, attempt.Provider, userID)
	}
	aggregated := strings.Join(errs, "; ")
	log.Printf("dialogue: user %d: all chain attempts failed: %s", userID, aggregated)
	return provider.Failure("%s", aggregated)
}

// clearCaseHistories closes the user's conversations with every provider in
// the case's chains, the reviewer identity's included.
func (o *Orchestrator) clearCaseHistories(ctx context.Context, userID int64, c *cases.Case) {
	for _, id := range c.Providers() {
		o.gateway.Clear(ctx, id, userID)
		o.gateway.Clear(ctx, id, userID+reviewerIDOffset)
	}
}

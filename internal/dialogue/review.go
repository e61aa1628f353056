package dialogue

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/zulandar/parley/internal/cases"
)

// reviewTooShort is returned without calling any provider when there is no
// transcript to review.
const reviewTooShort = "The dialogue is too short to review. Exchange a few messages with the counterpart first."

// runReview produces the end-of-case critique. The reviewer talks under a
// derived identity so its conversation context never mixes with the live
// dialogue's. A panic anywhere in the sub-flow is converted into a failure
// message; the caller never sees one.
func (o *Orchestrator) runReview(ctx context.Context, userID int64, c *cases.Case, progress *Progress) (review string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("dialogue: review for user %d panicked: %v", userID, r)
			review = fmt.Sprintf("Review failed: unexpected error (%v)", r)
		}
	}()

	transcript := buildTranscript(progress.Entries)
	if strings.TrimSpace(transcript) == "" {
		return reviewTooShort
	}

	reviewerID := userID + reviewerIDOffset
	for _, attempt := range c.Chain(cases.ChannelReviewer) {
		o.gateway.Clear(ctx, attempt.Provider, reviewerID)
	}

	result := o.callChain(ctx, reviewerID, c.Chain(cases.ChannelReviewer),
		c.ReviewerPrompt(transcript), c.ReviewerSystemPrompt(), TurnOpts{})
	if !result.Success {
		return fmt.Sprintf("Review failed: %s", result.Err)
	}
	return formatReview(parseReview(result.Content))
}

// buildTranscript renders dialogue entries as speaker-prefixed lines joined
// by blank lines. Entries missing a role or text are skipped.
func buildTranscript(entries []Entry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Role == "" || e.Text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", e.Role, e.Text))
	}
	return strings.Join(lines, "\n\n")
}

// formatReview renders the parsed review as user-facing text.
func formatReview(r Review) string {
	var b strings.Builder
	b.WriteString(r.Overall)
	if len(r.GoodPoints) > 0 {
		b.WriteString("\n\nWhat went well:")
		for _, p := range r.GoodPoints {
			b.WriteString("\n- ")
			b.WriteString(p)
		}
	}
	if len(r.ImprovementPoints) > 0 {
		b.WriteString("\n\nWhat to improve:")
		for _, p := range r.ImprovementPoints {
			b.WriteString("\n- ")
			b.WriteString(p)
		}
	}
	return b.String()
}

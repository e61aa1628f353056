// Package cases holds the training case catalog: per-case provider chains,
// completion budgets and prompt templates.
package cases

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zulandar/parley/internal/config"
)

// Channel names one of a case's two provider chains.
type Channel string

const (
	ChannelDialogue Channel = "dialogue"
	ChannelReviewer Channel = "reviewer"
)

// Attempt is one (provider, model) entry of a fallback chain. Chains are
// tried in order; the first successful attempt wins.
type Attempt struct {
	Provider string
	Model    string
}

// Case is one training case.
type Case struct {
	ID       string
	Dialogue []Attempt
	Reviewer []Attempt

	RequiredComponents int
	MinTurns           int
	MaxTurns           int
	ComponentKeys      []string

	UserLabel        string
	CounterpartLabel string

	SystemPrompt           string
	userPromptTemplate     string
	reviewerSystemPrompt   string
	reviewerPromptTemplate string
}

// Chain returns the case's provider chain for the given channel.
func (c *Case) Chain(channel Channel) []Attempt {
	if channel == ChannelReviewer {
		return c.Reviewer
	}
	return c.Dialogue
}

// UserPrompt renders the per-turn user prompt. The template's {input}
// placeholder is replaced with the user's message; a case without a
// template passes the message through verbatim.
func (c *Case) UserPrompt(input string) string {
	if c.userPromptTemplate == "" {
		return input
	}
	return strings.ReplaceAll(c.userPromptTemplate, "{input}", input)
}

// ReviewerSystemPrompt returns the system prompt for the review chain.
func (c *Case) ReviewerSystemPrompt() string {
	return c.reviewerSystemPrompt
}

// ReviewerPrompt renders the review request from the dialogue transcript.
func (c *Case) ReviewerPrompt(transcript string) string {
	if c.reviewerPromptTemplate == "" {
		return transcript
	}
	return strings.ReplaceAll(c.reviewerPromptTemplate, "{transcript}", transcript)
}

// Providers returns the distinct provider IDs referenced by either of the
// case's chains, sorted.
func (c *Case) Providers() []string {
	seen := map[string]struct{}{}
	for _, a := range c.Dialogue {
		seen[a.Provider] = struct{}{}
	}
	for _, a := range c.Reviewer {
		seen[a.Provider] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Registry is the case catalog, keyed by case ID.
type Registry struct {
	cases map[string]*Case
	order []string
}

// NewRegistry builds the catalog from validated configuration.
func NewRegistry(cfgs []config.CaseConfig) (*Registry, error) {
	r := &Registry{cases: map[string]*Case{}}
	for _, cc := range cfgs {
		if _, ok := r.cases[cc.ID]; ok {
			return nil, fmt.Errorf("cases: duplicate case id %q", cc.ID)
		}
		r.cases[cc.ID] = &Case{
			ID:                     cc.ID,
			Dialogue:               toAttempts(cc.Dialogue),
			Reviewer:               toAttempts(cc.Reviewer),
			RequiredComponents:     cc.RequiredComponents,
			MinTurns:               cc.MinTurns,
			MaxTurns:               cc.MaxTurns,
			ComponentKeys:          append([]string(nil), cc.ComponentKeys...),
			UserLabel:              cc.UserLabel,
			CounterpartLabel:       cc.CounterpartLabel,
			SystemPrompt:           cc.SystemPrompt,
			userPromptTemplate:     cc.UserPromptTemplate,
			reviewerSystemPrompt:   cc.ReviewerSystemPrompt,
			reviewerPromptTemplate: cc.ReviewerPromptTemplate,
		}
		r.order = append(r.order, cc.ID)
	}
	return r, nil
}

// Case looks up a case by ID.
func (r *Registry) Case(id string) (*Case, error) {
	c, ok := r.cases[id]
	if !ok {
		return nil, fmt.Errorf("cases: unknown case %q", id)
	}
	return c, nil
}

// IDs returns all case IDs in configuration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

func toAttempts(cfgs []config.AttemptConfig) []Attempt {
	attempts := make([]Attempt, 0, len(cfgs))
	for _, a := range cfgs {
		attempts = append(attempts, Attempt{Provider: a.Provider, Model: a.Model})
	}
	return attempts
}

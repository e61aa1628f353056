package provider

import (
	"context"

	"github.com/zulandar/parley/internal/store"
)

// Shared conversation bookkeeping used by every adapter. Kept as free
// functions over the TurnStore so adapters stay plain structs implementing
// the Adapter interface.

// beginExchange records the user's message and returns the transcript to
// send to the vendor. On the first turn of a conversation, a non-empty
// system prompt is inserted as a system turn ahead of the user's.
func beginExchange(ctx context.Context, turns store.TurnStore, providerID string, userID int64, message, systemPrompt string) []store.Turn {
	history := turns.History(ctx, userID, providerID)
	if len(history) == 0 && systemPrompt != "" {
		turns.SaveTurn(ctx, userID, providerID, store.Turn{Role: store.RoleSystem, Content: systemPrompt})
	}
	turns.SaveTurn(ctx, userID, providerID, store.Turn{Role: store.RoleUser, Content: message})
	return turns.History(ctx, userID, providerID)
}

// recordReply appends the assistant's turn. Called only after a successful
// vendor call.
func recordReply(ctx context.Context, turns store.TurnStore, providerID string, userID int64, content string) {
	turns.SaveTurn(ctx, userID, providerID, store.Turn{Role: store.RoleAssistant, Content: content})
}

// replaceHistory closes the open conversation and writes msgs as the new
// one, for batch sends that supply the transcript wholesale.
func replaceHistory(ctx context.Context, turns store.TurnStore, providerID string, userID int64, msgs []store.Turn) {
	turns.ClearHistory(ctx, userID, providerID)
	for _, m := range msgs {
		turns.SaveTurn(ctx, userID, providerID, m)
	}
}

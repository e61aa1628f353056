package store

import (
	"context"
	"testing"
)

func TestMemoryTurnStore_RoundTripInOrder(t *testing.T) {
	s := NewMemoryTurnStore()
	ctx := context.Background()

	s.SaveTurn(ctx, 1, "openai", Turn{Role: RoleUser, Content: "hello"})
	s.SaveTurn(ctx, 1, "openai", Turn{Role: RoleAssistant, Content: "hi"})
	s.SaveTurn(ctx, 2, "openai", Turn{Role: RoleUser, Content: "other user"})

	history := s.History(ctx, 1, "openai")
	if len(history) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(history))
	}
	if history[0].Content != "hello" || history[1].Content != "hi" {
		t.Errorf("history out of order: %+v", history)
	}
	if s.HistoryLength(ctx, 1, "openai") != 2 {
		t.Errorf("length mismatch")
	}
}

func TestMemoryTurnStore_ClearDiscardsConversation(t *testing.T) {
	s := NewMemoryTurnStore()
	ctx := context.Background()

	s.SaveTurn(ctx, 1, "openai", Turn{Role: RoleUser, Content: "hello"})
	s.ClearHistory(ctx, 1, "openai")

	if got := s.History(ctx, 1, "openai"); len(got) != 0 {
		t.Errorf("expected empty history after clear, got %d turns", len(got))
	}
	if s.HistoryLength(ctx, 1, "openai") != 0 {
		t.Errorf("expected zero length after clear")
	}
}

func TestMemoryTurnStore_ProvidersAreIsolated(t *testing.T) {
	s := NewMemoryTurnStore()
	ctx := context.Background()

	s.SaveTurn(ctx, 1, "openai", Turn{Role: RoleUser, Content: "a"})
	s.SaveTurn(ctx, 1, "gemini", Turn{Role: RoleUser, Content: "b"})
	s.ClearHistory(ctx, 1, "openai")

	if s.HistoryLength(ctx, 1, "gemini") != 1 {
		t.Errorf("clearing one provider must not touch another")
	}
}

func TestMemoryStateStore_StateLifecycle(t *testing.T) {
	s := NewMemoryStateStore(nil)
	ctx := context.Background()
	key := ForUser(1)

	if got := s.State(ctx, key); got != "" {
		t.Errorf("expected empty state initially, got %q", got)
	}
	s.SetState(ctx, key, "awaiting_input")
	if got := s.State(ctx, key); got != "awaiting_input" {
		t.Errorf("got %q", got)
	}
	s.SetState(ctx, key, "")
	if got := s.State(ctx, key); got != "" {
		t.Errorf("expected cleared state, got %q", got)
	}
}

func TestMemoryStateStore_SetRoundTrip(t *testing.T) {
	s := NewMemoryStateStore([]string{"achieved_components"})
	ctx := context.Background()
	key := ForUser(1)

	s.SetData(ctx, key, map[string]any{
		"achieved_components": NewStringSet("b", "a"),
		"turn_count":          2,
	})
	data := s.Data(ctx, key)
	set, ok := data["achieved_components"].(StringSet)
	if !ok {
		t.Fatalf("expected StringSet, got %T", data["achieved_components"])
	}
	if !set.Has("a") || !set.Has("b") || len(set) != 2 {
		t.Errorf("unexpected members: %v", set.Sorted())
	}
}

func TestMemoryStateStore_NoRowReadsAsEmpty(t *testing.T) {
	s := NewMemoryStateStore(nil)
	data := s.Data(context.Background(), ForUser(99))
	if data == nil || len(data) != 0 {
		t.Errorf("expected empty map, got %v", data)
	}
}

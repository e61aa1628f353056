package store

import (
	"context"
	"testing"

	"github.com/zulandar/parley/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openStoreTestDB(t *testing.T) *DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := gdb.AutoMigrate(&models.ConversationTurn{}, &models.SessionRecord{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return NewDBFrom(gdb)
}

// ---------------------------------------------------------------------------
// GormTurnStore
// ---------------------------------------------------------------------------

func TestGormTurnStore_RoundTripInOrder(t *testing.T) {
	s := NewGormTurnStore(openStoreTestDB(t))
	ctx := context.Background()

	s.SaveTurn(ctx, 1, "openai", Turn{Role: RoleUser, Content: "hello", Metadata: map[string]string{"model": "gpt-4o-mini"}})
	s.SaveTurn(ctx, 1, "openai", Turn{Role: RoleAssistant, Content: "hi"})

	history := s.History(ctx, 1, "openai")
	if len(history) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(history))
	}
	if history[0].Role != RoleUser || history[0].Content != "hello" {
		t.Errorf("first turn mismatch: %+v", history[0])
	}
	if history[0].Metadata["model"] != "gpt-4o-mini" {
		t.Errorf("metadata lost in round trip: %+v", history[0].Metadata)
	}
	if history[1].Role != RoleAssistant || history[1].Content != "hi" {
		t.Errorf("second turn mismatch: %+v", history[1])
	}
}

func TestGormTurnStore_ClearClosesButKeepsRows(t *testing.T) {
	db := openStoreTestDB(t)
	s := NewGormTurnStore(db)
	ctx := context.Background()

	s.SaveTurn(ctx, 1, "openai", Turn{Role: RoleUser, Content: "hello"})
	s.ClearHistory(ctx, 1, "openai")

	if got := s.History(ctx, 1, "openai"); len(got) != 0 {
		t.Errorf("expected empty open conversation after clear, got %d turns", len(got))
	}
	if s.HistoryLength(ctx, 1, "openai") != 0 {
		t.Errorf("expected zero open length after clear")
	}

	// The closed rows stay for audit, with finished_at stamped.
	var rows []models.ConversationTurn
	if err := db.Get().Find(&rows).Error; err != nil {
		t.Fatalf("load rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 preserved row, got %d", len(rows))
	}
	if rows[0].FinishedAt == nil {
		t.Error("cleared row must carry finished_at")
	}
}

func TestGormTurnStore_FreshConversationAfterClear(t *testing.T) {
	s := NewGormTurnStore(openStoreTestDB(t))
	ctx := context.Background()

	s.SaveTurn(ctx, 1, "openai", Turn{Role: RoleUser, Content: "old"})
	s.ClearHistory(ctx, 1, "openai")
	s.SaveTurn(ctx, 1, "openai", Turn{Role: RoleUser, Content: "new"})

	history := s.History(ctx, 1, "openai")
	if len(history) != 1 || history[0].Content != "new" {
		t.Errorf("expected only the new conversation, got %+v", history)
	}
}

func TestGormTurnStore_UnavailableBackendIsNoOp(t *testing.T) {
	s := NewGormTurnStore(NewDB(nil))
	ctx := context.Background()

	s.SaveTurn(ctx, 1, "openai", Turn{Role: RoleUser, Content: "hello"})
	if got := s.History(ctx, 1, "openai"); len(got) != 0 {
		t.Errorf("expected empty history, got %v", got)
	}
	if s.HistoryLength(ctx, 1, "openai") != 0 {
		t.Errorf("expected zero length")
	}
}

// ---------------------------------------------------------------------------
// GormStateStore
// ---------------------------------------------------------------------------

func TestGormStateStore_UpsertKeepsSingleRow(t *testing.T) {
	db := openStoreTestDB(t)
	s := NewGormStateStore(db, nil)
	ctx := context.Background()
	key := ForUser(42)

	s.SetState(ctx, key, "awaiting_input")
	s.SetData(ctx, key, map[string]any{"turn_count": 1})
	s.SetData(ctx, key, map[string]any{"turn_count": 2})
	s.SetState(ctx, key, "reviewing")

	var count int64
	if err := db.Get().Model(&models.SessionRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single upserted row, got %d", count)
	}
	if got := s.State(ctx, key); got != "reviewing" {
		t.Errorf("state lost across upserts: %q", got)
	}
	data := s.Data(ctx, key)
	if got, ok := data["turn_count"].(float64); !ok || got != 2 {
		t.Errorf("expected turn_count 2, got %v", data["turn_count"])
	}
}

func TestGormStateStore_SetRoundTrip(t *testing.T) {
	s := NewGormStateStore(openStoreTestDB(t), []string{"achieved_components"})
	ctx := context.Background()
	key := ForUser(7)

	s.SetData(ctx, key, map[string]any{
		"achieved_components": NewStringSet("Clarity", "Empathy"),
	})
	data := s.Data(ctx, key)
	set, ok := data["achieved_components"].(StringSet)
	if !ok {
		t.Fatalf("expected StringSet, got %T", data["achieved_components"])
	}
	if !set.Has("Empathy") || !set.Has("Clarity") || len(set) != 2 {
		t.Errorf("unexpected members: %v", set.Sorted())
	}
}

func TestGormStateStore_NoRowReadsAsEmpty(t *testing.T) {
	s := NewGormStateStore(openStoreTestDB(t), nil)
	ctx := context.Background()
	key := ForUser(99)

	if got := s.State(ctx, key); got != "" {
		t.Errorf("expected empty state, got %q", got)
	}
	if data := s.Data(ctx, key); len(data) != 0 {
		t.Errorf("expected empty data, got %v", data)
	}
}

func TestGormStateStore_StateAndDataAreIndependent(t *testing.T) {
	s := NewGormStateStore(openStoreTestDB(t), nil)
	ctx := context.Background()
	key := ForUser(5)

	s.SetData(ctx, key, map[string]any{"turn_count": 3})
	s.SetState(ctx, key, "awaiting_input")

	data := s.Data(ctx, key)
	if got, ok := data["turn_count"].(float64); !ok || got != 3 {
		t.Errorf("SetState must not overwrite data, got %v", data["turn_count"])
	}
}

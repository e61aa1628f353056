package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/zulandar/parley/internal/config"
	"github.com/zulandar/parley/internal/models"
	"github.com/zulandar/parley/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openSweeperTestDB(t *testing.T) *store.DB {
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
	return store.NewDBFrom(gdb)
}

func testSweeper(t *testing.T, db *store.DB) *Sweeper {
	t.Helper()
	s, err := New(db, config.SweeperConfig{Schedule: "0 4 * * *", RetentionDays: 30})
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	return s
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	if _, err := New(openSweeperTestDB(t), config.SweeperConfig{Schedule: "not cron", RetentionDays: 30}); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestSweepOnce_RemovesOnlyOldClosedTurns(t *testing.T) {
	db := openSweeperTestDB(t)
	s := testSweeper(t, db)
	gdb := db.Get()

	old := time.Now().Add(-40 * 24 * time.Hour)
	recent := time.Now().Add(-time.Hour)

	rows := []models.ConversationTurn{
		{UserID: 1, Provider: "openai", Role: "user", Content: "old closed", FinishedAt: &old},
		{UserID: 1, Provider: "openai", Role: "user", Content: "recently closed", FinishedAt: &recent},
		{UserID: 1, Provider: "openai", Role: "user", Content: "still open"},
	}
	if err := gdb.Create(&rows).Error; err != nil {
		t.Fatalf("seed turns: %v", err)
	}

	if err := s.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	var remaining []models.ConversationTurn
	if err := gdb.Find(&remaining).Error; err != nil {
		t.Fatalf("load turns: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 surviving turns, got %d", len(remaining))
	}
	for _, r := range remaining {
		if r.Content == "old closed" {
			t.Error("old closed turn should have been pruned")
		}
	}
}

func TestSweepOnce_RemovesStaleSessions(t *testing.T) {
	db := openSweeperTestDB(t)
	s := testSweeper(t, db)
	gdb := db.Get()

	sessions := []models.SessionRecord{
		{StorageKey: "1:1", Data: "{}", UpdatedAt: time.Now().Add(-40 * 24 * time.Hour)},
		{StorageKey: "2:2", Data: "{}", UpdatedAt: time.Now()},
	}
	if err := gdb.Create(&sessions).Error; err != nil {
		t.Fatalf("seed sessions: %v", err)
	}

	if err := s.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	var remaining []models.SessionRecord
	if err := gdb.Find(&remaining).Error; err != nil {
		t.Fatalf("load sessions: %v", err)
	}
	if len(remaining) != 1 || remaining[0].StorageKey != "2:2" {
		t.Errorf("expected only the fresh session to survive, got %+v", remaining)
	}
}

func TestUntilNextSweep_ValidExpression(t *testing.T) {
	d := untilNextSweep("0 4 * * *")
	if d <= 0 || d > 24*time.Hour {
		t.Errorf("expected a duration within a day, got %v", d)
	}
}

func TestUntilNextSweep_InvalidExpression(t *testing.T) {
	if d := untilNextSweep("garbage"); d != 0 {
		t.Errorf("expected 0 for invalid expression, got %v", d)
	}
}

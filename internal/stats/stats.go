// Package stats keeps per-user, per-case counters of case starts and
// completions. Every write swallows its error: statistics must never fail
// a turn.
package stats

import (
	"context"
	"log"
	"time"

	"github.com/zulandar/parley/internal/dialogue"
	"github.com/zulandar/parley/internal/models"
	"github.com/zulandar/parley/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Recorder implements the orchestrator's statistics hooks over the shared
// database pool.
type Recorder struct {
	db *store.DB
}

// NewRecorder creates a Recorder.
func NewRecorder(db *store.DB) *Recorder {
	return &Recorder{db: db}
}

// CaseStarted bumps the start counter for (user, case).
func (r *Recorder) CaseStarted(ctx context.Context, userID int64, caseID string) {
	r.bump(ctx, userID, caseID, "started")
}

// CaseCompleted bumps the counter matching the completion kind.
func (r *Recorder) CaseCompleted(ctx context.Context, userID int64, caseID string, kind dialogue.CompletionKind) {
	switch kind {
	case dialogue.CompletionCoverage:
		r.bump(ctx, userID, caseID, "completed")
	case dialogue.CompletionExhaustion:
		r.bump(ctx, userID, caseID, "out_of_moves")
	}
}

// CaseAutoFinished bumps the counter for cases the turn loop finished on
// its own, coverage and exhaustion alike, as opposed to an on-demand review.
func (r *Recorder) CaseAutoFinished(ctx context.Context, userID int64, caseID string) {
	r.bump(ctx, userID, caseID, "auto_finished")
}

func (r *Recorder) bump(ctx context.Context, userID int64, caseID, column string) {
	gdb := r.db.Get()
	if gdb == nil {
		return
	}
	row := models.CaseStat{UserID: userID, CaseID: caseID, UpdatedAt: time.Now()}
	switch column {
	case "started":
		row.Started = 1
	case "completed":
		row.Completed = 1
	case "out_of_moves":
		row.OutOfMoves = 1
	case "auto_finished":
		row.AutoFinished = 1
	}
	err := gdb.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "case_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			column:       gorm.Expr(column+" + ?", 1),
			"updated_at": time.Now(),
		}),
	}).Create(&row).Error
	if err != nil {
		log.Printf("stats: bump %s user=%d case=%s: %v", column, userID, caseID, err)
	}
}

// ClaimFirstCompletion atomically claims the user's first-ever completion.
// The claim row's primary key makes a second insert fail, so exactly one
// completion per user observes true.
func (r *Recorder) ClaimFirstCompletion(ctx context.Context, userID int64) bool {
	gdb := r.db.Get()
	if gdb == nil {
		return false
	}
	claim := models.CompletionClaim{UserID: userID, ClaimedAt: time.Now()}
	if err := gdb.WithContext(ctx).Create(&claim).Error; err != nil {
		return false
	}
	return true
}

// HasAnyCompleted reports whether the user has completed at least one case
// by coverage. Running out of turns does not count.
func (r *Recorder) HasAnyCompleted(ctx context.Context, userID int64) bool {
	gdb := r.db.Get()
	if gdb == nil {
		return false
	}
	var count int64
	err := gdb.WithContext(ctx).
		Model(&models.CaseStat{}).
		Where("user_id = ? AND completed > 0", userID).
		Count(&count).Error
	if err != nil {
		log.Printf("stats: completed lookup user=%d: %v", userID, err)
		return false
	}
	return count > 0
}

// ForUser returns the user's per-case counters.
func (r *Recorder) ForUser(ctx context.Context, userID int64) ([]models.CaseStat, error) {
	gdb := r.db.Get()
	if gdb == nil {
		return nil, nil
	}
	var rows []models.CaseStat
	err := gdb.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("case_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CaseSummary is the aggregate of one case's counters across all users.
type CaseSummary struct {
	CaseID       string
	Users        int64
	Started      int64
	Completed    int64
	OutOfMoves   int64
	AutoFinished int64
}

// Summary aggregates counters per case.
func (r *Recorder) Summary(ctx context.Context) ([]CaseSummary, error) {
	gdb := r.db.Get()
	if gdb == nil {
		return nil, nil
	}
	var rows []CaseSummary
	err := gdb.WithContext(ctx).
		Model(&models.CaseStat{}).
		Select("case_id, count(*) as users, sum(started) as started, sum(completed) as completed, sum(out_of_moves) as out_of_moves, sum(auto_finished) as auto_finished").
		Group("case_id").
		Order("case_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Package sweeper prunes closed conversations and stale sessions on a cron
// schedule. Open conversations are never touched.
package sweeper

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/parley/internal/config"
	"github.com/zulandar/parley/internal/models"
	"github.com/zulandar/parley/internal/store"
)

// Sweeper deletes closed conversation turns past retention and session rows
// that have been idle past retention.
type Sweeper struct {
	db        *store.DB
	schedule  string
	retention time.Duration
}

// New creates a Sweeper from configuration.
func New(db *store.DB, cfg config.SweeperConfig) (*Sweeper, error) {
	if db == nil {
		return nil, fmt.Errorf("sweeper: database is required")
	}
	if _, err := scheduleParser.Parse(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("sweeper: schedule %q: %w", cfg.Schedule, err)
	}
	return &Sweeper{
		db:        db,
		schedule:  cfg.Schedule,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	}, nil
}

// Run fires SweepOnce on the configured schedule until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		d := untilNextSweep(s.schedule)
		if d <= 0 {
			d = time.Minute
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := s.SweepOnce(ctx); err != nil {
				log.Printf("sweeper: sweep failed: %v", err)
			}
		}
	}
}

// SweepOnce performs one pruning pass and reports what it removed.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	gdb := s.db.Get()
	if gdb == nil {
		return fmt.Errorf("sweeper: database unavailable")
	}
	cutoff := time.Now().Add(-s.retention)

	turns := gdb.WithContext(ctx).
		Where("finished_at IS NOT NULL AND finished_at < ?", cutoff).
		Delete(&models.ConversationTurn{})
	if turns.Error != nil {
		return fmt.Errorf("sweeper: prune turns: %w", turns.Error)
	}

	sessions := gdb.WithContext(ctx).
		Where("updated_at < ?", cutoff).
		Delete(&models.SessionRecord{})
	if sessions.Error != nil {
		return fmt.Errorf("sweeper: prune sessions: %w", sessions.Error)
	}

	log.Printf("sweeper: removed %d closed turns and %d stale sessions older than %s",
		turns.RowsAffected, sessions.RowsAffected, cutoff.Format(time.RFC3339))
	return nil
}

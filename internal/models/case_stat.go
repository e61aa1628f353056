package models

import "time"

// CaseStat counts case outcomes per (user, case).
type CaseStat struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	UserID       int64  `gorm:"not null;uniqueIndex:idx_case_stats_user_case,priority:1"`
	CaseID       string `gorm:"size:64;not null;uniqueIndex:idx_case_stats_user_case,priority:2"`
	Started      int    `gorm:"not null;default:0"`
	Completed    int    `gorm:"not null;default:0"`
	OutOfMoves   int    `gorm:"not null;default:0"`
	AutoFinished int    `gorm:"not null;default:0"`
	UpdatedAt    time.Time
}

// CompletionClaim marks that a user's first successful case completion has
// been celebrated. The primary key on UserID makes the claim atomic: the
// first INSERT wins, every later one conflicts.
type CompletionClaim struct {
	UserID    int64 `gorm:"primaryKey;autoIncrement:false"`
	ClaimedAt time.Time
}

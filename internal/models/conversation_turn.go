package models

import "time"

// ConversationTurn is one chat message exchanged between a user and one
// LLM provider. Turns are append-only; clearing a conversation sets
// FinishedAt on its open rows instead of deleting them, so history is
// preserved for audit.
type ConversationTurn struct {
	ID         uint       `gorm:"primaryKey;autoIncrement"`
	UserID     int64      `gorm:"not null;index:idx_turns_open,priority:1"`
	Provider   string     `gorm:"size:32;not null;index:idx_turns_open,priority:2"`
	Role       string     `gorm:"size:16;not null"`
	Content    string     `gorm:"type:text"`
	Metadata   *string    `gorm:"type:text"` // JSON object, null when empty
	CreatedAt  time.Time  `gorm:"index:idx_turns_open,priority:4"`
	FinishedAt *time.Time `gorm:"index:idx_turns_open,priority:3"`
}

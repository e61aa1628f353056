package models

import "time"

// SessionRecord holds the per-user dialogue progress state that must survive
// process restarts: a state tag plus a JSON data blob. StorageKey is the
// colon-joined concatenation of whichever of bot/chat/user ids are present.
type SessionRecord struct {
	StorageKey string `gorm:"primaryKey;size:96"`
	BotID      *int64
	ChatID     *int64
	UserID     *int64    `gorm:"index:idx_sessions_user,priority:1"`
	State      *string   `gorm:"size:64"`
	Data       string    `gorm:"type:text"`
	UpdatedAt  time.Time `gorm:"index:idx_sessions_user,priority:2"`
}

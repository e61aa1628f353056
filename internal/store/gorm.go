package store

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/zulandar/parley/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTurnStore is the durable TurnStore. Clearing marks the open
// conversation's rows finished instead of deleting them.
type GormTurnStore struct {
	db *DB
}

// NewGormTurnStore creates a durable turn store over the shared pool.
func NewGormTurnStore(db *DB) *GormTurnStore {
	return &GormTurnStore{db: db}
}

// SaveTurn appends a turn to the open conversation.
func (s *GormTurnStore) SaveTurn(ctx context.Context, userID int64, provider string, turn Turn) {
	gdb := s.db.Get()
	if gdb == nil {
		return
	}
	var metadata *string
	if len(turn.Metadata) > 0 {
		raw, err := json.Marshal(turn.Metadata)
		if err != nil {
			log.Printf("store: marshal turn metadata: %v", err)
		} else {
			str := string(raw)
			metadata = &str
		}
	}
	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	row := models.ConversationTurn{
		UserID:    userID,
		Provider:  provider,
		Role:      turn.Role,
		Content:   turn.Content,
		Metadata:  metadata,
		CreatedAt: createdAt,
	}
	if err := gdb.WithContext(ctx).Create(&row).Error; err != nil {
		log.Printf("store: save turn user=%d provider=%s: %v", userID, provider, err)
	}
}

// History returns the open conversation's turns in creation order.
func (s *GormTurnStore) History(ctx context.Context, userID int64, provider string) []Turn {
	gdb := s.db.Get()
	if gdb == nil {
		return nil
	}
	var rows []models.ConversationTurn
	err := gdb.WithContext(ctx).
		Where("user_id = ? AND provider = ? AND finished_at IS NULL", userID, provider).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		log.Printf("store: load history user=%d provider=%s: %v", userID, provider, err)
		return nil
	}
	turns := make([]Turn, 0, len(rows))
	for _, r := range rows {
		turn := Turn{Role: r.Role, Content: r.Content, CreatedAt: r.CreatedAt}
		if r.Metadata != nil && *r.Metadata != "" {
			if err := json.Unmarshal([]byte(*r.Metadata), &turn.Metadata); err != nil {
				log.Printf("store: unmarshal turn metadata: %v", err)
			}
		}
		turns = append(turns, turn)
	}
	return turns
}

// ClearHistory closes the open conversation by stamping finished_at on its
// rows; the next SaveTurn starts a fresh conversation.
func (s *GormTurnStore) ClearHistory(ctx context.Context, userID int64, provider string) {
	gdb := s.db.Get()
	if gdb == nil {
		return
	}
	err := gdb.WithContext(ctx).
		Model(&models.ConversationTurn{}).
		Where("user_id = ? AND provider = ? AND finished_at IS NULL", userID, provider).
		Update("finished_at", time.Now()).Error
	if err != nil {
		log.Printf("store: clear history user=%d provider=%s: %v", userID, provider, err)
	}
}

// HistoryLength counts the open conversation's turns.
func (s *GormTurnStore) HistoryLength(ctx context.Context, userID int64, provider string) int {
	gdb := s.db.Get()
	if gdb == nil {
		return 0
	}
	var count int64
	err := gdb.WithContext(ctx).
		Model(&models.ConversationTurn{}).
		Where("user_id = ? AND provider = ? AND finished_at IS NULL", userID, provider).
		Count(&count).Error
	if err != nil {
		log.Printf("store: count history user=%d provider=%s: %v", userID, provider, err)
		return 0
	}
	return int(count)
}

// GormStateStore is the durable StateStore: one upserted row per session key.
type GormStateStore struct {
	db        *DB
	setFields []string
}

// NewGormStateStore creates a durable state store over the shared pool.
// setFields names the data fields whose values are set-typed and must be
// rebuilt from their serialized array form on read.
func NewGormStateStore(db *DB, setFields []string) *GormStateStore {
	return &GormStateStore{db: db, setFields: setFields}
}

func sessionColumns(key SessionKey) (botID, chatID, userID *int64) {
	if key.BotID != 0 {
		botID = &key.BotID
	}
	if key.ChatID != 0 {
		chatID = &key.ChatID
	}
	if key.UserID != 0 {
		userID = &key.UserID
	}
	return
}

// State returns the session's state tag, or "" when no row exists.
func (s *GormStateStore) State(ctx context.Context, key SessionKey) string {
	gdb := s.db.Get()
	if gdb == nil {
		return ""
	}
	var row models.SessionRecord
	err := gdb.WithContext(ctx).
		Where("storage_key = ?", key.String()).
		First(&row).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			log.Printf("store: load state key=%s: %v", key, err)
		}
		return ""
	}
	if row.State == nil {
		return ""
	}
	return *row.State
}

// SetState upserts the state tag, leaving the data blob untouched.
func (s *GormStateStore) SetState(ctx context.Context, key SessionKey, state string) {
	gdb := s.db.Get()
	if gdb == nil {
		return
	}
	var statePtr *string
	if state != "" {
		statePtr = &state
	}
	botID, chatID, userID := sessionColumns(key)
	row := models.SessionRecord{
		StorageKey: key.String(),
		BotID:      botID,
		ChatID:     chatID,
		UserID:     userID,
		State:      statePtr,
		Data:       "{}",
		UpdatedAt:  time.Now(),
	}
	err := gdb.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		log.Printf("store: save state key=%s: %v", key, err)
	}
}

// Data returns the session's data map, rebuilding set-typed fields; empty
// when no row exists.
func (s *GormStateStore) Data(ctx context.Context, key SessionKey) map[string]any {
	gdb := s.db.Get()
	if gdb == nil {
		return map[string]any{}
	}
	var row models.SessionRecord
	err := gdb.WithContext(ctx).
		Where("storage_key = ?", key.String()).
		First(&row).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			log.Printf("store: load data key=%s: %v", key, err)
		}
		return map[string]any{}
	}
	if row.Data == "" {
		return map[string]any{}
	}
	data := map[string]any{}
	if err := json.Unmarshal([]byte(row.Data), &data); err != nil {
		log.Printf("store: unmarshal session data key=%s: %v", key, err)
		return map[string]any{}
	}
	return restoreData(data, s.setFields)
}

// SetData upserts the data blob, leaving the state tag untouched. Repeated
// writes to the same key rewrite the single row.
func (s *GormStateStore) SetData(ctx context.Context, key SessionKey, data map[string]any) {
	gdb := s.db.Get()
	if gdb == nil {
		return
	}
	raw, err := json.Marshal(normalizeData(data))
	if err != nil {
		log.Printf("store: marshal session data key=%s: %v", key, err)
		return
	}
	botID, chatID, userID := sessionColumns(key)
	row := models.SessionRecord{
		StorageKey: key.String(),
		BotID:      botID,
		ChatID:     chatID,
		UserID:     userID,
		Data:       string(raw),
		UpdatedAt:  time.Now(),
	}
	err = gdb.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		log.Printf("store: save data key=%s: %v", key, err)
	}
}

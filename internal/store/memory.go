package store

import (
	"context"
	"sync"
	"time"
)

// MemoryTurnStore is the volatile TurnStore. Conversations live only as long
// as the process; ClearHistory discards the in-memory list outright.
type MemoryTurnStore struct {
	mu    sync.Mutex
	turns map[turnKey][]Turn
}

type turnKey struct {
	userID   int64
	provider string
}

// NewMemoryTurnStore creates an empty volatile turn store.
func NewMemoryTurnStore() *MemoryTurnStore {
	return &MemoryTurnStore{turns: make(map[turnKey][]Turn)}
}

// SaveTurn appends a turn to the open conversation.
func (s *MemoryTurnStore) SaveTurn(_ context.Context, userID int64, provider string, turn Turn) {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := turnKey{userID, provider}
	s.turns[k] = append(s.turns[k], turn)
}

// History returns the open conversation's turns in insertion order.
func (s *MemoryTurnStore) History(_ context.Context, userID int64, provider string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.turns[turnKey{userID, provider}]
	out := make([]Turn, len(src))
	copy(out, src)
	return out
}

// ClearHistory discards the open conversation.
func (s *MemoryTurnStore) ClearHistory(_ context.Context, userID int64, provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, turnKey{userID, provider})
}

// HistoryLength returns the number of turns in the open conversation.
func (s *MemoryTurnStore) HistoryLength(_ context.Context, userID int64, provider string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns[turnKey{userID, provider}])
}

// MemoryStateStore is the volatile StateStore.
type MemoryStateStore struct {
	mu        sync.Mutex
	states    map[string]string
	data      map[string]map[string]any
	setFields []string
}

// NewMemoryStateStore creates an empty volatile state store. setFields names
// the data fields whose values are set-typed.
func NewMemoryStateStore(setFields []string) *MemoryStateStore {
	return &MemoryStateStore{
		states:    make(map[string]string),
		data:      make(map[string]map[string]any),
		setFields: setFields,
	}
}

// State returns the session's state tag, or "" when absent.
func (s *MemoryStateStore) State(_ context.Context, key SessionKey) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[key.String()]
}

// SetState stores the state tag; an empty tag clears it.
func (s *MemoryStateStore) SetState(_ context.Context, key SessionKey, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == "" {
		delete(s.states, key.String())
		return
	}
	s.states[key.String()] = state
}

// Data returns a copy of the session's data map; empty when absent.
func (s *MemoryStateStore) Data(_ context.Context, key SessionKey) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.data[key.String()]
	if !ok {
		return map[string]any{}
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return restoreData(out, s.setFields)
}

// SetData replaces the session's data map.
func (s *MemoryStateStore) SetData(_ context.Context, key SessionKey, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key.String()] = normalizeData(data)
}

// Package store persists conversation turns and dialogue session state.
//
// Both stores come in two interchangeable flavors: a volatile in-process one
// for environments without a database, and a durable GORM-backed one. The
// contracts are deliberately error-free: a backend fault is logged and
// surfaced as an empty result or a no-op, never as an error the caller has
// to handle. A persistence outage degrades dialogue continuity, it does not
// crash the turn.
package store

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Turn roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one chat message. Turns are never mutated after creation.
type Turn struct {
	Role      string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// SessionKey identifies one session by whichever of bot/chat/user ids are
// present (zero means absent). Its string form is the colon-joined
// concatenation of the present parts.
type SessionKey struct {
	BotID  int64
	ChatID int64
	UserID int64
}

// ForUser returns the session key Parley uses for a private dialogue.
func ForUser(userID int64) SessionKey {
	return SessionKey{ChatID: userID, UserID: userID}
}

func (k SessionKey) String() string {
	parts := make([]string, 0, 3)
	if k.BotID != 0 {
		parts = append(parts, strconv.FormatInt(k.BotID, 10))
	}
	if k.ChatID != 0 {
		parts = append(parts, strconv.FormatInt(k.ChatID, 10))
	}
	if k.UserID != 0 {
		parts = append(parts, strconv.FormatInt(k.UserID, 10))
	}
	return strings.Join(parts, ":")
}

// TurnStore keeps the ordered turns of the open conversation per
// (user, provider) pair. At most one conversation is open per pair;
// ClearHistory closes it and the next SaveTurn starts a fresh one.
type TurnStore interface {
	SaveTurn(ctx context.Context, userID int64, provider string, turn Turn)
	History(ctx context.Context, userID int64, provider string) []Turn
	ClearHistory(ctx context.Context, userID int64, provider string)
	HistoryLength(ctx context.Context, userID int64, provider string) int
}

// StateStore keeps per-session dialogue progress: a state tag (empty string
// means absent) and a free-form data map. "No row" reads identically to
// "empty map / absent state".
type StateStore interface {
	State(ctx context.Context, key SessionKey) string
	SetState(ctx context.Context, key SessionKey, state string)
	Data(ctx context.Context, key SessionKey) map[string]any
	SetData(ctx context.Context, key SessionKey, data map[string]any)
}

// StringSet is an unordered, deduplicated collection of strings. Inside a
// session data map it serializes as a sorted JSON array; the store converts
// it back for the field names it was told are set-typed.
type StringSet map[string]struct{}

// NewStringSet builds a set from its members.
func NewStringSet(members ...string) StringSet {
	s := make(StringSet, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

// Add inserts a member.
func (s StringSet) Add(member string) { s[member] = struct{}{} }

// Has reports membership.
func (s StringSet) Has(member string) bool {
	_, ok := s[member]
	return ok
}

// Sorted returns the members in lexical order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// normalizeData returns a copy of data with every StringSet value replaced
// by its sorted slice form, so the map serializes to plain JSON.
func normalizeData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if set, ok := v.(StringSet); ok {
			out[k] = set.Sorted()
			continue
		}
		out[k] = v
	}
	return out
}

// restoreData rebuilds StringSet values for the allow-listed field names.
// The store does not know field semantics generically; it is told which
// names are set-typed.
func restoreData(data map[string]any, setFields []string) map[string]any {
	for _, name := range setFields {
		v, ok := data[name]
		if !ok {
			continue
		}
		switch vv := v.(type) {
		case StringSet:
			// already a set (volatile store round-trip)
		case []string:
			data[name] = NewStringSet(vv...)
		case []any:
			set := make(StringSet, len(vv))
			for _, e := range vv {
				if s, ok := e.(string); ok {
					set.Add(s)
				}
			}
			data[name] = set
		}
	}
	return data
}

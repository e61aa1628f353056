package store

import (
	"reflect"
	"testing"
)

func TestSessionKey_String(t *testing.T) {
	tests := []struct {
		key  SessionKey
		want string
	}{
		{SessionKey{BotID: 1, ChatID: 2, UserID: 3}, "1:2:3"},
		{SessionKey{ChatID: 42, UserID: 42}, "42:42"},
		{SessionKey{UserID: 7}, "7"},
		{SessionKey{}, ""},
	}
	for _, tt := range tests {
		if got := tt.key.String(); got != tt.want {
			t.Errorf("%+v: got %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestForUser_UsesChatAndUserID(t *testing.T) {
	key := ForUser(42)
	if key.String() != "42:42" {
		t.Errorf("got %q, want 42:42", key.String())
	}
}

func TestStringSet_Sorted(t *testing.T) {
	s := NewStringSet("c", "a", "b", "a")
	if got := s.Sorted(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("got %v", got)
	}
}

func TestNormalizeRestore_RoundTrip(t *testing.T) {
	data := map[string]any{
		"achieved": NewStringSet("b", "a"),
		"count":    3,
	}
	flat := normalizeData(data)
	if _, ok := flat["achieved"].([]string); !ok {
		t.Fatalf("expected slice after normalize, got %T", flat["achieved"])
	}

	// Simulate a JSON round trip: arrays come back as []any.
	flat["achieved"] = []any{"a", "b"}
	back := restoreData(flat, []string{"achieved"})
	set, ok := back["achieved"].(StringSet)
	if !ok {
		t.Fatalf("expected StringSet after restore, got %T", back["achieved"])
	}
	if !set.Has("a") || !set.Has("b") || len(set) != 2 {
		t.Errorf("unexpected members: %v", set.Sorted())
	}
}

func TestRestoreData_IgnoresUnlistedFields(t *testing.T) {
	data := map[string]any{"other": []any{"x"}}
	back := restoreData(data, []string{"achieved"})
	if _, ok := back["other"].(StringSet); ok {
		t.Error("unlisted field must not be converted")
	}
}

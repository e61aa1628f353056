package dialogue

import (
	"github.com/zulandar/parley/internal/store"
)

// Progress is the per-user, per-case dialogue progress kept inside the
// session data blob. Achieved accumulates by union only and never shrinks.
type Progress struct {
	CaseID    string
	TurnCount int
	Entries   []Entry
	Achieved  store.StringSet
}

// Entry is one line of the dialogue transcript.
type Entry struct {
	Role string
	Text string
}

func newProgress(caseID string) *Progress {
	return &Progress{CaseID: caseID, Achieved: store.NewStringSet()}
}

// loadProgress rebuilds Progress from the session data map. Values arrive
// JSON-shaped (numbers as float64, lists as []any) from the durable store
// and natively typed from the volatile one; both are accepted.
func loadProgress(data map[string]any) *Progress {
	p := newProgress("")
	if v, ok := data["case_id"].(string); ok {
		p.CaseID = v
	}
	switch v := data["turn_count"].(type) {
	case int:
		p.TurnCount = v
	case float64:
		p.TurnCount = int(v)
	}
	switch v := data["dialogue_entries"].(type) {
	case []Entry:
		p.Entries = append(p.Entries, v...)
	case []any:
		for _, raw := range v {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			entry := Entry{}
			if s, ok := m["role"].(string); ok {
				entry.Role = s
			}
			if s, ok := m["text"].(string); ok {
				entry.Text = s
			}
			p.Entries = append(p.Entries, entry)
		}
	}
	switch v := data["achieved_components"].(type) {
	case store.StringSet:
		for k := range v {
			p.Achieved.Add(k)
		}
	case []any:
		for _, raw := range v {
			if s, ok := raw.(string); ok {
				p.Achieved.Add(s)
			}
		}
	case []string:
		for _, s := range v {
			p.Achieved.Add(s)
		}
	}
	return p
}

// save returns the session data map representation of p.
func (p *Progress) save() map[string]any {
	entries := make([]any, 0, len(p.Entries))
	for _, e := range p.Entries {
		entries = append(entries, map[string]any{"role": e.Role, "text": e.Text})
	}
	return map[string]any{
		"case_id":             p.CaseID,
		"turn_count":          p.TurnCount,
		"dialogue_entries":    entries,
		"achieved_components": p.Achieved,
	}
}

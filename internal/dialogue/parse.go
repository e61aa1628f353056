package dialogue

import (
	"encoding/json"
	"strings"
)

// Reply is the parsed structured counterpart reply.
type Reply struct {
	Text       string
	Components map[string]bool // one flag per case component key
}

// parseReply extracts the structured reply from raw provider output. The
// output is expected to contain a JSON object with a "ReplyText" field and
// one boolean flag per component key, but providers wrap it in prose often
// enough that strict parsing is a losing game: the parser takes the
// substring between the first '{' and the last '}' and tries that. When no
// object can be parsed, or "ReplyText" is missing, the whole raw text
// becomes the reply and every flag is false. Never fails.
func parseReply(raw string, componentKeys []string) Reply {
	reply := Reply{Text: raw, Components: map[string]bool{}}
	for _, key := range componentKeys {
		reply.Components[key] = false
	}

	obj, ok := extractObject(raw)
	if !ok {
		return reply
	}
	text, ok := obj["ReplyText"].(string)
	if !ok {
		return reply
	}
	reply.Text = text
	for _, key := range componentKeys {
		if flag, ok := obj[key].(bool); ok && flag {
			reply.Components[key] = true
		}
	}
	return reply
}

// Review is the parsed end-of-case critique.
type Review struct {
	Overall           string
	GoodPoints        []string
	ImprovementPoints []string
}

// parseReview extracts the structured review from raw reviewer output,
// with the same substring extraction and raw-text fallback as parseReply.
func parseReview(raw string) Review {
	obj, ok := extractObject(raw)
	if !ok {
		return Review{Overall: raw}
	}
	overall, ok := obj["overall"].(string)
	if !ok {
		return Review{Overall: raw}
	}
	return Review{
		Overall:           overall,
		GoodPoints:        stringList(obj["goodPoints"]),
		ImprovementPoints: stringList(obj["improvementPoints"]),
	}
}

// extractObject parses the substring between the first '{' and the last '}'
// as a JSON object.
func extractObject(raw string) (map[string]any, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

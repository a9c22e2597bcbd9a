package visibility

import (
	"encoding/json"
	"strings"

	"github.com/tonimelisma/synophoto/internal/records"
)

// HasTag reports whether any tag candidate on rec equals tag, trimmed and
// case-insensitively. Candidates come from the flat tag fields and the same
// fields under "additional"; each may be a string, a list, or an object
// wrapping a name or list.
func HasTag(rec records.Record, tag string) bool {
	target := strings.ToLower(strings.TrimSpace(tag))
	if target == "" {
		return false
	}

	for _, c := range tagCandidates(rec) {
		if tagName(c) == target {
			return true
		}
	}

	return false
}

func tagCandidates(rec records.Record) []any {
	var out []any

	for _, k := range tagKeys {
		out = appendCandidates(out, rec[k])
	}

	if additional := rec.Sub("additional"); additional != nil {
		for _, k := range tagKeys {
			out = appendCandidates(out, additional[k])
		}
	}

	return out
}

func appendCandidates(out []any, v any) []any {
	switch t := v.(type) {
	case nil:
		return out
	case string:
		if t == "" {
			return out
		}

		return append(out, t)
	case []any:
		return append(out, t...)
	case map[string]any:
		if name, ok := t["name"].(string); ok {
			out = append(out, name)
		}

		for _, k := range []string{"list", "tags", "tag"} {
			if list, ok := t[k].([]any); ok {
				out = append(out, list...)
			}
		}

		return out
	case records.Record:
		return appendCandidates(out, map[string]any(t))
	default:
		return out
	}
}

// tagName renders one candidate as a comparable lowercase name. Objects use
// name, then tag, then title.
func tagName(v any) string {
	switch t := v.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(t))
	case map[string]any:
		for _, k := range []string{"name", "tag", "title"} {
			if s, ok := t[k].(string); ok {
				return strings.ToLower(strings.TrimSpace(s))
			}

			if _, present := t[k]; present && t[k] != nil {
				return ""
			}
		}
	}

	return ""
}

// EnsureAdditional returns additional with every required field present,
// compared case-insensitively. The input slice is never modified.
func EnsureAdditional(additional []string, required ...string) []string {
	out := make([]string, 0, len(additional)+len(required))

	for _, a := range additional {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}

	for _, req := range required {
		req = strings.TrimSpace(req)
		if req == "" || containsFold(out, req) {
			continue
		}

		out = append(out, req)
	}

	return out
}

// ParseAdditional reads an additional-fields parameter given either as a
// JSON array or as a comma-separated list. Unparseable input yields nil.
func ParseAdditional(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if strings.HasPrefix(raw, "[") {
		var list []any
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil
		}

		out := make([]string, 0, len(list))

		for _, v := range list {
			if s, ok := records.Scalar(v); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}

		return out
	}

	var out []string

	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}

	return false
}

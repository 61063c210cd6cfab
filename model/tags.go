package model

import (
	"encoding/json"
	"strings"
)

// NormalizeTags coerces the historically unstructured tags field into an
// ordered slice of strings. The dashboard has stored tags as JSON arrays,
// comma-separated strings, and bare values at different points; everything
// crossing the persistence boundary goes through here.
func NormalizeTags(raw interface{}) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case []string:
		return cleanTags(v)
	case []interface{}:
		tags := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				tags = append(tags, s)
			}
		}
		return cleanTags(tags)
	case string:
		if v == "" {
			return nil
		}
		// JSON array form first, comma-separated as fallback
		var parsed []string
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			return cleanTags(parsed)
		}
		return cleanTags(strings.Split(v, ","))
	default:
		return nil
	}
}

// cleanTags trims whitespace and drops empty entries, preserving order.
func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

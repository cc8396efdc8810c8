package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// verdictEntry is the wire form of one element of the backend's answer.
// Assigned is a pointer so a missing boolean is distinguishable from false.
type verdictEntry struct {
	TagID    string `json:"tag_id"`
	Assigned *bool  `json:"assigned"`
	Reason   string `json:"reason"`
}

// decodeVerdictArray extracts the JSON array from a model response.
// Models wrap answers in code fences or surround them with prose, so the
// text is normalized first, then repaired if strict decoding fails.
func decodeVerdictArray(raw string) ([]verdictEntry, error) {
	text := stripFences(raw)
	text = sliceArray(text)

	var entries []verdictEntry
	if err := json.Unmarshal([]byte(text), &entries); err == nil {
		return entries, nil
	}

	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return nil, fmt.Errorf("repairing verdict JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &entries); err != nil {
		return nil, fmt.Errorf("decoding verdict JSON: %w", err)
	}
	return entries, nil
}

// stripFences removes a surrounding markdown code fence, with or without
// a language marker.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// sliceArray cuts the text down to the outermost bracketed array when the
// model wrapped the JSON in explanatory prose.
func sliceArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

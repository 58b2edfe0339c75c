package batch

import (
	"encoding/json"
	"fmt"
	"strings"
)

// maxTagsPerDocument caps the tag list of any document written by the pipeline.
const maxTagsPerDocument = 8

// NormalizeTags canonicalizes a tag list: entries are lowercased and trimmed,
// empty entries dropped, duplicates removed preserving first-seen order, and
// the result capped at maxTagsPerDocument. The scan stops as soon as the cap
// is reached, so input order decides which tags survive truncation.
func NormalizeTags(list []string) []string {
	normalized := make([]string, 0, maxTagsPerDocument)
	seen := make(map[string]struct{}, maxTagsPerDocument)
	for _, raw := range list {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag == "" {
			continue
		}
		if _, duplicate := seen[tag]; duplicate {
			continue
		}
		seen[tag] = struct{}{}
		normalized = append(normalized, tag)
		if len(normalized) == maxTagsPerDocument {
			break
		}
	}
	return normalized
}

// ParseTagsCell interprets a free-form tag cell as pasted from a spreadsheet.
// A cell that looks like a JSON array is parsed as one; anything else is split
// on "|" when present, otherwise on ",". The result is normalized. Malformed
// JSON falls through to delimiter splitting rather than failing.
func ParseTagsCell(cell string) []string {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return []string{}
	}

	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		var parsed []any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			values := make([]string, 0, len(parsed))
			for _, entry := range parsed {
				values = append(values, fmt.Sprint(entry))
			}
			return NormalizeTags(values)
		}
	}

	separator := ","
	if strings.Contains(trimmed, "|") {
		separator = "|"
	}
	return NormalizeTags(strings.Split(trimmed, separator))
}

// TagsCell accepts the heterogeneous tag encodings seen in pasted rows:
// a JSON string array, a single delimited string, or a JSON-encoded array
// inside a string. Absent and null cells leave Set false.
type TagsCell struct {
	Values []string
	Set    bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *TagsCell) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		c.Values = NormalizeTags(list)
		c.Set = true
		return nil
	}

	var cell string
	if err := json.Unmarshal(data, &cell); err == nil {
		c.Values = ParseTagsCell(cell)
		c.Set = true
		return nil
	}

	return fmt.Errorf("batch: tags must be an array or a string")
}

// MarshalJSON implements json.Marshaler so round-tripping a request keeps
// the parsed values.
func (c TagsCell) MarshalJSON() ([]byte, error) {
	if !c.Set {
		return []byte("null"), nil
	}
	return json.Marshal(c.Values)
}

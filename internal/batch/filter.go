package batch

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pourhouselabs/barback/internal/catalog"
)

// Filter fields.
const (
	FilterFieldDescription = "description"
	FilterFieldTags        = "tags"
)

// Filter modes. Only a subset translates into a native store query; the rest
// is evaluated after the fetch via MatchesFilter.
const (
	FilterModeExact     = "exact"
	FilterModeIExact    = "iexact"
	FilterModeContains  = "contains"
	FilterModeIContains = "icontains"
	FilterModeRegex     = "regex"
	FilterModeEmpty     = "empty"
	FilterModeMissing   = "missing"
	FilterModeTagsAny   = "tags_any"
	FilterModeTagsAll   = "tags_all"
)

// FilterSpec selects the documents an operation applies to.
type FilterSpec struct {
	Field string `json:"field"`
	Mode  string `json:"mode"`
	Value any    `json:"value,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

var descriptionModes = map[string]struct{}{
	FilterModeExact:     {},
	FilterModeIExact:    {},
	FilterModeContains:  {},
	FilterModeIContains: {},
	FilterModeRegex:     {},
	FilterModeEmpty:     {},
	FilterModeMissing:   {},
}

var tagModes = map[string]struct{}{
	FilterModeTagsAny: {},
	FilterModeTagsAll: {},
}

// Validate checks the field/mode vocabulary and the value shape the mode needs.
func (f FilterSpec) Validate() error {
	switch f.Field {
	case FilterFieldDescription:
		if _, ok := descriptionModes[f.Mode]; !ok {
			return errValidationf("unknown description filter mode %q", f.Mode)
		}
		if f.Mode == FilterModeEmpty || f.Mode == FilterModeMissing {
			return nil
		}
		if _, ok := f.stringValue(); !ok {
			return errValidationf("description filter mode %q requires a string value", f.Mode)
		}
		return nil
	case FilterFieldTags:
		if _, ok := tagModes[f.Mode]; !ok {
			return errValidationf("unknown tags filter mode %q", f.Mode)
		}
		values, ok := f.stringListValue()
		if !ok || len(values) == 0 {
			return errValidationf("tags filter mode %q requires a non-empty string list", f.Mode)
		}
		return nil
	default:
		return errValidationf("unknown filter field %q", f.Field)
	}
}

// NativeQueryFor maps the filter onto the predicates the store can evaluate
// itself. The second return is false when the mode is not natively
// expressible and the caller must post-filter a broader snapshot with
// MatchesFilter. The limit bounds the native query either way.
func NativeQueryFor(f FilterSpec) (catalog.NativeQuery, bool) {
	query := catalog.NativeQuery{Limit: f.Limit}

	switch f.Field {
	case FilterFieldDescription:
		switch f.Mode {
		case FilterModeExact:
			value, _ := f.stringValue()
			query.DescriptionEquals = &value
			return query, true
		case FilterModeEmpty:
			empty := ""
			query.DescriptionEquals = &empty
			return query, true
		case FilterModeMissing:
			query.DescriptionMissing = true
			return query, true
		}
	case FilterFieldTags:
		if f.Mode == FilterModeTagsAny {
			values, _ := f.stringListValue()
			query.TagsAny = NormalizeTags(values)
			return query, true
		}
	}

	return query, false
}

// MatchesFilter evaluates the full filter vocabulary against a document
// already in hand, mirroring the native query semantics for the modes the
// store handles itself.
func MatchesFilter(doc catalog.Document, f FilterSpec) bool {
	switch f.Field {
	case FilterFieldDescription:
		return matchesDescription(doc, f)
	case FilterFieldTags:
		return matchesTags(doc, f)
	default:
		return false
	}
}

func matchesDescription(doc catalog.Document, f FilterSpec) bool {
	switch f.Mode {
	case FilterModeMissing:
		return doc.Description == nil
	case FilterModeEmpty:
		return doc.Description != nil && *doc.Description == ""
	}

	if doc.Description == nil {
		return false
	}
	current := *doc.Description
	value, _ := f.stringValue()

	switch f.Mode {
	case FilterModeExact:
		return current == value
	case FilterModeIExact:
		return strings.EqualFold(current, value)
	case FilterModeContains, FilterModeIContains:
		// Substring matching has always been case-insensitive in this pipeline.
		return strings.Contains(strings.ToLower(current), strings.ToLower(value))
	case FilterModeRegex:
		compiled, err := regexp.Compile(value)
		if err != nil {
			// Invalid user-supplied pattern matches nothing.
			return false
		}
		return compiled.MatchString(current)
	default:
		return false
	}
}

func matchesTags(doc catalog.Document, f FilterSpec) bool {
	wanted, _ := f.stringListValue()
	wanted = NormalizeTags(wanted)
	if len(wanted) == 0 {
		return false
	}

	present := make(map[string]struct{}, len(doc.Tags))
	for _, tag := range NormalizeTags(doc.Tags) {
		present[tag] = struct{}{}
	}

	switch f.Mode {
	case FilterModeTagsAny:
		for _, tag := range wanted {
			if _, ok := present[tag]; ok {
				return true
			}
		}
		return false
	case FilterModeTagsAll:
		for _, tag := range wanted {
			if _, ok := present[tag]; !ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (f FilterSpec) stringValue() (string, bool) {
	value, ok := f.Value.(string)
	return value, ok
}

func (f FilterSpec) stringListValue() ([]string, bool) {
	switch typed := f.Value.(type) {
	case []string:
		return typed, true
	case []any:
		values := make([]string, 0, len(typed))
		for _, entry := range typed {
			values = append(values, fmt.Sprint(entry))
		}
		return values, true
	default:
		return nil, false
	}
}

package batch

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pourhouselabs/barback/internal/catalog"
)

// OperationType enumerates the supported bulk mutations.
type OperationType string

const (
	// OperationDescriptionSet replaces the description unconditionally.
	OperationDescriptionSet OperationType = "description_set"
	// OperationDescriptionFindReplace rewrites the description with a literal or regex substitution.
	OperationDescriptionFindReplace OperationType = "description_find_replace"
	// OperationTagsAdd unions new tags into the current tag list.
	OperationTagsAdd OperationType = "tags_add"
	// OperationTagsRemove removes the listed tags from the current tag list.
	OperationTagsRemove OperationType = "tags_remove"
	// OperationTagsReplace replaces the tag list outright.
	OperationTagsReplace OperationType = "tags_replace"
)

// Operation is the tagged union describing one bulk mutation. The payload
// shape depends on Type and is validated before use.
type Operation struct {
	Type    OperationType   `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type descriptionSetPayload struct {
	NewText string `json:"newText"`
}

type findReplacePayload struct {
	Find            string `json:"find"`
	Replace         string `json:"replace"`
	Regex           bool   `json:"regex"`
	CaseInsensitive bool   `json:"caseInsensitive"`
}

type tagsAddPayload struct {
	Add []string `json:"add"`
}

type tagsRemovePayload struct {
	Remove []string `json:"remove"`
}

type tagsReplacePayload struct {
	NewTags []string `json:"newTags"`
}

// Validate checks that the operation type is known and its payload decodes
// into the variant-specific shape.
func (op Operation) Validate() error {
	switch op.Type {
	case OperationDescriptionSet:
		var payload descriptionSetPayload
		return decodePayload(op, &payload)
	case OperationDescriptionFindReplace:
		var payload findReplacePayload
		return decodePayload(op, &payload)
	case OperationTagsAdd:
		var payload tagsAddPayload
		if err := decodePayload(op, &payload); err != nil {
			return err
		}
		if len(payload.Add) == 0 {
			return errValidationf("operation %s requires a non-empty add list", op.Type)
		}
		return nil
	case OperationTagsRemove:
		var payload tagsRemovePayload
		if err := decodePayload(op, &payload); err != nil {
			return err
		}
		if len(payload.Remove) == 0 {
			return errValidationf("operation %s requires a non-empty remove list", op.Type)
		}
		return nil
	case OperationTagsReplace:
		var payload tagsReplacePayload
		return decodePayload(op, &payload)
	default:
		return errValidationf("unknown operation type %q", op.Type)
	}
}

func decodePayload(op Operation, target any) error {
	if len(op.Payload) == 0 {
		return errValidationf("operation %s requires a payload", op.Type)
	}
	if err := json.Unmarshal(op.Payload, target); err != nil {
		return errValidationf("operation %s payload is malformed: %v", op.Type, err)
	}
	return nil
}

// FieldPatch is a proposed field-level change to one document. Nil fields are
// untouched; a non-nil Tags pointer replaces the full tag list.
type FieldPatch struct {
	Description *string
	Tags        *[]string
}

// IsZero reports whether the patch changes nothing.
func (p FieldPatch) IsZero() bool {
	return p.Description == nil && p.Tags == nil
}

// ApplyOperation computes the field patch an operation produces for the given
// document. It is total over the Operation union: unknown types, malformed
// payloads and invalid user-supplied regex patterns all degrade to a no-op
// rather than an error.
func ApplyOperation(doc catalog.Document, op Operation) FieldPatch {
	switch op.Type {
	case OperationDescriptionSet:
		var payload descriptionSetPayload
		if json.Unmarshal(op.Payload, &payload) != nil {
			return FieldPatch{}
		}
		return FieldPatch{Description: &payload.NewText}

	case OperationDescriptionFindReplace:
		var payload findReplacePayload
		if json.Unmarshal(op.Payload, &payload) != nil {
			return FieldPatch{}
		}
		if payload.Find == "" {
			return FieldPatch{}
		}
		current := ""
		if doc.Description != nil {
			current = *doc.Description
		}
		updated := findReplace(current, payload)
		return FieldPatch{Description: &updated}

	case OperationTagsAdd:
		var payload tagsAddPayload
		if json.Unmarshal(op.Payload, &payload) != nil {
			return FieldPatch{}
		}
		merged := append(NormalizeTags(doc.Tags), NormalizeTags(payload.Add)...)
		result := NormalizeTags(merged)
		return FieldPatch{Tags: &result}

	case OperationTagsRemove:
		var payload tagsRemovePayload
		if json.Unmarshal(op.Payload, &payload) != nil {
			return FieldPatch{}
		}
		removed := make(map[string]struct{})
		for _, tag := range NormalizeTags(payload.Remove) {
			removed[tag] = struct{}{}
		}
		kept := make([]string, 0, len(doc.Tags))
		for _, tag := range NormalizeTags(doc.Tags) {
			if _, drop := removed[tag]; drop {
				continue
			}
			kept = append(kept, tag)
		}
		return FieldPatch{Tags: &kept}

	case OperationTagsReplace:
		var payload tagsReplacePayload
		if json.Unmarshal(op.Payload, &payload) != nil {
			return FieldPatch{}
		}
		result := NormalizeTags(payload.NewTags)
		return FieldPatch{Tags: &result}

	default:
		return FieldPatch{}
	}
}

func findReplace(current string, payload findReplacePayload) string {
	if payload.Regex {
		pattern := payload.Find
		if payload.CaseInsensitive {
			pattern = "(?i)" + pattern
		}
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			// User-supplied pattern syntax fails soft.
			return current
		}
		return compiled.ReplaceAllString(current, payload.Replace)
	}

	if payload.CaseInsensitive {
		compiled, err := regexp.Compile("(?i)" + regexp.QuoteMeta(payload.Find))
		if err != nil {
			return current
		}
		// Literal mode keeps the replacement text literal too.
		return compiled.ReplaceAllLiteralString(current, payload.Replace)
	}

	return strings.ReplaceAll(current, payload.Find, payload.Replace)
}

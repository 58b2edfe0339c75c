package batch

import (
	"context"
	"errors"
	"strings"

	"github.com/pourhouselabs/barback/internal/catalog"
)

const (
	// ModeQuery selects candidate rows with a server-side filter.
	ModeQuery = "query"
	// ModePaste takes a client-supplied row list pasted from a spreadsheet.
	ModePaste = "paste"
	// ModeRollback marks jobs that replay a backup snapshot.
	ModeRollback = "rollback"

	// maxPreviewRows caps the rows array of a preview response.
	maxPreviewRows = 1000
	// maxPasteRows caps the caller-supplied row list.
	maxPasteRows = 1000

	// importedPlaceholderPrefix marks descriptions produced by the catalog importer.
	importedPlaceholderPrefix = "Imported ingredient"
)

// Options tune the skip rules applied during preview and commit.
type Options struct {
	// OnlyImportedPlaceholders restricts the pool to rows whose current
	// description is empty or still carries the importer placeholder prefix.
	OnlyImportedPlaceholders bool `json:"onlyImportedPlaceholders"`
	// SkipIfSame drops rows the operation would not change. Defaults to true.
	SkipIfSame *bool `json:"skipIfSame,omitempty"`
}

func (o Options) skipIfSame() bool {
	return o.SkipIfSame == nil || *o.SkipIfSame
}

// PastedRow is one client-supplied candidate in paste mode.
type PastedRow struct {
	ID       string       `json:"id"`
	Name     string       `json:"name,omitempty"`
	Proposed PastedFields `json:"proposed"`
}

// PastedFields carries the caller's proposed values; omitted fields keep the
// live document's value.
type PastedFields struct {
	Description *string  `json:"description,omitempty"`
	Tags        TagsCell `json:"tags,omitempty"`
}

// Request is the shared body of preview and commit calls.
type Request struct {
	Mode       string      `json:"mode"`
	Collection string      `json:"collection"`
	Filters    *FilterSpec `json:"filters,omitempty"`
	Operation  *Operation  `json:"operation,omitempty"`
	Rows       []PastedRow `json:"rows,omitempty"`
	Options    Options     `json:"options"`
}

// RowState is a partial document snapshot. A nil Description models a missing
// field; a nil Tags pointer means the field is not part of the state.
type RowState struct {
	Description *string   `json:"description,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

// Row pairs a candidate document's current state with the state the
// operation proposes.
type Row struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Current  RowState `json:"current"`
	Proposed RowState `json:"proposed"`
}

// Warnings surfaces non-fatal anomalies found while building a preview.
type Warnings struct {
	Duplicates int `json:"duplicates"`
}

// Preview is the dry-run result: the rows a commit would write, plus the
// skip/missing/duplicate accounting over the full candidate set.
type Preview struct {
	Rows     []Row    `json:"rows"`
	Skipped  int      `json:"skipped"`
	Missing  []string `json:"missing"`
	Warnings Warnings `json:"warnings"`
}

func (r Request) validate() error {
	if _, err := catalog.NormalizeCollection(r.Collection); err != nil {
		return errValidationf("unknown collection %q", r.Collection)
	}

	switch r.Mode {
	case ModeQuery:
		if r.Filters == nil {
			return errValidationf("query mode requires filters")
		}
		if err := r.Filters.Validate(); err != nil {
			return err
		}
		if r.Operation == nil {
			return errValidationf("query mode requires an operation")
		}
		return r.Operation.Validate()
	case ModePaste:
		if len(r.Rows) == 0 {
			return errValidationf("paste mode requires rows")
		}
		if len(r.Rows) > maxPasteRows {
			return errValidationf("paste mode accepts at most %d rows", maxPasteRows)
		}
		for _, row := range r.Rows {
			if strings.TrimSpace(row.ID) == "" {
				return errValidationf("paste rows require an id")
			}
		}
		return nil
	default:
		return errValidationf("unknown mode %q", r.Mode)
	}
}

// BuildPreview computes the dry run for a preview or commit request. It
// performs no writes.
func BuildPreview(ctx context.Context, store catalog.Store, req Request) (Preview, error) {
	if err := req.validate(); err != nil {
		return Preview{}, err
	}
	collection, _ := catalog.NormalizeCollection(req.Collection)

	switch req.Mode {
	case ModeQuery:
		return buildQueryPreview(ctx, store, collection, req)
	case ModePaste:
		return buildPastePreview(ctx, store, collection, req)
	default:
		return Preview{}, errValidationf("unknown mode %q", req.Mode)
	}
}

func buildQueryPreview(ctx context.Context, store catalog.Store, collection string, req Request) (Preview, error) {
	preview := Preview{Rows: []Row{}, Missing: []string{}}

	nativeQuery, native := NativeQueryFor(*req.Filters)
	documents, err := store.Query(ctx, collection, nativeQuery)
	if err != nil {
		return Preview{}, err
	}

	for _, doc := range documents {
		if !native && !MatchesFilter(doc, *req.Filters) {
			// Dropped entirely, not counted as skipped.
			continue
		}

		patch := ApplyOperation(doc, *req.Operation)
		if shouldSkip(doc, patch, req.Options) {
			preview.Skipped++
			continue
		}
		preview.Rows = append(preview.Rows, makeRow(doc, patch))
	}

	truncateRows(&preview)
	return preview, nil
}

func buildPastePreview(ctx context.Context, store catalog.Store, collection string, req Request) (Preview, error) {
	preview := Preview{Rows: []Row{}, Missing: []string{}}

	// Last occurrence wins the slot; order follows first appearance.
	order := make([]string, 0, len(req.Rows))
	byID := make(map[string]PastedRow, len(req.Rows))
	for _, row := range req.Rows {
		if _, seen := byID[row.ID]; seen {
			preview.Warnings.Duplicates++
		} else {
			order = append(order, row.ID)
		}
		byID[row.ID] = row
	}

	for _, id := range order {
		pasted := byID[id]

		doc, err := store.Get(ctx, collection, id)
		if errors.Is(err, catalog.ErrNotFound) {
			preview.Missing = append(preview.Missing, id)
			continue
		}
		if err != nil {
			return Preview{}, err
		}

		patch := FieldPatch{Description: pasted.Proposed.Description}
		if pasted.Proposed.Tags.Set {
			values := pasted.Proposed.Tags.Values
			patch.Tags = &values
		}

		if shouldSkip(doc, patch, req.Options) {
			preview.Skipped++
			continue
		}
		preview.Rows = append(preview.Rows, makeRow(doc, patch))
	}

	truncateRows(&preview)
	return preview, nil
}

// shouldSkip applies the two skip rules: the placeholder pool restriction and
// the no-op suppression. Either one suffices.
func shouldSkip(doc catalog.Document, patch FieldPatch, options Options) bool {
	if options.OnlyImportedPlaceholders {
		current := ""
		if doc.Description != nil {
			current = *doc.Description
		}
		if current != "" && !strings.HasPrefix(current, importedPlaceholderPrefix) {
			return true
		}
	}

	if options.skipIfSame() && !patchChanges(doc, patch) {
		return true
	}

	return false
}

// patchChanges reports whether the merged final state differs from the
// current document.
func patchChanges(doc catalog.Document, patch FieldPatch) bool {
	if patch.Description != nil {
		if doc.Description == nil || *doc.Description != *patch.Description {
			return true
		}
	}
	if patch.Tags != nil && !equalTagLists(doc.Tags, *patch.Tags) {
		return true
	}
	return false
}

func equalTagLists(current, proposed []string) bool {
	if len(current) != len(proposed) {
		return false
	}
	for i := range current {
		if current[i] != proposed[i] {
			return false
		}
	}
	return true
}

func makeRow(doc catalog.Document, patch FieldPatch) Row {
	currentTags := append([]string(nil), doc.Tags...)
	if currentTags == nil {
		currentTags = []string{}
	}
	row := Row{
		ID:   doc.ID,
		Name: doc.Name,
		Current: RowState{
			Description: doc.Description,
			Tags:        &currentTags,
		},
		Proposed: RowState{
			Description: patch.Description,
		},
	}
	if patch.Tags != nil {
		proposed := append([]string(nil), (*patch.Tags)...)
		row.Proposed.Tags = &proposed
	}
	return row
}

// truncateRows enforces the response-size cap after skip filtering; counters
// keep reflecting the full candidate set.
func truncateRows(preview *Preview) {
	if len(preview.Rows) > maxPreviewRows {
		preview.Rows = preview.Rows[:maxPreviewRows]
	}
}

package batch

import (
	"context"
	"fmt"
	"testing"

	"github.com/pourhouselabs/barback/internal/catalog"
)

func seedDoc(t *testing.T, store *catalog.MemStore, collection string, doc catalog.Document) {
	t.Helper()
	if err := store.Put(collection, doc); err != nil {
		t.Fatalf("seed %s/%s: %v", collection, doc.ID, err)
	}
}

func boolPtr(value bool) *bool {
	return &value
}

func TestBuildPreviewQueryModeSkipsUnchangedRows(t *testing.T) {
	store := catalog.NewMemStore()
	seedDoc(t, store, catalog.CollectionCocktails, catalog.Document{ID: "c1", Name: "Daiquiri", Description: strPtr("old text"), Tags: []string{"rum"}})
	seedDoc(t, store, catalog.CollectionCocktails, catalog.Document{ID: "c2", Name: "Mai Tai", Description: strPtr("new text"), Tags: []string{"rum"}})

	req := Request{
		Mode:       ModeQuery,
		Collection: catalog.CollectionCocktails,
		Filters:    &FilterSpec{Field: FilterFieldTags, Mode: FilterModeTagsAny, Value: []string{"rum"}},
		Operation:  &Operation{Type: OperationDescriptionSet, Payload: mustPayload(t, descriptionSetPayload{NewText: "new text"})},
	}

	preview, err := BuildPreview(context.Background(), store, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(preview.Rows) != 1 || preview.Rows[0].ID != "c1" {
		t.Fatalf("unexpected rows: %#v", preview.Rows)
	}
	if preview.Skipped != 1 {
		t.Fatalf("expected one skipped row, got %d", preview.Skipped)
	}
	if preview.Rows[0].Proposed.Description == nil || *preview.Rows[0].Proposed.Description != "new text" {
		t.Fatalf("unexpected proposed state: %#v", preview.Rows[0].Proposed)
	}
}

func TestBuildPreviewSkipIfSameDisabled(t *testing.T) {
	store := catalog.NewMemStore()
	seedDoc(t, store, catalog.CollectionCocktails, catalog.Document{ID: "c1", Name: "Daiquiri", Description: strPtr("same"), Tags: []string{"rum"}})

	req := Request{
		Mode:       ModeQuery,
		Collection: catalog.CollectionCocktails,
		Filters:    &FilterSpec{Field: FilterFieldTags, Mode: FilterModeTagsAny, Value: []string{"rum"}},
		Operation:  &Operation{Type: OperationDescriptionSet, Payload: mustPayload(t, descriptionSetPayload{NewText: "same"})},
		Options:    Options{SkipIfSame: boolPtr(false)},
	}

	preview, err := BuildPreview(context.Background(), store, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(preview.Rows) != 1 || preview.Skipped != 0 {
		t.Fatalf("no-op rows must be included when skipIfSame is off: %#v", preview)
	}
}

func TestBuildPreviewOnlyImportedPlaceholders(t *testing.T) {
	store := catalog.NewMemStore()
	seedDoc(t, store, catalog.CollectionIngredients, catalog.Document{ID: "i1", Name: "Lime", Description: strPtr("Imported ingredient: lime"), Tags: []string{"fruit"}})
	seedDoc(t, store, catalog.CollectionIngredients, catalog.Document{ID: "i2", Name: "Rum", Description: strPtr("House-written note"), Tags: []string{"fruit"}})
	seedDoc(t, store, catalog.CollectionIngredients, catalog.Document{ID: "i3", Name: "Mint", Description: strPtr(""), Tags: []string{"fruit"}})
	seedDoc(t, store, catalog.CollectionIngredients, catalog.Document{ID: "i4", Name: "Salt", Tags: []string{"fruit"}})

	req := Request{
		Mode:       ModeQuery,
		Collection: catalog.CollectionIngredients,
		Filters:    &FilterSpec{Field: FilterFieldTags, Mode: FilterModeTagsAny, Value: []string{"fruit"}},
		Operation:  &Operation{Type: OperationDescriptionSet, Payload: mustPayload(t, descriptionSetPayload{NewText: "fresh copy"})},
		Options:    Options{OnlyImportedPlaceholders: true},
	}

	preview, err := BuildPreview(context.Background(), store, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gotIDs := make([]string, 0, len(preview.Rows))
	for _, row := range preview.Rows {
		gotIDs = append(gotIDs, row.ID)
	}
	// i2 has a hand-written description and falls out of the pool; the empty
	// and missing descriptions stay in.
	if len(gotIDs) != 3 || gotIDs[0] != "i1" || gotIDs[1] != "i3" || gotIDs[2] != "i4" {
		t.Fatalf("unexpected pool: %v", gotIDs)
	}
	if preview.Skipped != 1 {
		t.Fatalf("expected one skipped row, got %d", preview.Skipped)
	}
}

func TestBuildPreviewQueryModeFallbackFilter(t *testing.T) {
	store := catalog.NewMemStore()
	seedDoc(t, store, catalog.CollectionCocktails, catalog.Document{ID: "c1", Name: "Daiquiri", Description: strPtr("A RUM sour")})
	seedDoc(t, store, catalog.CollectionCocktails, catalog.Document{ID: "c2", Name: "Martini", Description: strPtr("A gin classic")})

	req := Request{
		Mode:       ModeQuery,
		Collection: catalog.CollectionCocktails,
		Filters:    &FilterSpec{Field: FilterFieldDescription, Mode: FilterModeIContains, Value: "rum"},
		Operation:  &Operation{Type: OperationTagsAdd, Payload: mustPayload(t, tagsAddPayload{Add: []string{"rum"}})},
	}

	preview, err := BuildPreview(context.Background(), store, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(preview.Rows) != 1 || preview.Rows[0].ID != "c1" {
		t.Fatalf("unexpected rows: %#v", preview.Rows)
	}
	// The gin cocktail is dropped by the filter, not counted as skipped.
	if preview.Skipped != 0 {
		t.Fatalf("filter misses must not count as skipped: %d", preview.Skipped)
	}
}

func TestBuildPreviewPasteModeDuplicatesAndMissing(t *testing.T) {
	store := catalog.NewMemStore()
	seedDoc(t, store, catalog.CollectionCocktails, catalog.Document{ID: "c1", Name: "Daiquiri", Description: strPtr("old")})

	req := Request{
		Mode:       ModePaste,
		Collection: catalog.CollectionCocktails,
		Rows: []PastedRow{
			{ID: "c1", Proposed: PastedFields{Description: strPtr("first write")}},
			{ID: "ghost", Proposed: PastedFields{Description: strPtr("whatever")}},
			{ID: "c1", Proposed: PastedFields{Description: strPtr("last write wins")}},
		},
	}

	preview, err := BuildPreview(context.Background(), store, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preview.Warnings.Duplicates != 1 {
		t.Fatalf("expected one duplicate warning, got %d", preview.Warnings.Duplicates)
	}
	if len(preview.Missing) != 1 || preview.Missing[0] != "ghost" {
		t.Fatalf("unexpected missing list: %v", preview.Missing)
	}
	if len(preview.Rows) != 1 || preview.Rows[0].ID != "c1" {
		t.Fatalf("unexpected rows: %#v", preview.Rows)
	}
	if *preview.Rows[0].Proposed.Description != "last write wins" {
		t.Fatalf("last occurrence must win: %q", *preview.Rows[0].Proposed.Description)
	}
}

func TestBuildPreviewPasteModeUnsetFieldsKeepCurrent(t *testing.T) {
	store := catalog.NewMemStore()
	seedDoc(t, store, catalog.CollectionCocktails, catalog.Document{ID: "c1", Name: "Daiquiri", Description: strPtr("keep me"), Tags: []string{"rum"}})

	req := Request{
		Mode:       ModePaste,
		Collection: catalog.CollectionCocktails,
		Rows: []PastedRow{
			{ID: "c1", Proposed: PastedFields{Tags: TagsCell{Values: []string{"rum", "classic"}, Set: true}}},
		},
	}

	preview, err := BuildPreview(context.Background(), store, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(preview.Rows) != 1 {
		t.Fatalf("unexpected rows: %#v", preview.Rows)
	}
	row := preview.Rows[0]
	if row.Proposed.Description != nil {
		t.Fatalf("unset description must stay untouched: %#v", row.Proposed)
	}
	if row.Proposed.Tags == nil || len(*row.Proposed.Tags) != 2 {
		t.Fatalf("unexpected proposed tags: %#v", row.Proposed.Tags)
	}
}

func TestBuildPreviewValidation(t *testing.T) {
	store := catalog.NewMemStore()
	ctx := context.Background()

	cases := []Request{
		{Mode: ModeQuery, Collection: "spirits"},
		{Mode: "bulk", Collection: catalog.CollectionCocktails},
		{Mode: ModeQuery, Collection: catalog.CollectionCocktails},
		{Mode: ModeQuery, Collection: catalog.CollectionCocktails, Filters: &FilterSpec{Field: FilterFieldDescription, Mode: FilterModeExact, Value: "x"}},
		{Mode: ModePaste, Collection: catalog.CollectionCocktails},
		{Mode: ModePaste, Collection: catalog.CollectionCocktails, Rows: []PastedRow{{ID: "  "}}},
	}
	for i, req := range cases {
		if _, err := BuildPreview(ctx, store, req); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}

	tooMany := Request{Mode: ModePaste, Collection: catalog.CollectionCocktails}
	for i := 0; i <= maxPasteRows; i++ {
		tooMany.Rows = append(tooMany.Rows, PastedRow{ID: fmt.Sprintf("row-%d", i)})
	}
	if _, err := BuildPreview(ctx, store, tooMany); err == nil {
		t.Fatalf("expected validation error for oversized paste")
	}
}

func TestBuildPreviewTruncatesRowsButKeepsCounters(t *testing.T) {
	store := catalog.NewMemStore()
	total := maxPreviewRows + 25
	for i := 0; i < total; i++ {
		seedDoc(t, store, catalog.CollectionCocktails, catalog.Document{
			ID:   fmt.Sprintf("c%04d", i),
			Name: fmt.Sprintf("Cocktail %d", i),
			Tags: []string{"bulk"},
		})
	}

	req := Request{
		Mode:       ModeQuery,
		Collection: catalog.CollectionCocktails,
		Filters:    &FilterSpec{Field: FilterFieldTags, Mode: FilterModeTagsAny, Value: []string{"bulk"}},
		Operation:  &Operation{Type: OperationTagsAdd, Payload: mustPayload(t, tagsAddPayload{Add: []string{"reviewed"}})},
	}

	preview, err := BuildPreview(context.Background(), store, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(preview.Rows) != maxPreviewRows {
		t.Fatalf("expected %d rows after truncation, got %d", maxPreviewRows, len(preview.Rows))
	}
}

func mustPayload(t *testing.T, payload any) []byte {
	t.Helper()
	op := makeOperation(t, "", payload)
	return op.Payload
}

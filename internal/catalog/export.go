package catalog

import (
	"context"
	"strings"
)

// ExportRow is the flattened spreadsheet-friendly shape produced by the
// admin export endpoints. Tags are comma-joined into a single cell.
type ExportRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Tags        string `json:"tags"`
}

// ExportRows fetches every document of a collection and flattens it for
// external tooling, ordered by name for stable spreadsheet diffs.
func ExportRows(ctx context.Context, store Store, collection string) ([]ExportRow, error) {
	documents, err := store.Query(ctx, collection, NativeQuery{})
	if err != nil {
		return nil, err
	}
	SortDocumentsByName(documents)

	rows := make([]ExportRow, 0, len(documents))
	for _, doc := range documents {
		description := ""
		if doc.Description != nil {
			description = *doc.Description
		}
		rows = append(rows, ExportRow{
			ID:          doc.ID,
			Name:        doc.Name,
			Description: description,
			Tags:        strings.Join(doc.Tags, ","),
		})
	}
	return rows, nil
}

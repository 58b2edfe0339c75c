package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BackupRow is the pre-mutation state of one matched document as serialized
// into the snapshot file.
type BackupRow struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Description *string  `json:"description"`
	Tags        []string `json:"tags"`
}

// BackupFileName derives the snapshot file name from a timestamp, truncated
// to whole seconds with colons stripped for filesystem safety.
func BackupFileName(t time.Time) string {
	stamp := t.UTC().Truncate(time.Second).Format(time.RFC3339)
	return "batch_" + strings.ReplaceAll(stamp, ":", "") + ".json"
}

// WriteBackup serializes the current values of every matched row to the given
// path as pretty-printed JSON. It must complete before any live document is
// mutated for the job.
func WriteBackup(path string, rows []Row) error {
	backup := make([]BackupRow, 0, len(rows))
	for _, row := range rows {
		tags := []string{}
		if row.Current.Tags != nil {
			tags = append(tags, (*row.Current.Tags)...)
		}
		backup = append(backup, BackupRow{
			ID:          row.ID,
			Name:        row.Name,
			Description: row.Current.Description,
			Tags:        tags,
		})
	}

	data, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return fmt.Errorf("batch: marshal backup: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("batch: create backup dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("batch: write backup: %w", err)
	}
	return nil
}

// ReadBackup loads a snapshot file written by WriteBackup.
func ReadBackup(path string) ([]BackupRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("batch: read backup: %w", err)
	}
	var rows []BackupRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("batch: parse backup: %w", err)
	}
	return rows, nil
}

// rollbackRows reconstructs commit rows from a backup snapshot. Current and
// proposed are both the backed-up values so the write phase restores the
// snapshot verbatim.
func rollbackRows(backup []BackupRow) []Row {
	rows := make([]Row, 0, len(backup))
	for _, entry := range backup {
		tags := append([]string(nil), entry.Tags...)
		if tags == nil {
			tags = []string{}
		}
		currentTags := append([]string(nil), tags...)
		rows = append(rows, Row{
			ID:   entry.ID,
			Name: entry.Name,
			Current: RowState{
				Description: entry.Description,
				Tags:        &currentTags,
			},
			Proposed: RowState{
				Description: entry.Description,
				Tags:        &tags,
			},
		})
	}
	return rows
}

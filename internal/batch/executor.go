package batch

import (
	"context"

	"github.com/pourhouselabs/barback/internal/catalog"
	"github.com/pourhouselabs/barback/internal/metrics"
)

// chunkSize keeps each atomic batch under the store's 500-operation write
// ceiling with headroom.
const chunkSize = 450

// Counters tracks a job's progress. Matched is fixed at commit start;
// written, skipped and errors accumulate monotonically during execution.
type Counters struct {
	Matched int `gorm:"column:matched;not null;default:0" json:"matched"`
	Written int `gorm:"column:written;not null;default:0" json:"written"`
	Skipped int `gorm:"column:skipped;not null;default:0" json:"skipped"`
	Errors  int `gorm:"column:errors;not null;default:0" json:"errors"`
}

// updateDocsInChunks applies the rows' proposed values in fixed-size atomic
// batches, strictly sequentially. Written is incremented by the full group
// size only after its batch commits, and persist runs after every group so
// the persisted counts are always a prefix of the full write set. The first
// failing group aborts execution; earlier groups stay committed.
func updateDocsInChunks(ctx context.Context, store catalog.Store, collection string, rows []Row, counters *Counters, persist func(Counters) error) error {
	for start := 0; start < len(rows); start += chunkSize {
		end := min(start+chunkSize, len(rows))

		patches := make([]catalog.Patch, 0, end-start)
		for _, row := range rows[start:end] {
			patches = append(patches, catalog.Patch{
				ID:          row.ID,
				Description: row.Proposed.Description,
				Tags:        row.Proposed.Tags,
			})
		}

		err := store.ApplyPatches(ctx, collection, patches)
		metrics.ObserveChunkCommit(len(patches), err)
		if err != nil {
			return err
		}

		counters.Written += len(patches)
		if persist != nil {
			if err := persist(*counters); err != nil {
				return err
			}
		}
	}
	return nil
}

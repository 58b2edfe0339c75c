package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pourhouselabs/barback/internal/catalog"
)

// recordingStore wraps a Store and records each patch batch, optionally
// failing a specific batch.
type recordingStore struct {
	catalog.Store
	batchSizes []int
	failOn     int
}

func (r *recordingStore) ApplyPatches(ctx context.Context, collection string, patches []catalog.Patch) error {
	r.batchSizes = append(r.batchSizes, len(patches))
	if r.failOn > 0 && len(r.batchSizes) == r.failOn {
		return errors.New("store unavailable")
	}
	return r.Store.ApplyPatches(ctx, collection, patches)
}

func seedCommitRows(t *testing.T, store *catalog.MemStore, total int) []Row {
	t.Helper()
	rows := make([]Row, 0, total)
	for i := 0; i < total; i++ {
		id := fmt.Sprintf("c%04d", i)
		seedDoc(t, store, catalog.CollectionCocktails, catalog.Document{ID: id, Name: "Cocktail"})
		rows = append(rows, Row{ID: id, Proposed: RowState{Description: strPtr("updated")}})
	}
	return rows
}

func TestUpdateDocsInChunksSplitsAtChunkBoundary(t *testing.T) {
	mem := catalog.NewMemStore()
	rows := seedCommitRows(t, mem, chunkSize+1)
	store := &recordingStore{Store: mem}

	var counters Counters
	persisted := make([]Counters, 0)
	err := updateDocsInChunks(context.Background(), store, catalog.CollectionCocktails, rows, &counters, func(c Counters) error {
		persisted = append(persisted, c)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.batchSizes) != 2 || store.batchSizes[0] != chunkSize || store.batchSizes[1] != 1 {
		t.Fatalf("unexpected batch sizes: %v", store.batchSizes)
	}
	if counters.Written != chunkSize+1 {
		t.Fatalf("unexpected written count: %d", counters.Written)
	}
	if len(persisted) != 2 || persisted[0].Written != chunkSize || persisted[1].Written != chunkSize+1 {
		t.Fatalf("persisted counts must track committed batches: %#v", persisted)
	}

	doc, err := mem.Get(context.Background(), catalog.CollectionCocktails, rows[len(rows)-1].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Description == nil || *doc.Description != "updated" {
		t.Fatalf("last row not written: %#v", doc)
	}
}

func TestUpdateDocsInChunksStopsAtFirstFailingBatch(t *testing.T) {
	mem := catalog.NewMemStore()
	rows := seedCommitRows(t, mem, 2*chunkSize+10)
	store := &recordingStore{Store: mem, failOn: 2}

	var counters Counters
	err := updateDocsInChunks(context.Background(), store, catalog.CollectionCocktails, rows, &counters, nil)
	if err == nil {
		t.Fatalf("expected the second batch to fail")
	}

	// The first batch stays committed; the third is never attempted.
	if len(store.batchSizes) != 2 {
		t.Fatalf("unexpected batch attempts: %v", store.batchSizes)
	}
	if counters.Written != chunkSize {
		t.Fatalf("written must only count committed batches: %d", counters.Written)
	}

	committed, err := mem.Get(context.Background(), catalog.CollectionCocktails, rows[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if committed.Description == nil || *committed.Description != "updated" {
		t.Fatalf("first batch should stay committed: %#v", committed)
	}

	untouched, err := mem.Get(context.Background(), catalog.CollectionCocktails, rows[len(rows)-1].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if untouched.Description != nil {
		t.Fatalf("rows past the failure must stay untouched: %#v", untouched)
	}
}

func TestUpdateDocsInChunksPersistFailureAborts(t *testing.T) {
	mem := catalog.NewMemStore()
	rows := seedCommitRows(t, mem, chunkSize+1)
	store := &recordingStore{Store: mem}

	var counters Counters
	persistCalls := 0
	err := updateDocsInChunks(context.Background(), store, catalog.CollectionCocktails, rows, &counters, func(Counters) error {
		persistCalls++
		return errors.New("job record gone")
	})
	if err == nil {
		t.Fatalf("expected persist failure to propagate")
	}
	if persistCalls != 1 || len(store.batchSizes) != 1 {
		t.Fatalf("execution must stop after the failing persist: persists=%d batches=%v", persistCalls, store.batchSizes)
	}
}

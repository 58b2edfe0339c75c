package catalog

import (
	"context"
	"errors"
	"testing"
)

func TestMemStorePutAndGetCopies(t *testing.T) {
	store := NewMemStore()
	tags := []string{"rum"}
	doc := Document{ID: "c1", Name: "Daiquiri", Description: descPtr("classic"), Tags: tags}
	if err := store.Put(CollectionCocktails, doc); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Mutating the seeded slice must not leak into the store.
	tags[0] = "mutated"

	got, err := store.Get(context.Background(), CollectionCocktails, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Tags[0] != "rum" {
		t.Fatalf("store must hold its own copy: %v", got.Tags)
	}

	// And mutating the returned copy must not touch the store either.
	got.Tags[0] = "mutated"
	again, err := store.Get(context.Background(), CollectionCocktails, "c1")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.Tags[0] != "rum" {
		t.Fatalf("returned documents must be copies: %v", again.Tags)
	}

	if _, err := store.Get(context.Background(), CollectionCocktails, "absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStoreQueryMatchesSQLStoreSemantics(t *testing.T) {
	store := NewMemStore()
	mustPut := func(doc Document) {
		if err := store.Put(CollectionCocktails, doc); err != nil {
			t.Fatalf("put %s: %v", doc.ID, err)
		}
	}
	mustPut(Document{ID: "c1", Description: descPtr("classic"), Tags: []string{"rum"}})
	mustPut(Document{ID: "c2", Description: descPtr("")})
	mustPut(Document{ID: "c3", Tags: []string{"rum", "tiki"}})

	ctx := context.Background()

	empty := ""
	byEmpty, err := store.Query(ctx, CollectionCocktails, NativeQuery{DescriptionEquals: &empty})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(byEmpty) != 1 || byEmpty[0].ID != "c2" {
		t.Fatalf("unexpected empty matches: %#v", byEmpty)
	}

	missing, err := store.Query(ctx, CollectionCocktails, NativeQuery{DescriptionMissing: true})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(missing) != 1 || missing[0].ID != "c3" {
		t.Fatalf("unexpected missing matches: %#v", missing)
	}

	byTag, err := store.Query(ctx, CollectionCocktails, NativeQuery{TagsAny: []string{"rum"}, Limit: 1})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(byTag) != 1 || byTag[0].ID != "c1" {
		t.Fatalf("tag query with limit must keep ID order: %#v", byTag)
	}
}

func TestMemStoreApplyPatchesIsAtomic(t *testing.T) {
	store := NewMemStore()
	if err := store.Put(CollectionCocktails, Document{ID: "c1", Description: descPtr("old")}); err != nil {
		t.Fatalf("put: %v", err)
	}

	err := store.ApplyPatches(context.Background(), CollectionCocktails, []Patch{
		{ID: "c1", Description: descPtr("new")},
		{ID: "ghost", Description: descPtr("whatever")},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	doc, err := store.Get(context.Background(), CollectionCocktails, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if *doc.Description != "old" {
		t.Fatalf("failed batch must leave the store untouched: %#v", doc)
	}
}

package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemStore is an in-memory Store used by tests and local tooling. It mirrors
// the atomicity contract of SQLStore: a patch batch either applies fully or
// leaves the store untouched.
type MemStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]Document
}

// NewMemStore returns an empty in-memory store with both collections present.
func NewMemStore() *MemStore {
	return &MemStore{
		docs: map[string]map[string]Document{
			CollectionCocktails:   {},
			CollectionIngredients: {},
		},
	}
}

// Put seeds or replaces a document. Intended for test setup.
func (m *MemStore) Put(collection string, doc Document) error {
	collection, err := NormalizeCollection(collection)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[collection][doc.ID] = cloneDocument(doc)
	return nil
}

// Get returns a copy of the stored document.
func (m *MemStore) Get(_ context.Context, collection, id string) (Document, error) {
	collection, err := NormalizeCollection(collection)
	if err != nil {
		return Document{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

// Query evaluates the native predicates over the collection, returning
// matches ordered by document ID.
func (m *MemStore) Query(_ context.Context, collection string, query NativeQuery) ([]Document, error) {
	collection, err := NormalizeCollection(collection)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]Document, 0)
	for _, doc := range m.docs[collection] {
		if !matchesNative(doc, query) {
			continue
		}
		matched = append(matched, cloneDocument(doc))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	if query.Limit > 0 && len(matched) > query.Limit {
		matched = matched[:query.Limit]
	}
	return matched, nil
}

// ApplyPatches validates every patch target first, then applies the whole
// batch under one lock acquisition.
func (m *MemStore) ApplyPatches(_ context.Context, collection string, patches []Patch) error {
	collection, err := NormalizeCollection(collection)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, patch := range patches {
		if _, ok := m.docs[collection][patch.ID]; !ok {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, patch.ID)
		}
	}

	for _, patch := range patches {
		doc := m.docs[collection][patch.ID]
		if patch.Description != nil {
			value := *patch.Description
			doc.Description = &value
		}
		if patch.Tags != nil {
			doc.Tags = append([]string(nil), (*patch.Tags)...)
		}
		m.docs[collection][patch.ID] = doc
	}
	return nil
}

func matchesNative(doc Document, query NativeQuery) bool {
	if query.DescriptionMissing {
		if doc.Description != nil {
			return false
		}
	} else if query.DescriptionEquals != nil {
		if doc.Description == nil || *doc.Description != *query.DescriptionEquals {
			return false
		}
	}
	if len(query.TagsAny) > 0 {
		found := false
		for _, want := range query.TagsAny {
			for _, have := range doc.Tags {
				if have == want {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func cloneDocument(doc Document) Document {
	clone := Document{
		ID:   doc.ID,
		Name: doc.Name,
		Tags: append([]string(nil), doc.Tags...),
	}
	if clone.Tags == nil {
		clone.Tags = []string{}
	}
	if doc.Description != nil {
		value := *doc.Description
		clone.Description = &value
	}
	return clone
}

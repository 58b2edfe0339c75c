package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"
)

// SQLStore implements Store on top of the shared GORM handle.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore constructs a SQLStore over the provided database handle.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("catalog: database handle is required")
	}
	return &SQLStore{db: db}, nil
}

// Get returns a single document by ID, including its ordered tag list.
func (s *SQLStore) Get(ctx context.Context, collection, id string) (Document, error) {
	collection, err := NormalizeCollection(collection)
	if err != nil {
		return Document{}, err
	}

	var record Record
	err = s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}

	tags, err := s.loadTags(ctx, collection, []string{id})
	if err != nil {
		return Document{}, err
	}

	return documentFromRecord(record, tags[id]), nil
}

// Query evaluates the native predicates and returns the matching documents
// ordered by document ID.
func (s *SQLStore) Query(ctx context.Context, collection string, query NativeQuery) ([]Document, error) {
	collection, err := NormalizeCollection(collection)
	if err != nil {
		return nil, err
	}

	scope := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("collection = ?", collection)

	if query.DescriptionMissing {
		scope = scope.Where("description IS NULL")
	} else if query.DescriptionEquals != nil {
		scope = scope.Where("description = ?", *query.DescriptionEquals)
	}

	if len(query.TagsAny) > 0 {
		tagScope := s.db.WithContext(ctx).
			Model(&TagRecord{}).
			Select("doc_id").
			Where("collection = ? AND tag IN ?", collection, query.TagsAny)
		scope = scope.Where("doc_id IN (?)", tagScope)
	}

	if query.Limit > 0 {
		scope = scope.Limit(query.Limit)
	}

	var records []Record
	if err := scope.Order("doc_id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []Document{}, nil
	}

	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.DocID)
	}
	tags, err := s.loadTags(ctx, collection, ids)
	if err != nil {
		return nil, err
	}

	documents := make([]Document, 0, len(records))
	for _, record := range records {
		documents = append(documents, documentFromRecord(record, tags[record.DocID]))
	}
	return documents, nil
}

// ApplyPatches applies every patch inside one transaction. A patch addressing
// a missing document fails the whole batch with ErrNotFound.
func (s *SQLStore) ApplyPatches(ctx context.Context, collection string, patches []Patch) error {
	collection, err := NormalizeCollection(collection)
	if err != nil {
		return err
	}
	if len(patches) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, patch := range patches {
			var existing Record
			err := tx.Where("collection = ? AND doc_id = ?", collection, patch.ID).
				Take(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, patch.ID)
			}
			if err != nil {
				return err
			}

			if patch.Description != nil {
				if err := tx.Model(&Record{}).
					Where("collection = ? AND doc_id = ?", collection, patch.ID).
					Update("description", *patch.Description).Error; err != nil {
					return err
				}
			}

			if patch.Tags != nil {
				if err := tx.Where("collection = ? AND doc_id = ?", collection, patch.ID).
					Delete(&TagRecord{}).Error; err != nil {
					return err
				}
				for position, tag := range *patch.Tags {
					row := TagRecord{
						Collection: collection,
						DocID:      patch.ID,
						Position:   position,
						Tag:        tag,
					}
					if err := tx.Create(&row).Error; err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

func (s *SQLStore) loadTags(ctx context.Context, collection string, ids []string) (map[string][]string, error) {
	var rows []TagRecord
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id IN ?", collection, ids).
		Order("doc_id ASC, position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	tags := make(map[string][]string, len(ids))
	for _, row := range rows {
		tags[row.DocID] = append(tags[row.DocID], row.Tag)
	}
	return tags, nil
}

func documentFromRecord(record Record, tags []string) Document {
	if tags == nil {
		tags = []string{}
	}
	return Document{
		ID:          record.DocID,
		Name:        record.Name,
		Description: record.Description,
		Tags:        tags,
	}
}

// SortDocumentsByName orders documents by display name, falling back to ID
// for a stable order when names collide.
func SortDocumentsByName(documents []Document) {
	sort.Slice(documents, func(i, j int) bool {
		if documents[i].Name != documents[j].Name {
			return documents[i].Name < documents[j].Name
		}
		return documents[i].ID < documents[j].ID
	})
}

package catalog

import (
	"errors"
	"strings"
	"time"
)

const (
	// CollectionCocktails holds the cocktail recipe documents.
	CollectionCocktails = "cocktails"
	// CollectionIngredients holds the ingredient documents.
	CollectionIngredients = "ingredients"
)

var (
	// ErrNotFound indicates the requested document does not exist in the collection.
	ErrNotFound = errors.New("catalog: document not found")
	// ErrUnknownCollection indicates the collection name is not one of the supported catalogs.
	ErrUnknownCollection = errors.New("catalog: unknown collection")
)

// NormalizeCollection validates a raw collection name and returns its canonical form.
func NormalizeCollection(rawInput string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(rawInput)) {
	case CollectionCocktails:
		return CollectionCocktails, nil
	case CollectionIngredients:
		return CollectionIngredients, nil
	default:
		return "", ErrUnknownCollection
	}
}

// Document is the flattened document shape the batch pipeline operates on.
// A nil Description models a document whose description field is absent,
// as opposed to present but empty.
type Document struct {
	ID          string
	Name        string
	Description *string
	Tags        []string
}

// Record is the persisted form of a catalog document.
type Record struct {
	Collection  string    `gorm:"column:collection;primaryKey;size:32;not null"`
	DocID       string    `gorm:"column:doc_id;primaryKey;size:190;not null"`
	Name        string    `gorm:"column:name;size:320;not null;default:'';index:idx_catalog_collection_name,priority:2"`
	Description *string   `gorm:"column:description;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "catalog_documents"
}

// TagRecord is one entry of the document-to-tag relation. Position preserves
// the order tags were written in so reads round-trip the original list.
type TagRecord struct {
	Collection string `gorm:"column:collection;primaryKey;size:32;not null;index:idx_catalog_tags_lookup,priority:1"`
	DocID      string `gorm:"column:doc_id;primaryKey;size:190;not null"`
	Position   int    `gorm:"column:position;primaryKey;not null"`
	Tag        string `gorm:"column:tag;size:64;not null;index:idx_catalog_tags_lookup,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (TagRecord) TableName() string {
	return "catalog_doc_tags"
}

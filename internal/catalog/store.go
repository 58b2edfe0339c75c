package catalog

import "context"

// NativeQuery describes the predicates the store can evaluate itself.
// The zero value scans the whole collection. Predicates the store cannot
// express (substring, case-insensitive, regex, tags-all) are evaluated by
// callers after the fetch.
type NativeQuery struct {
	// DescriptionEquals matches documents whose description equals the value
	// exactly. An empty string matches present-but-empty descriptions.
	DescriptionEquals *string
	// DescriptionMissing matches documents with no description field at all.
	DescriptionMissing bool
	// TagsAny matches documents carrying at least one of the listed tags.
	TagsAny []string
	// Limit bounds the number of returned documents; zero means unbounded.
	Limit int
}

// Patch is a field-level update addressed by document ID. Nil fields are
// left untouched; a non-nil Tags pointer replaces the full tag list, which
// may be empty.
type Patch struct {
	ID          string
	Description *string
	Tags        *[]string
}

// Store is the minimal document-store surface the batch pipeline depends on.
// Implementations must apply the patches of one ApplyPatches call atomically.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, query NativeQuery) ([]Document, error)
	ApplyPatches(ctx context.Context, collection string, patches []Patch) error
}

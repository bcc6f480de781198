// Package catalog implements the content-addressed catalog store (spec
// component C3): the transactional (tag, path, cacheKey, lastUpdated)
// table, the (cacheKey, tag) global cache set, and the four-way planner
// that turns a walked file set into compute/addTag/removeTag/del mutations.
package catalog

import (
	"errors"
	"time"
)

// ArtifactKind identifies which sub-index a tag belongs to.
type ArtifactKind string

const (
	KindChunks      ArtifactKind = "chunks"
	KindEmbeddings  ArtifactKind = "embeddings"
	KindLexical     ArtifactKind = "lexical"
	KindGlobalCache ArtifactKind = "globalCache"
)

// Tag is the triple (directory, branch, artifactKind) that identifies one
// index partition. It is immutable once constructed.
type Tag struct {
	Dir          string
	Branch       string
	ArtifactKind ArtifactKind
}

// MutationKind is one of the planner's four (plus updateLastUpdated)
// outputs.
type MutationKind string

const (
	MutationCompute           MutationKind = "compute"
	MutationDel               MutationKind = "del"
	MutationAddTag            MutationKind = "addTag"
	MutationRemoveTag         MutationKind = "removeTag"
	MutationUpdateLastUpdated MutationKind = "updateLastUpdated"
)

// Item is one planned mutation for a single path.
type Item struct {
	Path     string
	CacheKey string
	// OldCacheKey is populated for removeTag/del items derived from a
	// content change, so callers can identify which artifact to drop.
	OldCacheKey string
}

// Plan is the planner's output for one refresh: the four mutation sets plus
// rows whose lastUpdated needs bumping with no content change.
type Plan struct {
	Compute   []Item
	Del       []Item
	AddTag    []Item
	RemoveTag []Item
	Stale     []Item // updateLastUpdated
}

// Empty reports whether the plan contains no mutations at all.
func (p Plan) Empty() bool {
	return len(p.Compute) == 0 && len(p.Del) == 0 && len(p.AddTag) == 0 &&
		len(p.RemoveTag) == 0 && len(p.Stale) == 0
}

// TagCatalogEntry is one row of the tag_catalog table.
type TagCatalogEntry struct {
	Tag         Tag
	Path        string
	CacheKey    string
	LastUpdated time.Time
}

// GlobalCacheEntry is one row of the global_cache table.
type GlobalCacheEntry struct {
	CacheKey string
	Tag      Tag
}

// ErrCatalogRead / ErrCatalogWrite distinguish a failed catalog lookup from
// a failed catalog mutation for callers that retry only one of the two.
var (
	ErrCatalogRead  = errors.New("catalog: read error")
	ErrCatalogWrite = errors.New("catalog: write error")
)

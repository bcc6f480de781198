// Package lexical implements the inverted full-text index over chunk
// content (component C6). It is tag-scoped rather than project-scoped:
// unlike the chunks_fts table used elsewhere in this codebase, which is
// joined through chunks and files to a project, lexical_postings rows are
// keyed directly by (dir, branch, cacheKey, chunkIndex) so a removeTag/del
// mutation can drop exactly one tag's view of a cacheKey without touching
// any other tag that happens to reference the same content via addTag.
package lexical

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/codectx-dev/codectx/internal/catalog"
)

// ErrLexicalIndex wraps low-level failures reading or writing the index.
var ErrLexicalIndex = errors.New("lexical: index error")

// Posting is one chunk's content, ready for tokenization and insertion.
type Posting struct {
	CacheKey   string
	ChunkIndex int
	Content    string
}

// Hit is one BM25-ranked match. Score is normalized to (0,1], higher is
// better, following the same transform applied to chunks_fts's bm25()
// output in internal/storage/vector_ops.go.
type Hit struct {
	CacheKey   string
	ChunkIndex int
	Score      float64
}

// ContentSource supplies the postings for a cacheKey when the index needs
// to (re)compute them, for both MutationCompute and MutationAddTag: addTag
// re-tokenizes rather than copying rows cross-tag, since re-tokenizing a
// chunk already held in memory by the orchestrator's compute step is
// cheaper than a second SQL round trip, and keeps RemoveTag/Del symmetric
// (each tag's postings are entirely its own rows).
type ContentSource interface {
	PostingsFor(ctx context.Context, cacheKey string) ([]Posting, error)
}

// Index is the sqlite/FTS5-backed lexical index.
type Index struct {
	db *sql.DB
}

// New wraps an already-migrated *sql.DB holding the lexical_postings FTS5
// table (internal/storage/migrations.go migrationV3Up).
func New(db *sql.DB) *Index {
	return &Index{db: db}
}

// ApplyPlan writes/removes postings for one tag's lexical mutations, in the
// fixed per-batch order compute → addTag → removeTag → del, the same order in
// which the orchestrator's markPlanComplete records them. It does not call
// catalog.Store.MarkComplete; the caller is responsible for that once every
// sub-index (chunks, embeddings, lexical) has durably applied its share of
// the plan, so catalog bookkeeping and artifact storage commit separately
// per sub-index as the data model's per-sub-index-atomicity note requires.
func (idx *Index) ApplyPlan(ctx context.Context, tag catalog.Tag, plan catalog.Plan, source ContentSource) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLexicalIndex, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, item := range plan.Compute {
		if err := idx.insertPostings(ctx, tx, tag, item.CacheKey, source); err != nil {
			return fmt.Errorf("%w: %v", ErrLexicalIndex, err)
		}
	}
	for _, item := range plan.AddTag {
		if err := idx.insertPostings(ctx, tx, tag, item.CacheKey, source); err != nil {
			return fmt.Errorf("%w: %v", ErrLexicalIndex, err)
		}
	}
	for _, item := range plan.RemoveTag {
		if err := idx.deletePostings(ctx, tx, tag, removalKey(item)); err != nil {
			return fmt.Errorf("%w: %v", ErrLexicalIndex, err)
		}
	}
	for _, item := range plan.Del {
		if err := idx.deletePostings(ctx, tx, tag, removalKey(item)); err != nil {
			return fmt.Errorf("%w: %v", ErrLexicalIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrLexicalIndex, err)
	}
	return nil
}

func removalKey(item catalog.Item) string {
	if item.OldCacheKey != "" {
		return item.OldCacheKey
	}
	return item.CacheKey
}

func (idx *Index) insertPostings(ctx context.Context, tx *sql.Tx, tag catalog.Tag, cacheKey string, source ContentSource) error {
	// Idempotent: a re-applied compute/addTag for the same (tag, cacheKey)
	// first clears any stale postings so re-running a batch never
	// duplicates rows.
	if err := idx.deletePostings(ctx, tx, tag, cacheKey); err != nil {
		return err
	}
	postings, err := source.PostingsFor(ctx, cacheKey)
	if err != nil {
		return err
	}
	for _, p := range postings {
		tokens := Tokenize(p.Content)
		if len(tokens) == 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lexical_postings (tokens, dir, branch, cache_key, chunk_index)
			VALUES (?, ?, ?, ?, ?)`,
			strings.Join(tokens, " "), tag.Dir, tag.Branch, cacheKey, p.ChunkIndex); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Index) deletePostings(ctx context.Context, tx *sql.Tx, tag catalog.Tag, cacheKey string) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM lexical_postings WHERE dir = ? AND branch = ? AND cache_key = ?`,
		tag.Dir, tag.Branch, cacheKey)
	return err
}

// Search runs a BM25-ranked lookup over terms, optionally scoped to one
// tag. k bounds the number of hits returned.
func (idx *Index) Search(ctx context.Context, tag *catalog.Tag, terms string, k int) ([]Hit, error) {
	tokens := Tokenize(terms)
	if len(tokens) == 0 {
		return nil, nil
	}
	matchQuery := strings.Join(tokens, " OR ")

	sqlQuery := `
		SELECT cache_key, chunk_index, bm25(lexical_postings) as score
		FROM lexical_postings
		WHERE lexical_postings MATCH ?`
	args := []interface{}{matchQuery}

	if tag != nil {
		sqlQuery += " AND dir = ? AND branch = ?"
		args = append(args, tag.Dir, tag.Branch)
	}
	sqlQuery += " ORDER BY score LIMIT ?"
	args = append(args, k)

	rows, err := idx.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLexicalIndex, err)
	}
	defer func() { _ = rows.Close() }()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var rawScore float64
		if err := rows.Scan(&h.CacheKey, &h.ChunkIndex, &rawScore); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLexicalIndex, err)
		}
		// bm25() is negative, lower (more negative) is better; fold onto
		// (0,1] the same way internal/storage/vector_ops.go's
		// collectTextResults does for chunks_fts.
		h.Score = 1.0 / (1.0 + math.Abs(rawScore)/50.0)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLexicalIndex, err)
	}
	return hits, nil
}

// Package embedindex is the per-(providerId,model,dim) vector store (the
// spec's C5): it batches chunk content through an embedder.Embedder
// respecting each provider's maxBatchSize, persists the resulting vectors
// through internal/storage, and answers topK cosine queries optionally
// restricted to the set of files a catalog tag currently owns.
package embedindex

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/codectx-dev/codectx/internal/catalog"
	"github.com/codectx-dev/codectx/internal/embedder"
	"github.com/codectx-dev/codectx/internal/storage"
	"github.com/codectx-dev/codectx/pkg/types"
)

// ErrEmbedIndex wraps failures writing to or querying the vector store.
var ErrEmbedIndex = errors.New("embedindex: operation failed")

// Index binds an embedder to the shared SQLite storage, the way the
// teacher binds a parser and a chunker to a single project's file set.
type Index struct {
	store    storage.Storage
	embedder embedder.Embedder
	catalog  *catalog.Store
}

// New builds an Index. catalogStore may be nil if tag-scoped search is not
// needed (e.g. single-branch, single-directory deployments).
func New(store storage.Storage, emb embedder.Embedder, catalogStore *catalog.Store) *Index {
	return &Index{store: store, embedder: emb, catalog: catalogStore}
}

// Result is one ranked vector match, joined back to its chunk content.
type Result struct {
	ChunkID int64
	Score   float64
}

// UpsertChunks embeds and persists every chunk in batches no larger than
// embedder.MaxBatchSize. It stores each chunk's ContentHash as given (the
// caller computes it) and embeds every chunk it is handed; skipping
// unchanged chunks already embedded under the same provider/model is done
// by the caller via the catalog plan, not here.
func (idx *Index) UpsertChunks(ctx context.Context, fileID int64, chunks []*types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	const maxBatch = embedder.MaxBatchSize
	for start := 0; start < len(chunks); start += maxBatch {
		end := start + maxBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := idx.upsertBatch(ctx, fileID, chunks[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Index) upsertBatch(ctx context.Context, fileID int64, batch []*types.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.FullContent()
	}

	resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbedIndex, err)
	}
	if len(resp.Embeddings) != len(batch) {
		return fmt.Errorf("%w: provider returned %d embeddings for %d chunks", ErrEmbedIndex, len(resp.Embeddings), len(batch))
	}

	for i, chunk := range batch {
		storageChunk := &storage.Chunk{
			FileID:        fileID,
			Content:       chunk.Content,
			ContentHash:   chunk.ContentHash,
			TokenCount:    chunk.TokenCount,
			StartLine:     chunk.StartLine,
			EndLine:       chunk.EndLine,
			ContextBefore: chunk.ContextBefore,
			ContextAfter:  chunk.ContextAfter,
			ChunkType:     string(chunk.ChunkType),
		}
		if err := idx.store.UpsertChunk(ctx, storageChunk); err != nil {
			return fmt.Errorf("%w: %v", ErrEmbedIndex, err)
		}

		vec := embedder.NormalizeVector(resp.Embeddings[i].Vector)
		embedding := &storage.Embedding{
			ChunkID:   storageChunk.ID,
			Vector:    encodeVector(vec),
			Dimension: resp.Embeddings[i].Dimension,
			Provider:  resp.Provider,
			Model:     resp.Model,
		}
		if err := idx.store.UpsertEmbedding(ctx, embedding); err != nil {
			return fmt.Errorf("%w: %v", ErrEmbedIndex, err)
		}
	}

	return nil
}

// Search returns the topK chunks most similar to query under projectID. If
// tag is non-nil and idx.catalog is set, results are restricted to chunks
// belonging to files the tag's catalog currently tracks.
func (idx *Index) Search(ctx context.Context, projectID int64, query string, topK int, tag *catalog.Tag) ([]Result, error) {
	emb, err := idx.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedIndex, err)
	}

	queryVec := embedder.NormalizeVector(emb.Vector)

	searchLimit := topK
	if tag != nil {
		// Over-fetch before filtering by tag membership, since the
		// underlying SearchVector has no notion of tags.
		searchLimit = topK * 4
		if searchLimit < topK {
			searchLimit = topK
		}
	}

	raw, err := idx.store.SearchVector(ctx, projectID, queryVec, searchLimit, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedIndex, err)
	}

	results := make([]Result, 0, len(raw))
	for _, r := range raw {
		results = append(results, Result{ChunkID: r.ChunkID, Score: r.SimilarityScore})
	}

	if tag != nil && idx.catalog != nil {
		results, err = idx.filterByTag(ctx, results, *tag)
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (idx *Index) filterByTag(ctx context.Context, results []Result, tag catalog.Tag) ([]Result, error) {
	allowed, err := idx.catalog.PathsForTag(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedIndex, err)
	}

	filtered := make([]Result, 0, len(results))
	for _, r := range results {
		chunk, err := idx.store.GetChunk(ctx, r.ChunkID)
		if err != nil {
			continue
		}
		file, err := idx.store.GetFileByID(ctx, chunk.FileID)
		if err != nil {
			continue
		}
		if allowed[file.FilePath] {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector reverses encodeVector, exported for callers (tests,
// diagnostics) that need to inspect persisted vectors.
func DecodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

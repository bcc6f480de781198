package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/codectx-dev/codectx/internal/catalog"
	"github.com/codectx-dev/codectx/internal/chunker"
	"github.com/codectx-dev/codectx/internal/lexical"
	"github.com/codectx-dev/codectx/internal/storage"
	"github.com/codectx-dev/codectx/pkg/types"
)

// applySubIndex writes or removes one sub-index's artifacts for one plan.
// compute and addTag are applied identically here: the storage schema keys
// chunks/embeddings by file_id and lexical postings by (dir, branch,
// cacheKey), neither of which lets a path reuse another path's artifact
// rows byte-for-byte, so addTag recomputes from the content already on
// disk rather than copying rows. This is documented as an Open Question
// decision in DESIGN.md: the catalog's tag_catalog/global_cache
// bookkeeping still drives the compute-vs-addTag and removeTag-vs-del
// decision, even though this implementation doesn't skip the
// recomputation work addTag is meant to save.
//
// removeTag and del are NOT applied identically, though: only del may
// physically remove a chunks/embeddings row, since those tables carry no
// branch/tag dimension and a removeTag can be retiring one tag's reference
// to content another tag still depends on. See applyChunks/applyEmbeddings.
func (o *Orchestrator) applySubIndex(ctx context.Context, kind catalog.ArtifactKind, req Request, project *storage.Project, tag catalog.Tag, plan catalog.Plan, chunksByPath map[string][]*types.Chunk) error {
	switch kind {
	case catalog.KindChunks:
		return o.applyChunks(ctx, req, project, plan, chunksByPath)
	case catalog.KindEmbeddings:
		return o.applyEmbeddings(ctx, project, plan, chunksByPath)
	case catalog.KindLexical:
		return o.applyLexical(ctx, tag, project, plan, chunksByPath)
	default:
		return fmt.Errorf("orchestrator: unknown sub-index kind %q", kind)
	}
}

func (o *Orchestrator) applyChunks(ctx context.Context, req Request, project *storage.Project, plan catalog.Plan, cache map[string][]*types.Chunk) error {
	recomputed := make(map[string]bool, len(plan.Compute)+len(plan.AddTag))

	for _, item := range append(append([]catalog.Item{}, plan.Compute...), plan.AddTag...) {
		recomputed[item.Path] = true

		file := &storage.File{
			ProjectID: project.ID,
			FilePath:  item.Path,
		}
		if err := o.store.UpsertFile(ctx, file); err != nil {
			return fmt.Errorf("upsert file %s: %w", item.Path, err)
		}

		if err := o.store.DeleteChunksByFile(ctx, file.ID); err != nil {
			return fmt.Errorf("clear stale chunks for %s: %w", item.Path, err)
		}

		fileChunks, err := chunker.Dispatch(absPath(req, item.Path), file.ID)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", item.Path, err)
		}

		for _, c := range fileChunks {
			storageChunk := &storage.Chunk{
				FileID:        file.ID,
				SymbolID:      c.SymbolID,
				Content:       c.Content,
				ContentHash:   c.ContentHash,
				TokenCount:    c.TokenCount,
				StartLine:     c.StartLine,
				EndLine:       c.EndLine,
				ContextBefore: c.ContextBefore,
				ContextAfter:  c.ContextAfter,
				ChunkType:     string(c.ChunkType),
			}
			if err := o.store.UpsertChunk(ctx, storageChunk); err != nil {
				return fmt.Errorf("upsert chunk for %s: %w", item.Path, err)
			}
			c.ID = storageChunk.ID
		}
		cache[item.Path] = fileChunks
	}

	// files has no branch/tag dimension: a path shared by two tags (e.g. the
	// same a.txt tracked under both a B1 and a B2 tag) resolves to one
	// storage.File row, so only catalog.MutationDel — which
	// catalog.classifyRetire only produces once no tag_catalog row
	// anywhere still references the cacheKey — may physically delete it.
	// plan.RemoveTag means some other tag still references this content;
	// storage's shared file/chunk/embedding rows must survive untouched,
	// exactly the way internal/lexical's postings, scoped to
	// (dir, branch, cache_key), already leave a shared cacheKey's postings
	// under other tags alone. A path NOT also recomputed above means it is
	// gone from the workspace under this tag, not that its content merely
	// changed in place (the content-changed case produces a compute/addTag
	// item and a retire item sharing the same Path, and the compute branch
	// above already re-upserted the file).
	for _, item := range plan.Del {
		if recomputed[item.Path] {
			continue
		}
		file, err := o.store.GetFile(ctx, project.ID, item.Path)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return fmt.Errorf("lookup file %s: %w", item.Path, err)
		}
		if err := o.store.DeleteFile(ctx, file.ID); err != nil {
			return fmt.Errorf("delete file %s: %w", item.Path, err)
		}
	}
	return nil
}

func (o *Orchestrator) applyEmbeddings(ctx context.Context, project *storage.Project, plan catalog.Plan, cache map[string][]*types.Chunk) error {
	toEmbed := append(append([]catalog.Item{}, plan.Compute...), plan.AddTag...)
	if len(toEmbed) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.maxConcurrentEmbedBatches)

		var cacheMu sync.Mutex
		for _, item := range toEmbed {
			item := item
			g.Go(func() error {
				cacheMu.Lock()
				chunks, err := o.chunksForPath(gctx, project.ID, item.Path, cache)
				cacheMu.Unlock()
				if err != nil {
					return fmt.Errorf("load chunks for %s: %w", item.Path, err)
				}
				if len(chunks) == 0 {
					return nil
				}
				batchCtx, cancel := context.WithTimeout(gctx, o.embeddingsTimeout)
				defer cancel()
				if err := o.embedIdx.UpsertChunks(batchCtx, chunks[0].FileID, chunks); err != nil {
					return fmt.Errorf("embed %s: %w", item.Path, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	// Only plan.Del may tear down embeddings directly: a plan.RemoveTag path
	// still shares its storage.File row (and thus its chunks/embeddings)
	// with whatever other tag kept a tag_catalog reference to the same
	// cacheKey. In practice applyChunks already ran first in subIndexOrder
	// and cascade-deleted embeddings for anything in plan.Del, so this loop
	// mostly no-ops on ErrNotFound; it stays defensive in case sub-index
	// application order ever changes.
	for _, item := range plan.Del {
		file, err := o.store.GetFile(ctx, project.ID, item.Path)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return fmt.Errorf("lookup file %s: %w", item.Path, err)
		}
		chunks, err := o.store.ListChunksByFile(ctx, file.ID)
		if err != nil {
			return fmt.Errorf("list chunks for %s: %w", item.Path, err)
		}
		for _, c := range chunks {
			if err := o.store.DeleteEmbedding(ctx, c.ID); err != nil {
				return fmt.Errorf("delete embedding for %s: %w", item.Path, err)
			}
		}
	}
	return nil
}

func (o *Orchestrator) applyLexical(ctx context.Context, tag catalog.Tag, project *storage.Project, plan catalog.Plan, cache map[string][]*types.Chunk) error {
	byCacheKey := make(map[string]string, len(plan.Compute)+len(plan.AddTag))
	for _, item := range plan.Compute {
		byCacheKey[item.CacheKey] = item.Path
	}
	for _, item := range plan.AddTag {
		byCacheKey[item.CacheKey] = item.Path
	}

	source := &pathLookupSource{orch: o, projectID: project.ID, byCacheKey: byCacheKey, cache: cache}
	return o.lexIdx.ApplyPlan(ctx, tag, plan, source)
}

// pathLookupSource implements lexical.ContentSource by resolving a
// cacheKey back to the path the current plan associated it with, then
// loading that path's chunks (from the in-run cache or storage).
type pathLookupSource struct {
	orch       *Orchestrator
	projectID  int64
	byCacheKey map[string]string
	cache      map[string][]*types.Chunk
}

func (s *pathLookupSource) PostingsFor(ctx context.Context, cacheKey string) ([]lexical.Posting, error) {
	path, ok := s.byCacheKey[cacheKey]
	if !ok {
		return nil, fmt.Errorf("orchestrator: no path known for cacheKey %s", cacheKey)
	}
	chunks, err := s.orch.chunksForPath(ctx, s.projectID, path, s.cache)
	if err != nil {
		return nil, err
	}
	postings := make([]lexical.Posting, len(chunks))
	for i, c := range chunks {
		postings[i] = lexical.Posting{CacheKey: cacheKey, ChunkIndex: i, Content: c.Content}
	}
	return postings, nil
}

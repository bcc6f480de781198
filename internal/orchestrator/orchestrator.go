// Package orchestrator drives a refresh as a streaming sequence of progress
// updates (component C7): Walker → Merkle → Catalog plan, then dispatch to
// the chunks/embeddings/lexical sub-indexes in that fixed order, then mark
// completion. It generalizes internal/indexer.Indexer's single
// project-wide parse-chunk-store pass and internal/indexer/lock.go's
// non-blocking CompareAndSwap lease into a multi-sub-index, tag-aware
// refresh model.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/codectx-dev/codectx/internal/catalog"
	"github.com/codectx-dev/codectx/internal/embedindex"
	"github.com/codectx-dev/codectx/internal/lexical"
	"github.com/codectx-dev/codectx/internal/merkle"
	"github.com/codectx-dev/codectx/internal/storage"
	"github.com/codectx-dev/codectx/internal/walker"
	"github.com/codectx-dev/codectx/pkg/types"
)

// Status is one of the refresh lifecycle states.
type Status string

const (
	StatusIndexing Status = "indexing"
	StatusPaused   Status = "paused"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
)

// ErrBusy is returned by Refresh when another refresh already holds the
// in-process lease; a concurrent cross-process refresh instead streams a
// single StatusPaused progress update rather than returning an error, since
// the lock file's state is only knowable after attempting to acquire it.
var ErrBusy = errors.New("orchestrator: refresh already in progress in this process")

// ErrCancelled is returned when a refresh's context is cancelled mid-run.
var ErrCancelled = errors.New("orchestrator: refresh cancelled")

// Progress is one streamed update.
type Progress struct {
	RunID       string
	Progress    float64 // in [0,1]
	Description string
	Status      Status
	Err         error
}

// subIndexOrder is the fixed dispatch order across sub-indexes; compute is
// weighted 4:1 over tag-only operations when estimating progress.
var subIndexOrder = []catalog.ArtifactKind{catalog.KindChunks, catalog.KindEmbeddings, catalog.KindLexical}

const computeWeight = 4

// defaultMaxConcurrentEmbedBatches matches internal/config.Defaults's
// orchestrator.maxConcurrentBatchesPerProvider default.
const defaultMaxConcurrentEmbedBatches = 4

// defaultEmbeddingsTimeout matches internal/config.Defaults's
// orchestrator.embeddingsTimeoutSeconds default.
const defaultEmbeddingsTimeout = 10 * time.Second

// Orchestrator coordinates one workspace's refreshes.
type Orchestrator struct {
	store    storage.Storage
	catalog  *catalog.Store
	embedIdx *embedindex.Index
	lexIdx   *lexical.Index

	treeDir string // directory holding persisted per-(dir,branch) merkle trees

	maxConcurrentEmbedBatches int
	embeddingsTimeout         time.Duration

	lease atomic.Int32 // in-process non-blocking refresh lease, internal/indexer.IndexLock's pattern
}

// New builds an Orchestrator over already-constructed sub-index handles.
func New(store storage.Storage, cat *catalog.Store, embedIdx *embedindex.Index, lexIdx *lexical.Index, treeDir string) *Orchestrator {
	return &Orchestrator{
		store: store, catalog: cat, embedIdx: embedIdx, lexIdx: lexIdx, treeDir: treeDir,
		maxConcurrentEmbedBatches: defaultMaxConcurrentEmbedBatches,
		embeddingsTimeout:         defaultEmbeddingsTimeout,
	}
}

// Request describes one refresh.
type Request struct {
	RootPath string
	Branch   string       // defaults to "main" if empty
	WalkOpts *walker.Options // defaults to walker.DefaultOptions()
}

// Refresh acquires the refresh lease and streams progress on the returned
// channel, which is closed when the refresh finishes (successfully,
// cancelled, or failed). If another refresh is already running in this
// process, returns ErrBusy without starting. If a refresh from a different
// OS process holds the cross-process file lease, streams a single
// StatusPaused update instead.
func (o *Orchestrator) Refresh(ctx context.Context, req Request) (<-chan Progress, error) {
	if req.Branch == "" {
		req.Branch = "main"
	}
	if req.WalkOpts == nil {
		opts := walker.DefaultOptions()
		req.WalkOpts = &opts
	}

	if !o.lease.CompareAndSwap(0, 1) {
		return nil, ErrBusy
	}

	fl := flock.New(o.leasePath(req.RootPath))
	locked, err := fl.TryLock()
	if err != nil {
		o.lease.Store(0)
		return nil, fmt.Errorf("orchestrator: acquire lease: %w", err)
	}
	if !locked {
		o.lease.Store(0)
		ch := make(chan Progress, 1)
		ch <- Progress{Progress: 0, Description: "refresh already running in another process", Status: StatusPaused}
		close(ch)
		return ch, nil
	}

	runID := uuid.NewString()
	ch := make(chan Progress, 8)
	go o.run(ctx, runID, req, fl, ch)
	return ch, nil
}

// SetMaxConcurrentEmbedBatches bounds how many files' embedding batches the
// embeddings sub-index dispatches in flight at once, per
// orchestrator.maxConcurrentBatchesPerProvider. n <= 0 leaves the default.
func (o *Orchestrator) SetMaxConcurrentEmbedBatches(n int) {
	if n > 0 {
		o.maxConcurrentEmbedBatches = n
	}
}

// SetEmbeddingsTimeout bounds how long one file's embedding batch may run
// before it fails that file rather than blocking the refresh indefinitely,
// per orchestrator.embeddingsTimeoutSeconds. d <= 0 leaves the default.
func (o *Orchestrator) SetEmbeddingsTimeout(d time.Duration) {
	if d > 0 {
		o.embeddingsTimeout = d
	}
}

func (o *Orchestrator) leasePath(rootPath string) string {
	return filepath.Join(o.treeDir, tagFileStem(rootPath, "")+".lease")
}

func (o *Orchestrator) treePath(rootPath, branch string) string {
	return filepath.Join(o.treeDir, tagFileStem(rootPath, branch)+".merkle")
}

func tagFileStem(rootPath, branch string) string {
	h := catalog.CacheKey([]byte(rootPath + "\x00" + branch))
	return h[:16]
}

func (o *Orchestrator) run(ctx context.Context, runID string, req Request, fl *flock.Flock, ch chan<- Progress) {
	defer close(ch)
	defer o.lease.Store(0)
	defer func() { _ = fl.Unlock() }()

	emit := func(p float64, desc string, status Status, err error) {
		select {
		case ch <- Progress{RunID: runID, Progress: p, Description: desc, Status: status, Err: err}:
		case <-ctx.Done():
		}
	}
	fail := func(desc string, err error) { emit(0, desc, StatusFailed, err) }

	emit(0, "walking workspace", StatusIndexing, nil)
	files, err := walker.Walk(req.RootPath, *req.WalkOpts)
	if err != nil {
		fail("walk failed", err)
		return
	}

	// A path whose mtime hasn't moved past the last refresh's lastUpdated
	// cannot have changed content, so its cacheKey is reused instead of
	// re-read and re-hashed from disk. subIndexOrder[0]'s tag_catalog rows
	// stand in for all three sub-indexes here: the cacheKey is a function of
	// file content alone, identical across chunks/embeddings/lexical for the
	// same path, so any one kind's recorded mtime is as good a baseline as
	// another's.
	known, err := o.catalog.KnownEntries(ctx, catalog.Tag{Dir: req.RootPath, Branch: req.Branch, ArtifactKind: subIndexOrder[0]})
	if err != nil {
		fail("loading known cache keys failed", err)
		return
	}

	cacheKeys := make(map[string]string, len(files))
	for path, info := range files {
		if prev, ok := known[path]; ok && info.LastModMs <= prev.LastUpdated.UnixMilli() {
			cacheKeys[path] = prev.CacheKey
			continue
		}
		key, err := catalog.CacheKeyFromDisk(info)
		if err != nil {
			fail("hashing failed", err)
			return
		}
		cacheKeys[path] = key
	}
	cacheKeyOf := func(info walker.FileInfo) (string, error) {
		if key, ok := cacheKeys[info.RelPath]; ok {
			return key, nil
		}
		return catalog.CacheKeyFromDisk(info)
	}

	treePath := o.treePath(req.RootPath, req.Branch)
	prevTree, err := merkle.Load(treePath)
	if err != nil {
		fail("merkle load failed", err)
		return
	}
	curTree := merkle.Build(cacheKeys)
	_, _ = merkle.Diff(prevTree, curTree) // recorded for observability; plan() below is the authoritative mutation source

	project, err := o.getOrCreateProject(ctx, req.RootPath)
	if err != nil {
		fail("project setup failed", err)
		return
	}

	emit(0.05, "planning catalog mutations", StatusIndexing, nil)
	plans := make(map[catalog.ArtifactKind]catalog.Plan, len(subIndexOrder))
	totalWeight := 0
	for _, kind := range subIndexOrder {
		tag := catalog.Tag{Dir: req.RootPath, Branch: req.Branch, ArtifactKind: kind}
		plan, err := o.catalog.Plan(ctx, tag, files, cacheKeyOf)
		if err != nil {
			fail("planning failed", err)
			return
		}
		plans[kind] = plan
		totalWeight += planWeight(plan)
	}

	if totalWeight == 0 {
		emit(1, "no changes detected", StatusDone, nil)
		return
	}

	doneWeight := 0
	chunksByPath := make(map[string][]*types.Chunk)

	for _, kind := range subIndexOrder {
		select {
		case <-ctx.Done():
			fail("cancelled", ErrCancelled)
			return
		default:
		}

		tag := catalog.Tag{Dir: req.RootPath, Branch: req.Branch, ArtifactKind: kind}
		plan := plans[kind]

		if err := o.applySubIndex(ctx, kind, req, project, tag, plan, chunksByPath); err != nil {
			fail(fmt.Sprintf("%s sub-index failed", kind), err)
			return
		}

		if err := o.markPlanComplete(ctx, tag, plan); err != nil {
			fail(fmt.Sprintf("%s markComplete failed", kind), err)
			return
		}

		doneWeight += planWeight(plan)
		emit(float64(doneWeight)/float64(totalWeight), fmt.Sprintf("%s sub-index applied", kind), StatusIndexing, nil)
	}

	if err := merkle.Persist(treePath, curTree); err != nil {
		fail("merkle persist failed", err)
		return
	}

	if err := o.updateProjectStats(ctx, project); err != nil {
		fail("project stats update failed", err)
		return
	}

	emit(1, "refresh complete", StatusDone, nil)
}

func planWeight(p catalog.Plan) int {
	return len(p.Compute)*computeWeight + len(p.AddTag) + len(p.RemoveTag) + len(p.Del) + len(p.Stale)
}

func (o *Orchestrator) markPlanComplete(ctx context.Context, tag catalog.Tag, plan catalog.Plan) error {
	for _, group := range []struct {
		items []catalog.Item
		kind  catalog.MutationKind
	}{
		{plan.Compute, catalog.MutationCompute},
		{plan.AddTag, catalog.MutationAddTag},
		{plan.RemoveTag, catalog.MutationRemoveTag},
		{plan.Del, catalog.MutationDel},
		{plan.Stale, catalog.MutationUpdateLastUpdated},
	} {
		if err := o.catalog.MarkComplete(ctx, tag, group.items, group.kind); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) getOrCreateProject(ctx context.Context, rootPath string) (*storage.Project, error) {
	project, err := o.store.GetProject(ctx, rootPath)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	project = &storage.Project{RootPath: rootPath, IndexVersion: storage.CurrentSchemaVersion}
	if err := o.store.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

func (o *Orchestrator) updateProjectStats(ctx context.Context, project *storage.Project) error {
	files, err := o.store.ListFiles(ctx, project.ID)
	if err != nil {
		return err
	}
	totalChunks := 0
	for _, f := range files {
		chunks, err := o.store.ListChunksByFile(ctx, f.ID)
		if err != nil {
			return err
		}
		totalChunks += len(chunks)
	}
	project.TotalFiles = len(files)
	project.TotalChunks = totalChunks
	return o.store.UpdateProject(ctx, project)
}

// chunksForPath returns the chunk set for a path, preferring an
// already-computed in-run cache (populated by the chunks sub-index pass)
// and falling back to whatever is durably stored, so the embeddings and
// lexical passes never re-parse a file the chunks pass already handled in
// this same run, but can still serve a path whose chunks sub-index plan
// left untouched (e.g. its content was unchanged for chunks but the
// embedding provider's dimension changed, making it compute for
// embeddings only).
func (o *Orchestrator) chunksForPath(ctx context.Context, projectID int64, path string, cache map[string][]*types.Chunk) ([]*types.Chunk, error) {
	if chunks, ok := cache[path]; ok {
		return chunks, nil
	}
	file, err := o.store.GetFile(ctx, projectID, path)
	if err != nil {
		return nil, err
	}
	stored, err := o.store.ListChunksByFile(ctx, file.ID)
	if err != nil {
		return nil, err
	}
	chunks := make([]*types.Chunk, len(stored))
	for i, c := range stored {
		chunks[i] = &types.Chunk{
			ID: c.ID, FileID: c.FileID, SymbolID: c.SymbolID,
			Content: c.Content, ContentHash: c.ContentHash, TokenCount: c.TokenCount,
			StartLine: c.StartLine, EndLine: c.EndLine,
			ContextBefore: c.ContextBefore, ContextAfter: c.ContextAfter,
			ChunkType: types.ChunkType(c.ChunkType),
		}
	}
	cache[path] = chunks
	return chunks, nil
}

func absPath(req Request, relPath string) string {
	return filepath.Join(req.RootPath, relPath)
}

package searcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codectx-dev/codectx/internal/catalog"
	"github.com/codectx-dev/codectx/internal/embedder"
	"github.com/codectx-dev/codectx/internal/embedindex"
	"github.com/codectx-dev/codectx/internal/lexical"
	"github.com/codectx-dev/codectx/internal/storage"
	"github.com/codectx-dev/codectx/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"  // Vector + BM25, weighted fusion
	SearchModeVector  SearchMode = "vector"  // Vector similarity only
	SearchModeKeyword SearchMode = "keyword" // BM25 text search only
)

// TagScope pins a search to one catalog-tracked (dir, branch) partition, the
// same scope refresh_index writes under. When set, Search reads through
// embedindex/lexical (component C5/C6) instead of the legacy project-wide
// tables, so results only ever include chunks the catalog currently tracks
// for that tag.
type TagScope struct {
	Dir    string
	Branch string
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query     string
	Limit     int
	Mode      SearchMode
	Filters   *storage.SearchFilters
	ProjectID int64
	UseCache  bool // Whether to use query cache
	CacheTTL  time.Duration

	// Tag scopes retrieval to one refresh_index partition via
	// embedindex/lexical. Nil falls back to the legacy project-scoped
	// storage.SearchVector/SearchText tables (pre-catalog deployments, or
	// callers that never ran refresh_index).
	Tag *TagScope

	// PoolSize bounds how many candidates hybrid mode pulls from each of
	// the vector and BM25 signals before fusion (contextProvider.nRetrieve).
	// <= 0 defaults to Limit*2. File metadata is then filled in for up to
	// max(Limit*3, pool size) fused candidates.
	PoolSize int

	// Alpha, Beta, Gamma weight cosine similarity, BM25 relevance, and
	// file recency respectively in hybrid fusion. They default to
	// 0.6/0.3/0.1 and need not sum exactly to 1 — callers tuning relevance
	// can push weight toward any one signal freely.
	Alpha float64
	Beta  float64
	Gamma float64

	// DedupeByFile keeps only the highest-scoring chunk per file, merging
	// the discarded chunks' line ranges into that chunk's result so a
	// multi-hit file doesn't crowd out other files in a small result set.
	DedupeByFile bool

	// Reranker, if set, re-scores the fused candidate set before the final
	// truncation to Limit. A reranker failure falls back to the fused
	// ranking rather than failing the search.
	Reranker Reranker
}

// Reranker re-scores a candidate set against the original query. Results
// are returned in the reranker's preferred order; RelevanceScore is
// expected to reflect the reranker's own scale.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []types.SearchResult) ([]types.SearchResult, error)
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results       []types.SearchResult
	TotalResults  int
	SearchMode    SearchMode
	Duration      time.Duration
	CacheHit      bool
	VectorResults int
	TextResults   int
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// defaultRerankerTimeout matches internal/config.Defaults's
// orchestrator.rerankerTimeoutSeconds default.
const defaultRerankerTimeout = 30 * time.Second

// Searcher coordinates search operations across vector and text search
type Searcher struct {
	storage         storage.Storage
	embedder        embedder.Embedder
	cache           *lru.Cache[[32]byte, *cacheEntry]
	cacheMu         sync.RWMutex
	rerankerTimeout time.Duration

	// embedIdx/lexIdx/catalogStore back tag-scoped retrieval through
	// components C5/C6. Left nil, Search falls back to the legacy
	// project-scoped storage tables. Set via SetCatalogIndexes.
	embedIdx     *embedindex.Index
	lexIdx       *lexical.Index
	catalogStore *catalog.Store
}

// NewSearcher creates a new Searcher instance
func NewSearcher(storage storage.Storage, embedder embedder.Embedder) *Searcher {
	// Create LRU cache with 1000 entry limit
	// Cache will automatically evict least recently used entries
	cache, err := lru.New[[32]byte, *cacheEntry](1000)
	if err != nil {
		// This should never happen with valid size parameter
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	return &Searcher{
		storage:         storage,
		embedder:        embedder,
		cache:           cache,
		rerankerTimeout: defaultRerankerTimeout,
	}
}

// SetRerankerTimeout bounds how long a reranker call may run before the
// search falls back to the fused ranking, per
// orchestrator.rerankerTimeoutSeconds. d <= 0 leaves the default.
func (s *Searcher) SetRerankerTimeout(d time.Duration) {
	if d > 0 {
		s.rerankerTimeout = d
	}
}

// SetCatalogIndexes wires the tag-scoped read paths (C5's embedindex.Index,
// C6's lexical.Index, and the catalog.Store used to reconcile lexical hits
// back to chunk rows) into the searcher. A SearchRequest with a non-nil Tag
// only produces results once this has been called; until then, or when Tag
// is nil, Search reads the legacy project-scoped storage tables.
func (s *Searcher) SetCatalogIndexes(embedIdx *embedindex.Index, lexIdx *lexical.Index, catalogStore *catalog.Store) {
	s.embedIdx = embedIdx
	s.lexIdx = lexIdx
	s.catalogStore = catalogStore
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	// Validate searcher state
	if s.embedder == nil {
		return nil, fmt.Errorf("embedder not initialized")
	}

	// Validate request
	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	// Check cache if enabled
	if req.UseCache {
		cached, err := s.checkCache(ctx, req)
		if err == nil && cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	// Perform search based on mode
	var response *SearchResponse
	var err error

	switch req.Mode {
	case SearchModeHybrid:
		response, err = s.hybridSearch(ctx, req)
	case SearchModeVector:
		response, err = s.vectorSearch(ctx, req)
	case SearchModeKeyword:
		response, err = s.keywordSearch(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported search mode: %s", req.Mode)
	}

	if err != nil {
		return nil, err
	}

	response.Duration = time.Since(startTime)
	response.SearchMode = req.Mode

	// Store in cache if enabled
	if req.UseCache && len(response.Results) > 0 {
		// A failed cache write does not fail the search
		_ = s.storeInCache(ctx, req, response)
	}

	return response, nil
}

// poolSize returns how many candidates a hybrid search pulls from a single
// signal (vector or BM25) before fusion.
func poolSize(req SearchRequest) int {
	if req.PoolSize > 0 {
		return req.PoolSize
	}
	return req.Limit * 2
}

// searchResult holds results from concurrent search operations, already
// normalized to rankedResult so hybridSearch never branches on which read
// path (catalog-scoped or legacy project-scoped) produced them.
type searchResult struct {
	ranked []rankedResult
	err    error
}

// catalogTag builds the per-artifact-kind tag embedindex/lexical expect,
// or nil when the request carries no TagScope (legacy project-scoped mode).
func (req SearchRequest) catalogTag(kind catalog.ArtifactKind) *catalog.Tag {
	if req.Tag == nil {
		return nil
	}
	return &catalog.Tag{Dir: req.Tag.Dir, Branch: req.Tag.Branch, ArtifactKind: kind}
}

// vectorCandidates returns ranked chunk candidates from the vector signal.
// When the searcher has been wired with SetCatalogIndexes and the request
// carries a Tag, it reads through embedindex.Index.Search (C5), which
// embeds the query itself and restricts matches to the tag's tracked files.
// Otherwise it falls back to the legacy embedder+storage.SearchVector path.
func (s *Searcher) vectorCandidates(ctx context.Context, req SearchRequest, limit int) ([]rankedResult, error) {
	if s.embedIdx != nil {
		results, err := s.embedIdx.Search(ctx, req.ProjectID, req.Query, limit, req.catalogTag(catalog.KindEmbeddings))
		if err != nil {
			return nil, fmt.Errorf("catalog vector search: %w", err)
		}
		ranked := make([]rankedResult, len(results))
		for i, r := range results {
			ranked[i] = rankedResult{chunkID: r.ChunkID, score: r.Score}
		}
		return ranked, nil
	}

	embedding, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Query})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	vectorResults, err := s.storage.SearchVector(ctx, req.ProjectID, embedding.Vector, limit, req.Filters)
	if err != nil {
		return nil, err
	}
	ranked := make([]rankedResult, len(vectorResults))
	for i, vr := range vectorResults {
		ranked[i] = rankedResult{chunkID: vr.ChunkID, score: vr.SimilarityScore}
	}
	return ranked, nil
}

// textCandidates returns ranked chunk candidates from the lexical signal.
// When wired with SetCatalogIndexes and the request carries a Tag, it reads
// through lexical.Index.Search (C6) and resolves each Hit's
// (cacheKey, chunkIndex) back to a chunk row via resolveLexicalHit.
// Otherwise it falls back to the legacy storage.SearchText BM25 path.
func (s *Searcher) textCandidates(ctx context.Context, req SearchRequest, limit int) ([]rankedResult, error) {
	if s.lexIdx != nil {
		hits, err := s.lexIdx.Search(ctx, req.catalogTag(catalog.KindLexical), req.Query, limit)
		if err != nil {
			return nil, fmt.Errorf("catalog lexical search: %w", err)
		}
		ranked := make([]rankedResult, 0, len(hits))
		for _, h := range hits {
			chunkID, ok, err := s.resolveLexicalHit(ctx, req, h)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			ranked = append(ranked, rankedResult{chunkID: chunkID, score: h.Score})
		}
		return ranked, nil
	}

	textResults, err := s.storage.SearchText(ctx, req.ProjectID, req.Query, limit, req.Filters)
	if err != nil {
		return nil, err
	}
	ranked := make([]rankedResult, len(textResults))
	for i, tr := range textResults {
		ranked[i] = rankedResult{chunkID: tr.ChunkID, score: tr.BM25Score}
	}
	return ranked, nil
}

// resolveLexicalHit reconciles a lexical.Hit's (cacheKey, chunkIndex) back
// to a storage chunk ID. cacheKey is resolved to a path via the chunks
// tag_catalog entry (the same path/cacheKey pair the lexical tag was
// planned from, per internal/orchestrator's shared cacheKeyOf), and
// chunkIndex indexes into that file's chunks ordered by start line, which
// is the same order internal/orchestrator/subindex.go's pathLookupSource
// wrote lexical postings in.
func (s *Searcher) resolveLexicalHit(ctx context.Context, req SearchRequest, h lexical.Hit) (int64, bool, error) {
	if s.catalogStore == nil || req.Tag == nil {
		return 0, false, nil
	}
	path, ok, err := s.catalogStore.PathForCacheKey(ctx, catalog.Tag{Dir: req.Tag.Dir, Branch: req.Tag.Branch, ArtifactKind: catalog.KindChunks}, h.CacheKey)
	if err != nil {
		return 0, false, fmt.Errorf("resolve lexical hit: %w", err)
	}
	if !ok {
		return 0, false, nil
	}
	file, err := s.storage.GetFile(ctx, req.ProjectID, path)
	if err != nil {
		return 0, false, nil
	}
	chunks, err := s.storage.ListChunksByFile(ctx, file.ID)
	if err != nil {
		return 0, false, nil
	}
	if h.ChunkIndex < 0 || h.ChunkIndex >= len(chunks) {
		return 0, false, nil
	}
	return chunks[h.ChunkIndex].ID, true, nil
}

// runVectorSearch executes vector search in a goroutine
func (s *Searcher) runVectorSearch(ctx context.Context, req SearchRequest, resultChan chan<- searchResult) {
	var res searchResult
	res.ranked, res.err = s.vectorCandidates(ctx, req, poolSize(req))
	select {
	case resultChan <- res:
	case <-ctx.Done():
	}
}

// runTextSearch executes text search in a goroutine
func (s *Searcher) runTextSearch(ctx context.Context, req SearchRequest, resultChan chan<- searchResult) {
	var res searchResult
	res.ranked, res.err = s.textCandidates(ctx, req, poolSize(req))
	select {
	case resultChan <- res:
	case <-ctx.Done():
	}
}

// hybridSearch combines vector and BM25 search by weighted score fusion
// (Alpha, Beta) plus a Gamma-weighted file recency term
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	vectorChan := make(chan searchResult, 1)
	textChan := make(chan searchResult, 1)

	go s.runVectorSearch(ctx, req, vectorChan)
	go s.runTextSearch(ctx, req, textChan)

	// Wait for both searches
	var vectorRes, textRes searchResult
	var vectorDone, textDone bool
	for !vectorDone || !textDone {
		select {
		case vectorRes = <-vectorChan:
			vectorDone = true
		case textRes = <-textChan:
			textDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// Check for errors (allow one to fail)
	if vectorRes.err != nil && textRes.err != nil {
		return nil, fmt.Errorf("%w: vector=%v, text=%v", types.ErrRetrievalUnavailable, vectorRes.err, textRes.err)
	}

	// Apply weighted fusion (cosine/bm25 signals; recency is folded in once
	// fetchResults has each candidate's file metadata) and fetch results.
	fused := s.applyWeightedFusion(vectorRes.ranked, textRes.ranked, req.Alpha, req.Beta)
	fetchLimit := req.Limit * 3
	if p := poolSize(req); p > fetchLimit {
		fetchLimit = p
	}
	results, err := s.fetchResults(ctx, fused, fetchLimit, req.Gamma)
	if err != nil {
		return nil, err
	}

	if req.DedupeByFile {
		results = dedupeByFile(results)
	}
	if req.Reranker != nil {
		rerankCtx, cancel := context.WithTimeout(ctx, s.rerankerTimeout)
		reranked, err := req.Reranker.Rerank(rerankCtx, req.Query, results)
		cancel()
		if err == nil {
			results = reranked
		}
	}
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	for i := range results {
		results[i].Rank = i + 1
	}

	return &SearchResponse{
		Results:       results,
		TotalResults:  len(results),
		VectorResults: len(vectorRes.ranked),
		TextResults:   len(textRes.ranked),
	}, nil
}

// vectorSearch performs only vector similarity search
func (s *Searcher) vectorSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	rankedResults, err := s.vectorCandidates(ctx, req, req.Limit)
	if err != nil {
		return nil, err
	}
	for i := range rankedResults {
		rankedResults[i].rank = i + 1
	}

	results, err := s.fetchResults(ctx, rankedResults, req.Limit, 0)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:       results,
		TotalResults:  len(results),
		VectorResults: len(rankedResults),
	}, nil
}

// keywordSearch performs only BM25 text search
func (s *Searcher) keywordSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	rankedResults, err := s.textCandidates(ctx, req, req.Limit)
	if err != nil {
		return nil, err
	}
	for i := range rankedResults {
		rankedResults[i].rank = i + 1
	}

	results, err := s.fetchResults(ctx, rankedResults, req.Limit, 0)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		TextResults:  len(rankedResults),
	}, nil
}

// rankedResult represents a chunk with its relevance score and rank
type rankedResult struct {
	chunkID int64
	score   float64
	rank    int
}

// applyWeightedFusion combines vector and text results as
// alpha*cosineNorm + beta*bm25Norm, where each signal is min-max normalized
// across its own result set before weighting so neither signal's raw scale
// dominates the other. Recency (gamma) is folded in later in fetchResults,
// once a candidate's file metadata is available.
func (s *Searcher) applyWeightedFusion(vectorResults []rankedResult, textResults []rankedResult, alpha, beta float64) []rankedResult {
	if alpha == 0 && beta == 0 {
		alpha, beta = 0.6, 0.3
	}

	cosineScores := make(map[int64]float64, len(vectorResults))
	for _, vr := range vectorResults {
		cosineScores[vr.chunkID] = vr.score
	}
	normalizeScores(cosineScores)

	bm25Scores := make(map[int64]float64, len(textResults))
	for _, tr := range textResults {
		bm25Scores[tr.chunkID] = tr.score
	}
	normalizeScores(bm25Scores)

	combined := make(map[int64]float64, len(cosineScores)+len(bm25Scores))
	for chunkID, score := range cosineScores {
		combined[chunkID] += alpha * score
	}
	for chunkID, score := range bm25Scores {
		combined[chunkID] += beta * score
	}

	results := make([]rankedResult, 0, len(combined))
	for chunkID, score := range combined {
		results = append(results, rankedResult{chunkID: chunkID, score: score})
	}

	sortRankedResults(results)
	for i := range results {
		results[i].rank = i + 1
	}

	return results
}

// normalizeScores rescales scores in place to [0, 1] via min-max. A
// constant score set (including a single-element set) becomes all 1s
// rather than dividing by zero.
func normalizeScores(scores map[int64]float64) {
	if len(scores) == 0 {
		return
	}
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range scores {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	spread := max - min
	for k, v := range scores {
		if spread == 0 {
			scores[k] = 1
			continue
		}
		scores[k] = (v - min) / spread
	}
}

// recencyScore converts a file's last-modified time into a [0, 1] decay
// score with a 30-day half-life: a file touched today scores 1, one
// touched 30 days ago scores 0.5, and so on.
func recencyScore(modTime time.Time) float64 {
	const halfLifeDays = 30.0
	ageDays := time.Since(modTime).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-math.Ln2 * ageDays / halfLifeDays)
}

// dedupeByFile keeps the highest-scoring result per file path, merging the
// discarded results' line ranges into the survivor's FileInfo so a single
// multi-hit file is represented once with its full relevant span.
func dedupeByFile(results []types.SearchResult) []types.SearchResult {
	bestByFile := make(map[string]int)
	var out []types.SearchResult

	for _, r := range results {
		if r.File == nil {
			out = append(out, r)
			continue
		}
		if idx, seen := bestByFile[r.File.Path]; seen {
			kept := &out[idx]
			if r.File.StartLine < kept.File.StartLine {
				kept.File.StartLine = r.File.StartLine
			}
			if r.File.EndLine > kept.File.EndLine {
				kept.File.EndLine = r.File.EndLine
			}
			continue
		}
		bestByFile[r.File.Path] = len(out)
		out = append(out, r)
	}

	return out
}

// fetchResults retrieves full chunk data and metadata for ranked results. If
// gamma is nonzero, gamma*recencyScore is added to each result's already
// alpha/beta-weighted fused score, completing the
// alpha*cosineNorm + beta*bm25Norm + gamma*recencyBoost decomposition —
// this is the only point in the pipeline with file metadata in hand, so
// recency joins the fusion here rather than in applyWeightedFusion.
func (s *Searcher) fetchResults(ctx context.Context, ranked []rankedResult, limit int, gamma float64) ([]types.SearchResult, error) {
	if limit > len(ranked) {
		limit = len(ranked)
	}

	results := make([]types.SearchResult, 0, limit)

	for i := 0; i < limit; i++ {
		rr := ranked[i]

		// Get chunk with joins
		chunk, err := s.storage.GetChunk(ctx, rr.chunkID)
		if err != nil {
			continue // Skip chunks that can't be loaded
		}

		// Get file info
		file, err := s.storage.GetFileByID(ctx, chunk.FileID)
		if err != nil {
			continue
		}

		// Get symbol info if available
		var symbol *types.Symbol
		if chunk.SymbolID != nil {
			storageSymbol, err := s.storage.GetSymbol(ctx, *chunk.SymbolID)
			if err == nil {
				typesSymbol := storageSymbol.ToTypesSymbol()
				symbol = &typesSymbol
			}
		}

		score := rr.score
		if gamma != 0 {
			score = rr.score + gamma*recencyScore(file.ModTime)
		}

		// Build search result
		result := types.SearchResult{
			ChunkID:        rr.chunkID,
			Rank:           rr.rank,
			RelevanceScore: score,
			Symbol:         symbol,
			File: &types.FileInfo{
				Path:      file.FilePath,
				Package:   file.PackageName,
				StartLine: chunk.StartLine,
				EndLine:   chunk.EndLine,
			},
			Content: chunk.Content,
			Context: fmt.Sprintf("%s\n\n%s", chunk.ContextBefore, chunk.ContextAfter),
		}

		results = append(results, result)
	}

	if gamma != 0 {
		sort.Slice(results, func(i, j int) bool { return results[i].RelevanceScore > results[j].RelevanceScore })
	}

	return results, nil
}

// validateRequest ensures search request is valid
func (s *Searcher) validateRequest(req *SearchRequest) error {
	if req.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}

	if req.Limit <= 0 {
		req.Limit = 10 // Default limit
	}

	if req.Limit > 100 {
		req.Limit = 100 // Max limit
	}

	if req.Mode == "" {
		req.Mode = SearchModeHybrid // Default mode
	}

	if req.Alpha == 0 && req.Beta == 0 && req.Gamma == 0 {
		req.Alpha, req.Beta, req.Gamma = 0.6, 0.3, 0.1
	}

	if req.CacheTTL == 0 {
		req.CacheTTL = 1 * time.Hour // Default TTL
	}

	return nil
}

// checkCache looks up cached search results
func (s *Searcher) checkCache(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)

	if !found {
		s.cacheMu.RUnlock()
		return nil, fmt.Errorf("cache miss")
	}

	// Check if entry has expired while holding read lock to avoid race condition
	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		// Remove expired entry - need write lock
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil, fmt.Errorf("cache expired")
	}

	// Entry is valid - return a deep copy while still holding read lock
	// to ensure entry isn't modified during copy
	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()

	return response, nil
}

// storeInCache saves search results to cache
func (s *Searcher) storeInCache(ctx context.Context, req SearchRequest, response *SearchResponse) error {
	hash := computeQueryHash(req)

	// Calculate expiration time using TTL from request
	expiresAt := time.Now().Add(req.CacheTTL)

	// Create cache entry with deep copy to prevent external modifications
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: expiresAt,
	}

	s.cacheMu.Lock()
	s.cache.Add(hash, entry)
	s.cacheMu.Unlock()

	return nil
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	// Create new response with copied metadata
	dst := &SearchResponse{
		TotalResults:  src.TotalResults,
		SearchMode:    src.SearchMode,
		Duration:      src.Duration,
		CacheHit:      src.CacheHit,
		VectorResults: src.VectorResults,
		TextResults:   src.TextResults,
		Results:       make([]types.SearchResult, len(src.Results)),
	}

	// Deep copy each search result
	for i, result := range src.Results {
		dst.Results[i] = types.SearchResult{
			ChunkID:        result.ChunkID,
			Rank:           result.Rank,
			RelevanceScore: result.RelevanceScore,
			Content:        result.Content,
			Context:        result.Context,
		}

		// Copy Symbol pointer if it exists
		// Note: Symbol contains only primitive types and nested Position structs,
		// so shallow copy is sufficient. If Symbol is modified to include slice/map
		// fields in the future, this must be updated to deep copy those fields.
		if result.Symbol != nil {
			symbolCopy := *result.Symbol
			dst.Results[i].Symbol = &symbolCopy
		}

		// Copy FileInfo pointer if it exists
		// Note: FileInfo contains only primitive types, so shallow copy is sufficient.
		// If FileInfo is modified to include slice/map fields in the future, this must
		// be updated to deep copy those fields.
		if result.File != nil {
			fileCopy := *result.File
			dst.Results[i].File = &fileCopy
		}
	}

	return dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req SearchRequest) [32]byte {
	// Build deterministic string representation
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d", req.ProjectID))
	if req.Tag != nil {
		data.WriteString("|tag:")
		data.WriteString(req.Tag.Dir)
		data.WriteString(",")
		data.WriteString(req.Tag.Branch)
	}

	// Add filters with stable serialization
	if req.Filters != nil {
		data.WriteString("|filters:")
		data.WriteString(strings.Join(req.Filters.SymbolTypes, ","))
		data.WriteString("|")
		data.WriteString(req.Filters.FilePattern)
		data.WriteString("|")
		data.WriteString(strings.Join(req.Filters.DDDPatterns, ","))
		data.WriteString("|")
		data.WriteString(strings.Join(req.Filters.Packages, ","))
		data.WriteString("|")
		data.WriteString(fmt.Sprintf("%.2f", req.Filters.MinRelevance))
	}

	return sha256.Sum256([]byte(data.String()))
}

// sortRankedResults sorts results by score in descending order
func sortRankedResults(results []rankedResult) {
	sort.Slice(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
}

// InvalidateCache removes cached queries for a specific project
func (s *Searcher) InvalidateCache(ctx context.Context, projectID int64) error {
	// Since we need to check each entry's project ID, we need to iterate through all keys
	// LRU cache doesn't support filtering, so we purge the entire cache
	// This is acceptable as cache invalidation typically happens on reindexing
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
	return nil
}

// EvictLRU removes least-used cache entries when cache size exceeds limit
func (s *Searcher) EvictLRU(ctx context.Context, maxEntries int) error {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	// LRU cache handles eviction automatically when entries are added
	// This method is primarily for downsizing the cache capacity

	currentLen := s.cache.Len()
	if currentLen <= maxEntries {
		// No action needed - cache is within limits
		return nil
	}

	// NOTE: hashicorp/golang-lru doesn't support resizing existing cache
	// When downsizing is required, we intentionally clear the cache
	// This is acceptable because:
	// 1. Cache downsizing is rare (typically only on configuration changes)
	// 2. The cache will rebuild with most-recently-used entries
	// 3. This prevents memory issues when drastically reducing cache size
	newCache, err := lru.New[[32]byte, *cacheEntry](maxEntries)
	if err != nil {
		return fmt.Errorf("failed to create new cache: %w", err)
	}

	s.cache = newCache

	return nil
}

// Package reranker scores retrieved chunks against a query with an
// LLM-based cross-encoder, the optional final stage of the retrieval
// pipeline (C8). It mirrors internal/embedder's provider/cache/retry shape:
// a thin Provider contract for the wire call, and an Adapter that turns
// provider scores into a reordered []types.SearchResult so a *searcher.
// SearchRequest can plug one in as its Reranker field without this package
// importing internal/searcher.
package reranker

import (
	"context"
	"errors"
	"sort"

	"github.com/codectx-dev/codectx/pkg/types"
)

// Common errors
var (
	ErrProviderFailed     = errors.New("reranker provider failed")
	ErrUnsupportedModel   = errors.New("unsupported reranker")
	ErrNoProviderEnabled  = errors.New("no reranker provider configured")
	ErrEmptyCandidates    = errors.New("no candidates to rerank")
	ErrScoreCountMismatch = errors.New("reranker returned a different number of scores than candidates")
)

// Provider is the reranker contract: rerank(query, candidates) → scores in
// [0,1], same length as candidates, order preserved relative to the input.
// Implementations do the ranking; Adapter does the reordering.
type Provider interface {
	RerankScores(ctx context.Context, query string, candidates []string) ([]float64, error)

	// Name returns the provider name for logging and config round-tripping.
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

// Adapter turns a Provider's raw score contract into the
// (ctx, query, []types.SearchResult) → []types.SearchResult shape that
// internal/searcher's SearchRequest.Reranker field expects. It satisfies
// that interface structurally; nothing here imports internal/searcher.
type Adapter struct {
	Provider Provider
}

// New wraps a Provider in an Adapter.
func New(p Provider) *Adapter {
	return &Adapter{Provider: p}
}

// Rerank re-scores results against query and returns them sorted by the
// provider's score, descending. On a provider error the caller is expected
// to fall back to the pre-rerank ordering; Rerank itself just propagates
// the error rather than silently falling back, so the fallback decision and
// its log entry stay in one place (the caller).
func (a *Adapter) Rerank(ctx context.Context, query string, results []types.SearchResult) ([]types.SearchResult, error) {
	if len(results) == 0 {
		return nil, ErrEmptyCandidates
	}

	candidates := make([]string, len(results))
	for i, r := range results {
		candidates[i] = r.Content
	}

	scores, err := a.Provider.RerankScores(ctx, query, candidates)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(results) {
		return nil, ErrScoreCountMismatch
	}

	reranked := make([]types.SearchResult, len(results))
	copy(reranked, results)
	for i := range reranked {
		reranked[i].RelevanceScore = scores[i]
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].RelevanceScore > reranked[j].RelevanceScore
	})
	for i := range reranked {
		reranked[i].Rank = i + 1
	}

	return reranked, nil
}

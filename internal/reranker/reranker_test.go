package reranker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codectx-dev/codectx/pkg/types"
)

type stubProvider struct {
	scores []float64
	err    error
}

func (s *stubProvider) RerankScores(_ context.Context, _ string, candidates []string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.scores, nil
}

func (s *stubProvider) Name() string { return "stub" }
func (s *stubProvider) Close() error { return nil }

func newResults(contents ...string) []types.SearchResult {
	results := make([]types.SearchResult, len(contents))
	for i, c := range contents {
		results[i] = types.SearchResult{ChunkID: int64(i + 1), Rank: i + 1, Content: c, RelevanceScore: 0.5}
	}
	return results
}

func TestAdapterRerankReordersByScore(t *testing.T) {
	provider := &stubProvider{scores: []float64{0.1, 0.9, 0.4}}
	adapter := New(provider)

	results := newResults("low", "high", "mid")
	reranked, err := adapter.Rerank(context.Background(), "query", results)
	require.NoError(t, err)
	require.Len(t, reranked, 3)

	assert.Equal(t, "high", reranked[0].Content)
	assert.Equal(t, 0.9, reranked[0].RelevanceScore)
	assert.Equal(t, 1, reranked[0].Rank)

	assert.Equal(t, "mid", reranked[1].Content)
	assert.Equal(t, 2, reranked[1].Rank)

	assert.Equal(t, "low", reranked[2].Content)
	assert.Equal(t, 3, reranked[2].Rank)
}

func TestAdapterRerankEmptyCandidates(t *testing.T) {
	adapter := New(&stubProvider{})
	_, err := adapter.Rerank(context.Background(), "query", nil)
	require.ErrorIs(t, err, ErrEmptyCandidates)
}

func TestAdapterRerankScoreCountMismatch(t *testing.T) {
	provider := &stubProvider{scores: []float64{0.1, 0.2}}
	adapter := New(provider)

	_, err := adapter.Rerank(context.Background(), "query", newResults("a", "b", "c"))
	require.ErrorIs(t, err, ErrScoreCountMismatch)
}

func TestAdapterRerankPropagatesProviderError(t *testing.T) {
	wantErr := errors.New("boom")
	adapter := New(&stubProvider{err: wantErr})

	_, err := adapter.Rerank(context.Background(), "query", newResults("a"))
	require.ErrorIs(t, err, wantErr)
}

func TestAdapterRerankLeavesInputSliceUntouched(t *testing.T) {
	provider := &stubProvider{scores: []float64{0.9, 0.1}}
	adapter := New(provider)

	results := newResults("a", "b")
	_, err := adapter.Rerank(context.Background(), "query", results)
	require.NoError(t, err)

	assert.Equal(t, 0.5, results[0].RelevanceScore)
	assert.Equal(t, 1, results[0].Rank)
}

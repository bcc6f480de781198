package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"
)

// defaultProviderRateLimit mirrors internal/embedder's provider limiter: a
// conservative cap that avoids tripping the upstream API's own rate limiter
// during a large retrieval burst.
func defaultProviderRateLimit() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(3), 5)
}

const (
	ProviderJina = "jina"
	ProviderNone = "none"

	DefaultJinaRerankModel = "jina-reranker-v2-base-multilingual"

	EnvJinaAPIKey = "JINA_API_KEY"

	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// JinaReranker implements Provider against Jina AI's rerank endpoint.
type JinaReranker struct {
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewJinaReranker creates a Jina AI reranker. apiKey falls back to
// JINA_API_KEY when empty.
func NewJinaReranker(apiKey, model string) (*JinaReranker, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvJinaAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}
	if model == "" {
		model = DefaultJinaRerankModel
	}

	return &JinaReranker{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: defaultProviderRateLimit(),
	}, nil
}

func (j *JinaReranker) RerankScores(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return nil, ErrEmptyCandidates
	}

	config := defaultRetryConfig()
	scores, err := retryWithBackoff(ctx, config, func() ([]float64, error) {
		return j.callAPI(ctx, query, candidates)
	})
	if err != nil {
		return nil, fmt.Errorf("%w after %d retries: %v", ErrProviderFailed, MaxRetries, err)
	}
	return scores, nil
}

func (j *JinaReranker) callAPI(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if j.limiter != nil {
		if err := j.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqBody := map[string]interface{}{
		"model":     j.model,
		"query":     query,
		"documents": candidates,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.jina.ai/v1/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+j.apiKey)

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	scores := make([]float64, len(candidates))
	for _, r := range apiResp.Results {
		if r.Index < 0 || r.Index >= len(scores) {
			continue
		}
		scores[r.Index] = r.RelevanceScore
	}
	return scores, nil
}

func (j *JinaReranker) Name() string { return ProviderJina }

func (j *JinaReranker) Close() error {
	j.httpClient.CloseIdleConnections()
	return nil
}

// PassthroughReranker satisfies Provider without a real model: it assigns
// each candidate its positional rank as a descending score, preserving the
// caller's original ordering. It backs the "none"/unset reranker config so
// searcher.SearchRequest.Reranker is never nil when useReranking defaults to
// true, without requiring an API key to run.
type PassthroughReranker struct{}

// NewPassthroughReranker creates a no-op reranker.
func NewPassthroughReranker() *PassthroughReranker {
	return &PassthroughReranker{}
}

func (p *PassthroughReranker) RerankScores(_ context.Context, _ string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return nil, ErrEmptyCandidates
	}
	scores := make([]float64, len(candidates))
	for i := range candidates {
		scores[i] = 1 - float64(i)/float64(len(candidates))
	}
	return scores, nil
}

func (p *PassthroughReranker) Name() string { return ProviderNone }

func (p *PassthroughReranker) Close() error { return nil }

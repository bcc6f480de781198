package reranker

import (
	"fmt"
	"os"
	"strings"

	"github.com/codectx-dev/codectx/internal/config"
)

// NewProvider builds a Provider from a resolved reranker.* configuration
// (internal/config.Reranker), the path mcp.NewServer takes when the loaded
// configuration names a reranker. An empty name or "none" yields
// PassthroughReranker, so the default contextProvider.useReranking=true
// works without an API key; any other unrecognized name returns
// ErrUnsupportedModel.
func NewProvider(cfg config.Reranker) (Provider, error) {
	name := strings.ToLower(cfg.Name)
	switch name {
	case ProviderJina:
		return NewJinaReranker(cfg.APIKey, cfg.Model)
	case ProviderNone, "":
		return NewPassthroughReranker(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, cfg.Name)
	}
}

// NewFromEnv builds a Provider from environment variables, mirroring
// internal/embedder.NewFromEnv's precedence: CODECTX_RERANKER picks a
// named provider explicitly; otherwise JINA_API_KEY's presence selects
// Jina; otherwise it falls back to the passthrough.
func NewFromEnv() (Provider, error) {
	name := strings.ToLower(os.Getenv("CODECTX_RERANKER"))
	if name != "" {
		return NewProvider(config.Reranker{Name: name})
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return NewJinaReranker("", "")
	}
	return NewPassthroughReranker(), nil
}

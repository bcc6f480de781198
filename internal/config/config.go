// Package config loads codectx's runtime configuration by layering built-in
// defaults, an optional workspace config file, and environment variables,
// highest precedence last (environment always wins).
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// EmbeddingsProvider holds the embeddingsProvider.* configuration keys.
type EmbeddingsProvider struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	APIBase      string `json:"apiBase"`
	APIKey       string `json:"apiKey"`
	MaxChunkSize int    `json:"maxChunkSize"`
}

// Reranker holds the reranker.* configuration keys.
type Reranker struct {
	Name   string `json:"name"`
	Model  string `json:"model"`
	APIKey string `json:"apiKey"`
}

// Orchestrator holds the orchestrator.* configuration keys.
type Orchestrator struct {
	MaxConcurrentBatchesPerProvider int `json:"maxConcurrentBatchesPerProvider"`
	EmbeddingsTimeoutSeconds        int `json:"embeddingsTimeoutSeconds"`
	RerankerTimeoutSeconds          int `json:"rerankerTimeoutSeconds"`
}

// Config is the fully resolved configuration for one codectx process.
type Config struct {
	Home string `json:"-"` // per-user root, not itself a config key

	NRetrieve               int      `json:"contextProvider.nRetrieve"`
	NFinal                  int      `json:"contextProvider.nFinal"`
	UseReranking            bool     `json:"contextProvider.useReranking"`
	DisableInFiles          []string `json:"disableInFiles"`
	ImportDefinitionsCache  int      `json:"importDefinitions.cacheSize"`

	Embeddings   EmbeddingsProvider `json:"embeddingsProvider"`
	Reranker     Reranker           `json:"reranker"`
	Orchestrator Orchestrator       `json:"orchestrator"`
}

// fileShape mirrors Config but lets us detect which fields were actually
// present in the workspace config file, so defaults aren't clobbered by
// JSON's zero values for fields the file omits.
type fileShape struct {
	ContextProvider struct {
		NRetrieve    *int  `json:"nRetrieve"`
		NFinal       *int  `json:"nFinal"`
		UseReranking *bool `json:"useReranking"`
	} `json:"contextProvider"`
	DisableInFiles      []string `json:"disableInFiles"`
	EmbeddingsProvider  *EmbeddingsProvider `json:"embeddingsProvider"`
	Reranker            *Reranker           `json:"reranker"`
	ImportDefinitions   struct {
		CacheSize *int `json:"cacheSize"`
	} `json:"importDefinitions"`
	Orchestrator struct {
		MaxConcurrentBatchesPerProvider *int `json:"maxConcurrentBatchesPerProvider"`
		EmbeddingsTimeoutSeconds        *int `json:"embeddingsTimeoutSeconds"`
		RerankerTimeoutSeconds          *int `json:"rerankerTimeoutSeconds"`
	} `json:"orchestrator"`
}

// Defaults returns the built-in configuration defaults.
func Defaults() Config {
	return Config{
		NRetrieve:              25,
		NFinal:                 5,
		UseReranking:           true,
		ImportDefinitionsCache: 10,
		Embeddings: EmbeddingsProvider{
			MaxChunkSize: 1000,
		},
		Orchestrator: Orchestrator{
			MaxConcurrentBatchesPerProvider: 4,
			EmbeddingsTimeoutSeconds:        10,
			RerankerTimeoutSeconds:          30,
		},
	}
}

// Load resolves configuration for workspaceRoot: defaults, then
// <workspaceRoot>/.codectx.json if present, then environment variables.
func Load(workspaceRoot string) (Config, error) {
	cfg := Defaults()
	cfg.Home = resolveHome()

	if workspaceRoot != "" {
		if err := applyFile(&cfg, filepath.Join(workspaceRoot, ".codectx.json")); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func resolveHome() string {
	if h := os.Getenv("CODECTX_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codectx"
	}
	return filepath.Join(home, ".codectx")
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var shape fileShape
	if err := json.Unmarshal(data, &shape); err != nil {
		return err
	}

	if shape.ContextProvider.NRetrieve != nil {
		cfg.NRetrieve = *shape.ContextProvider.NRetrieve
	}
	if shape.ContextProvider.NFinal != nil {
		cfg.NFinal = *shape.ContextProvider.NFinal
	}
	if shape.ContextProvider.UseReranking != nil {
		cfg.UseReranking = *shape.ContextProvider.UseReranking
	}
	if shape.DisableInFiles != nil {
		cfg.DisableInFiles = shape.DisableInFiles
	}
	if shape.EmbeddingsProvider != nil {
		cfg.Embeddings = mergeEmbeddings(cfg.Embeddings, *shape.EmbeddingsProvider)
	}
	if shape.Reranker != nil {
		cfg.Reranker = *shape.Reranker
	}
	if shape.ImportDefinitions.CacheSize != nil {
		cfg.ImportDefinitionsCache = *shape.ImportDefinitions.CacheSize
	}
	if shape.Orchestrator.MaxConcurrentBatchesPerProvider != nil {
		cfg.Orchestrator.MaxConcurrentBatchesPerProvider = *shape.Orchestrator.MaxConcurrentBatchesPerProvider
	}
	if shape.Orchestrator.EmbeddingsTimeoutSeconds != nil {
		cfg.Orchestrator.EmbeddingsTimeoutSeconds = *shape.Orchestrator.EmbeddingsTimeoutSeconds
	}
	if shape.Orchestrator.RerankerTimeoutSeconds != nil {
		cfg.Orchestrator.RerankerTimeoutSeconds = *shape.Orchestrator.RerankerTimeoutSeconds
	}

	return nil
}

func mergeEmbeddings(base, override EmbeddingsProvider) EmbeddingsProvider {
	if override.Provider != "" {
		base.Provider = override.Provider
	}
	if override.Model != "" {
		base.Model = override.Model
	}
	if override.APIBase != "" {
		base.APIBase = override.APIBase
	}
	if override.APIKey != "" {
		base.APIKey = override.APIKey
	}
	if override.MaxChunkSize != 0 {
		base.MaxChunkSize = override.MaxChunkSize
	}
	return base
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CODECTX_N_RETRIEVE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NRetrieve = n
		}
	}
	if v := os.Getenv("CODECTX_N_FINAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NFinal = n
		}
	}
	if v := os.Getenv("CODECTX_USE_RERANKING"); v != "" {
		cfg.UseReranking = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("CODECTX_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("CODECTX_EMBEDDING_MODEL"); v != "" {
		cfg.Embeddings.Model = v
	}
	if v := os.Getenv("JINA_API_KEY"); v != "" && cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "jina"
		cfg.Embeddings.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "openai"
		cfg.Embeddings.APIKey = v
	}
	if v := os.Getenv("CODECTX_RERANKER"); v != "" {
		cfg.Reranker.Name = strings.ToLower(v)
	}
	if v := os.Getenv("CODECTX_IMPORT_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ImportDefinitionsCache = n
		}
	}
}

// IsDisabled reports whether relPath matches one of the configured
// disableInFiles glob patterns.
func (c Config) IsDisabled(relPath string) bool {
	for _, pattern := range c.DisableInFiles {
		if ok, err := filepath.Match(pattern, relPath); err == nil && ok {
			return true
		}
		if ok, err := filepath.Match(pattern, filepath.Base(relPath)); err == nil && ok {
			return true
		}
	}
	return false
}

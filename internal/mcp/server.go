package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/codectx-dev/codectx/internal/catalog"
	"github.com/codectx-dev/codectx/internal/config"
	"github.com/codectx-dev/codectx/internal/embedder"
	"github.com/codectx-dev/codectx/internal/embedindex"
	"github.com/codectx-dev/codectx/internal/importdefs"
	"github.com/codectx-dev/codectx/internal/indexer"
	"github.com/codectx-dev/codectx/internal/lexical"
	"github.com/codectx-dev/codectx/internal/orchestrator"
	"github.com/codectx-dev/codectx/internal/reranker"
	"github.com/codectx-dev/codectx/internal/searcher"
	"github.com/codectx-dev/codectx/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "codectx"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultDBPath is the default location for the database
	DefaultDBPath = "~/.codectx/indices"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp          *server.MCPServer
	storage      storage.Storage
	indexer      *indexer.Indexer
	searcher     *searcher.Searcher
	reranker     searcher.Reranker // nil if no reranker is configured or contextProvider.useReranking is false
	importDefs   *importdefs.Service
	orchestrator *orchestrator.Orchestrator
	catalogStore *catalog.Store
	cfg          config.Config
}

// NewServer creates a new MCP server instance
func NewServer(dbPath string) (*Server, error) {
	// Expand home directory if needed
	if dbPath == "" || dbPath == "~/.codectx/indices" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".codectx", "indices")
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// For now, use a single database file
	// In future, we could have per-project databases
	dbFile := filepath.Join(dbPath, "codectx.db")

	// Initialize storage
	store, err := storage.NewSQLiteStorage(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Layered config: built-in defaults, then ~/.codectx.json-style workspace
	// file (none at the server-global scope; per-project overrides are
	// layered in per-tool call), then environment variables.
	cfg, err := config.Load("")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Create embedder from the resolved config rather than re-reading
	// environment variables a second time.
	emb, err := embedder.NewFromAppConfig(cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	// Create indexer with embedding support enabled
	idx := indexer.NewWithEmbedder(store, emb)

	// Create searcher
	srch := searcher.NewSearcher(store, emb)

	// Reranking is optional and gated by contextProvider.useReranking: a
	// workspace-configured reranker.name takes precedence, otherwise fall
	// back to environment auto-detection the same way the embedder does.
	var rr searcher.Reranker
	if cfg.UseReranking {
		var provider reranker.Provider
		var perr error
		if cfg.Reranker.Name != "" {
			provider, perr = reranker.NewProvider(cfg.Reranker)
		} else {
			provider, perr = reranker.NewFromEnv()
		}
		if perr == nil && provider != nil {
			rr = reranker.New(provider)
		}
	}
	srch.SetRerankerTimeout(time.Duration(cfg.Orchestrator.RerankerTimeoutSeconds) * time.Second)

	// Import-definitions sidecar (C9): resolves a file's imports to their
	// defining packages via go/build, cached behind an LRU sized from
	// config (importDefinitions.cacheSize, default 10).
	importDefs := importdefs.New(importdefs.NewBuildResolver(""), cfg.ImportDefinitionsCache)

	// Incremental refresh pipeline (C7): shares the same *sql.DB as store, so
	// the catalog tables (tag_catalog, global_cache) and the artifact tables
	// (chunks, embeddings) commit within the storage layer's existing
	// migrations rather than a separate schema. treeDir holds one persisted
	// Merkle tree per (dir, branch) tag alongside the cross-process refresh
	// lease files.
	db := store.DB()
	catalogStore := catalog.NewStore(db)
	embedIdx := embedindex.New(store, emb, catalogStore)
	lexIdx := lexical.New(db)
	treeDir := filepath.Join(dbPath, "merkle")
	if err := os.MkdirAll(treeDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create merkle tree directory: %w", err)
	}
	orch := orchestrator.New(store, catalogStore, embedIdx, lexIdx, treeDir)
	orch.SetMaxConcurrentEmbedBatches(cfg.Orchestrator.MaxConcurrentBatchesPerProvider)
	orch.SetEmbeddingsTimeout(time.Duration(cfg.Orchestrator.EmbeddingsTimeoutSeconds) * time.Second)

	// search_code reads through the same embedIdx/lexIdx/catalogStore
	// refresh_index writes, so a refresh's output is reachable by a
	// tag-scoped search without a separate reconciliation step.
	srch.SetCatalogIndexes(embedIdx, lexIdx, catalogStore)

	// Create MCP server
	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:          mcpServer,
		storage:      store,
		indexer:      idx,
		searcher:     srch,
		reranker:     rr,
		importDefs:   importDefs,
		orchestrator: orch,
		catalogStore: catalogStore,
		cfg:          cfg,
	}

	// Register tools
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.storage.Close() }()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	// Register index_codebase tool
	s.mcp.AddTool(indexCodebaseTool(), s.handleIndexCodebase)

	// Register refresh_index tool
	s.mcp.AddTool(refreshIndexTool(), s.handleRefreshIndex)

	// Register search_code tool
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)

	// Register get_status tool
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)

	// Register get_import_definitions tool
	s.mcp.AddTool(getImportDefinitionsTool(), s.handleGetImportDefinitions)

	return nil
}

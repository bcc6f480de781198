package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/codectx-dev/codectx/internal/catalog"
	"github.com/codectx-dev/codectx/internal/indexer"
	"github.com/codectx-dev/codectx/internal/orchestrator"
	"github.com/codectx-dev/codectx/internal/searcher"
	"github.com/codectx-dev/codectx/internal/storage"
	"github.com/codectx-dev/codectx/internal/walker"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound    = -32001 // Specified path does not contain a Go project
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // Project not indexed
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// handleIndexCodebase handles the index_codebase tool invocation
func (s *Server) handleIndexCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	// Validate path exists and is accessible
	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	// Parse optional parameters
	forceReindex, _ := args["force_reindex"].(bool)
	includeTests := getBoolDefault(args, "include_tests", true)
	includeVendor := getBoolDefault(args, "include_vendor", false)

	// Create indexer config
	config := &indexer.Config{
		IncludeTests:       includeTests,
		IncludeVendor:      includeVendor,
		ForceReindex:       forceReindex,
		GenerateEmbeddings: true,
		IsDisabled:         s.cfg.IsDisabled,
	}

	// Run indexing
	stats, err := s.indexer.IndexProject(ctx, path, config)
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "another indexing operation is already running for this project", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Format response
	response := map[string]interface{}{
		"indexed":              true,
		"files_indexed":        stats.FilesIndexed,
		"files_skipped":        stats.FilesSkipped,
		"files_failed":         stats.FilesFailed,
		"symbols_extracted":    stats.SymbolsExtracted,
		"chunks_created":       stats.ChunksCreated,
		"embeddings_generated": stats.EmbeddingsGenerated,
		"embeddings_failed":    stats.EmbeddingsFailed,
		"duration_ms":          stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRefreshIndex handles the refresh_index tool invocation, driving the
// tag-aware incremental refresh pipeline to completion and collapsing its
// streamed progress into a single summary response. Unlike index_codebase,
// only content that changed since the tag's last recorded Merkle tree is
// re-chunked, re-embedded, and re-tokenized.
func (s *Server) handleRefreshIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	branch := getStringDefault(args, "branch", "main")

	var walkOpts *walker.Options
	if len(s.cfg.DisableInFiles) > 0 {
		opts := walker.DefaultOptions()
		opts.ExtraIgnore = s.cfg.DisableInFiles
		walkOpts = &opts
	}

	progress, err := s.orchestrator.Refresh(ctx, orchestrator.Request{RootPath: path, Branch: branch, WalkOpts: walkOpts})
	if errors.Is(err, orchestrator.ErrBusy) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "another refresh is already running for this project", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "refresh failed to start", map[string]interface{}{
			"error": err.Error(),
		})
	}

	var last orchestrator.Progress
	steps := make([]string, 0, 8)
	for p := range progress {
		last = p
		steps = append(steps, p.Description)
	}

	if last.Status == orchestrator.StatusFailed {
		return nil, newMCPError(ErrorCodeInternalError, "refresh failed", map[string]interface{}{
			"run_id": last.RunID,
			"error":  last.Err.Error(),
			"steps":  steps,
		})
	}

	response := map[string]interface{}{
		"run_id":  last.RunID,
		"status":  string(last.Status),
		"steps":   steps,
		"paused":  last.Status == orchestrator.StatusPaused,
		"summary": last.Description,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	// Validate path exists and is accessible
	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	// Parse optional parameters
	limit := getIntDefault(args, "limit", s.cfg.NFinal)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	searchMode := getStringDefault(args, "search_mode", "hybrid")
	if searchMode != "hybrid" && searchMode != "vector" && searchMode != "keyword" {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":   "search_mode",
			"value":   searchMode,
			"allowed": []string{"hybrid", "vector", "keyword"},
		})
	}

	// Look up the indexed project so results can be scoped to it.
	project, err := s.storage.GetProject(ctx, path)
	if err == storage.ErrNotFound {
		return nil, newMCPError(ErrorCodeNotIndexed, "project not indexed", map[string]interface{}{
			"path":    path,
			"message": "Use index_codebase tool to index this project before searching.",
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to look up project", map[string]interface{}{
			"error": err.Error(),
		})
	}

	var mode searcher.SearchMode
	switch searchMode {
	case "vector":
		mode = searcher.SearchModeVector
	case "keyword":
		mode = searcher.SearchModeKeyword
	default:
		mode = searcher.SearchModeHybrid
	}

	filters := parseSearchFilters(args["filters"])

	req := searcher.SearchRequest{
		Query:        query,
		Limit:        limit,
		PoolSize:     s.cfg.NRetrieve,
		Mode:         mode,
		Filters:      filters,
		ProjectID:    project.ID,
		UseCache:     true,
		DedupeByFile: true,
		Reranker:     s.reranker,
	}

	// If refresh_index has populated the catalog for this (path, branch),
	// read through it (C5/C6) instead of the legacy project-scoped tables,
	// so a refresh's output is what search_code actually returns. A branch
	// that has never been refreshed has no tag_catalog rows, and req.Tag
	// stays nil so callers who only ever ran index_codebase keep working.
	branch := getStringDefault(args, "branch", "main")
	if s.catalogStore != nil {
		tag := catalog.Tag{Dir: path, Branch: branch, ArtifactKind: catalog.KindChunks}
		if paths, err := s.catalogStore.PathsForTag(ctx, tag); err == nil && len(paths) > 0 {
			req.Tag = &searcher.TagScope{Dir: path, Branch: branch}
		}
	}

	resp, err := s.searcher.Search(ctx, req)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		entry := map[string]interface{}{
			"rank":            r.Rank,
			"relevance_score": r.RelevanceScore,
			"content":         r.Content,
		}
		if r.Context != "" {
			entry["context"] = r.Context
		}
		if r.File != nil {
			entry["file"] = map[string]interface{}{
				"path":       r.File.Path,
				"package":    r.File.Package,
				"start_line": r.File.StartLine,
				"end_line":   r.File.EndLine,
			}
		}
		if r.Symbol != nil {
			entry["symbol"] = map[string]interface{}{
				"name": r.Symbol.Name,
				"kind": string(r.Symbol.Kind),
			}
		}
		results = append(results, entry)
	}

	response := map[string]interface{}{
		"query":          query,
		"search_mode":    string(resp.SearchMode),
		"total_results":  resp.TotalResults,
		"vector_results": resp.VectorResults,
		"text_results":   resp.TextResults,
		"cache_hit":      resp.CacheHit,
		"duration_ms":    resp.Duration.Milliseconds(),
		"results":        results,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// parseSearchFilters converts the tool's raw filters argument into
// storage.SearchFilters, ignoring unrecognized or mistyped fields rather
// than erroring — filters are a narrowing convenience, not a contract.
func parseSearchFilters(raw interface{}) *storage.SearchFilters {
	m, ok := raw.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil
	}

	filters := &storage.SearchFilters{}

	if v, ok := m["symbol_types"].([]interface{}); ok {
		for _, e := range v {
			if s, ok := e.(string); ok {
				filters.SymbolTypes = append(filters.SymbolTypes, s)
			}
		}
	}
	if v, ok := m["file_pattern"].(string); ok {
		filters.FilePattern = v
	}
	if v, ok := m["ddd_patterns"].([]interface{}); ok {
		for _, e := range v {
			if s, ok := e.(string); ok {
				filters.DDDPatterns = append(filters.DDDPatterns, s)
			}
		}
	}
	if v, ok := m["packages"].([]interface{}); ok {
		for _, e := range v {
			if s, ok := e.(string); ok {
				filters.Packages = append(filters.Packages, s)
			}
		}
	}
	if v, ok := m["min_relevance"].(float64); ok {
		filters.MinRelevance = v
	}

	return filters
}

// handleGetImportDefinitions handles the get_import_definitions tool
// invocation, resolving the imports of the given file through the
// import-definitions sidecar (cached, LRU-evicted).
func (s *Server) handleGetImportDefinitions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	file, ok := args["file"].(string)
	if !ok || file == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "file parameter is required", map[string]interface{}{
			"param":  "file",
			"reason": "missing or empty",
		})
	}

	if !filepath.IsAbs(file) {
		return nil, newMCPError(ErrorCodeInvalidParams, "file must be an absolute path", map[string]interface{}{
			"param": "file",
			"value": file,
		})
	}
	if _, err := os.Stat(file); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "file does not exist or is not readable", map[string]interface{}{
			"param": "file",
			"error": err.Error(),
		})
	}

	defs, err := s.importDefs.Resolve(ctx, file)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to resolve import definitions", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(defs))
	for _, d := range defs {
		results = append(results, map[string]interface{}{
			"import_path": d.ImportPath,
			"path":        d.Path,
			"start_line":  d.StartLine,
			"end_line":    d.EndLine,
		})
	}

	response := map[string]interface{}{
		"file":        file,
		"definitions": results,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	// Validate path exists and is accessible
	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	// Try to get project
	project, err := s.storage.GetProject(ctx, path)
	if err == storage.ErrNotFound {
		// Project not indexed
		response := map[string]interface{}{
			"indexed": false,
			"path":    path,
			"message": "Project not indexed. Use index_codebase tool to index this project.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get project status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Get detailed status
	status, err := s.storage.GetStatus(ctx, project.ID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Format response
	response := map[string]interface{}{
		"indexed": true,
		"project": map[string]interface{}{
			"path":            project.RootPath,
			"module_name":     project.ModuleName,
			"go_version":      project.GoVersion,
			"last_indexed_at": project.LastIndexedAt.Format("2006-01-02T15:04:05Z07:00"),
		},
		"statistics": map[string]interface{}{
			"files_count":      status.FilesCount,
			"symbols_count":    status.SymbolsCount,
			"chunks_count":     status.ChunksCount,
			"embeddings_count": status.EmbeddingsCount,
			"index_size_mb":    fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"fts_indexes_built":    status.Health.FTSIndexesBuilt,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks if a path exists and is accessible
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	// Check if path is absolute
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	// Check if path exists
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	// Check if it's a directory
	if !info.IsDir() {
		return ErrNotDirectory
	}

	// Check if directory is readable
	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	// Check for Go files
	hasGoFiles := false
	_ = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && strings.HasSuffix(p, ".go") {
			hasGoFiles = true
			// Continue walking - we just need to know if at least one Go file exists
		}
		return nil
	})

	if !hasGoFiles {
		return ErrNoGoFiles
	}

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrNoGoFiles       = errors.New("directory does not contain Go files")
)

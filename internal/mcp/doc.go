// Package mcp implements the Model Context Protocol (MCP) server for CodeCtx.
//
// The MCP server exposes these tools to AI coding assistants (Claude Code, Codex CLI):
//   - index_codebase: Index a Go project for semantic search
//   - refresh_index: Incrementally re-index only the files that changed since the last refresh
//   - search_code: Search indexed code with natural language queries
//   - get_import_definitions: Resolve a Go file's imports to their defining packages
//   - get_status: Check indexing status and statistics
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server communicates with MCP clients via standard input/output,
// making it simple to integrate with any MCP-compatible client.
//
// # Basic Usage
//
// The MCP server is started by running the codectx binary; it takes no
// subcommand, and its only flag is --version:
//
//	codectx
//
// It then listens on stdin for MCP protocol messages and writes responses to stdout.
//
// # Tool: index_codebase
//
// Index a Go codebase to make it searchable:
//
//	Request:
//	{
//	  "name": "index_codebase",
//	  "arguments": {
//	    "path": "/path/to/project",
//	    "force_reindex": false,
//	    "include_tests": true,
//	    "include_vendor": false
//	  }
//	}
//
//	Response:
//	{
//	  "indexed": true,
//	  "files_indexed": 247,
//	  "files_skipped": 89,
//	  "files_failed": 0,
//	  "symbols_extracted": 8432,
//	  "chunks_created": 9120,
//	  "embeddings_generated": 9120,
//	  "embeddings_failed": 0,
//	  "duration_ms": 35200
//	}
//
// # Tool: search_code
//
// Search indexed code semantically or by keywords:
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {
//	    "path": "/path/to/project",
//	    "query": "user authentication logic",
//	    "limit": 10,
//	    "search_mode": "hybrid",
//	    "filters": {
//	      "symbol_types": ["function", "method"],
//	      "packages": ["internal/auth"]
//	    }
//	  }
//	}
//
//	Response:
//	{
//	  "query": "user authentication logic",
//	  "search_mode": "hybrid",
//	  "total_results": 1,
//	  "vector_results": 8,
//	  "text_results": 5,
//	  "cache_hit": false,
//	  "duration_ms": 42,
//	  "results": [
//	    {
//	      "rank": 1,
//	      "relevance_score": 0.92,
//	      "symbol": {
//	        "name": "AuthenticateUser",
//	        "kind": "function"
//	      },
//	      "file": {
//	        "path": "internal/auth/service.go",
//	        "package": "auth",
//	        "start_line": 45,
//	        "end_line": 72
//	      },
//	      "content": "func AuthenticateUser(...) { ... }"
//	    }
//	  ]
//	}
//
// # Tool: get_status
//
// Check indexing status:
//
//	Request:
//	{
//	  "name": "get_status",
//	  "arguments": {
//	    "path": "/path/to/project"
//	  }
//	}
//
//	Response:
//	{
//	  "indexed": true,
//	  "project": {
//	    "path": "/path/to/project",
//	    "module_name": "github.com/user/project",
//	    "go_version": "1.22",
//	    "last_indexed_at": "2025-01-15T10:30:00Z"
//	  },
//	  "statistics": {
//	    "files_count": 247,
//	    "symbols_count": 8432,
//	    "chunks_count": 9120,
//	    "embeddings_count": 9120,
//	    "index_size_mb": "12.40"
//	  },
//	  "health": {
//	    "database_accessible": true,
//	    "embeddings_available": true,
//	    "fts_indexes_built": true
//	  }
//	}
//
// # MCP Client Configuration
//
// Configure in Claude Code's MCP settings:
//
//	{
//	  "mcpServers": {
//	    "codectx": {
//	      "command": "/usr/local/bin/codectx",
//	      "args": [],
//	      "env": {
//	        "JINA_API_KEY": "your-api-key"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// The MCP server returns standard JSON-RPC error responses:
//
//	{
//	  "error": {
//	    "code": -32602,
//	    "message": "invalid path",
//	    "data": {
//	      "param": "path",
//	      "reason": "path does not exist"
//	    }
//	  }
//	}
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, filesystem, etc.)
//   - -32001: Project not found
//   - -32002: Indexing in progress
//   - -32003: Project not indexed
//
// # Implementation Details
//
// The MCP package uses github.com/mark3labs/mcp-go for protocol implementation:
//
//	mcpServer := server.NewMCPServer(ServerName, ServerVersion)
//	mcpServer.AddTool(indexCodebaseTool(), s.handleIndexCodebase)
//	mcpServer.AddTool(refreshIndexTool(), s.handleRefreshIndex)
//	mcpServer.AddTool(searchCodeTool(), s.handleSearchCode)
//	mcpServer.AddTool(getStatusTool(), s.handleGetStatus)
//	mcpServer.AddTool(getImportDefinitionsTool(), s.handleGetImportDefinitions)
//	server.ServeStdio(mcpServer)
//
// Tool handlers receive the raw tool-call request and return a text result
// holding the JSON response:
//
//	func (s *Server) handleIndexCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
//	    args, ok := request.Params.Arguments.(map[string]interface{})
//	    // validate args["path"], build an indexer.Config ...
//
//	    stats, err := s.indexer.IndexProject(ctx, path, config)
//	    // ...
//
//	    return mcp.NewToolResultText(formatJSON(response)), nil
//	}
//
// # Logging
//
// The MCP server logs to stderr (stdout is reserved for MCP protocol):
//
//	log.SetOutput(os.Stderr)
//	log.Printf("MCP server started")
//
// The standard log package is used without levels; no environment variable
// changes what is logged.
//
// # Testing
//
// The package has no test client. Tests build a Server on a temporary
// database directory and call its handler methods directly:
//
//	server, err := NewServer(t.TempDir())
//	require.NoError(t, err)
//
//	var req mcp.CallToolRequest
//	req.Params.Arguments = map[string]interface{}{"path": "/test/project"}
//	result, err := server.handleIndexCodebase(ctx, req)
package mcp

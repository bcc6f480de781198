package chunker

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/codectx-dev/codectx/internal/parser"
	"github.com/codectx-dev/codectx/pkg/types"
)

// Dispatch picks a chunking strategy by file extension and applies it: Go
// source routes through the AST structural chunker, falling back to the
// LineChunker on parse failure; Markdown routes through the header-depth
// chunker; Python, TypeScript/JavaScript, Java, and the C-like family route
// through the regex/brace-heuristic StructuralChunker; everything else, and
// any recognized-language file where StructuralChunker finds no boundary,
// uses the LineChunker directly.
// Callers that already hold a *types.ParseResult (an indexing loop that
// parses once and reuses the result for symbols, imports, and chunks alike)
// should call (*Chunker).ChunkFile directly instead, to avoid parsing the
// file twice.
func Dispatch(filePath string, fileID int64) ([]*types.Chunk, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".go":
		parseResult, err := parser.New().ParseFile(filePath)
		if err != nil {
			return lineChunkFallback(filePath, fileID, err)
		}
		chunks, err := New().ChunkFile(filePath, parseResult, fileID)
		if err != nil {
			return lineChunkFallback(filePath, fileID, err)
		}
		return chunks, nil
	case ".md", ".markdown":
		return NewMarkdownChunker().ChunkFile(filePath, fileID)
	default:
		if structuralLang(ext) != "" {
			chunks, err := NewStructuralChunker().ChunkFile(filePath, fileID)
			if err != nil {
				return lineChunkFallback(filePath, fileID, err)
			}
			if len(chunks) > 0 {
				return chunks, nil
			}
		}
		return NewLineChunker().ChunkFile(filePath, fileID)
	}
}

// lineChunkFallback runs the LineChunker in place of the structural chunker
// after cause (a parse or chunking failure) made the latter unusable. The
// fallback usually succeeds — parse errors are common in partially-written
// files — so it only surfaces cause, wrapped as ErrChunkParse, when the
// LineChunker fails too and there is no chunk output to fall back to at all.
func lineChunkFallback(filePath string, fileID int64, cause error) ([]*types.Chunk, error) {
	chunks, err := NewLineChunker().ChunkFile(filePath, fileID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v (line chunker fallback also failed: %v)", types.ErrChunkParse, filePath, cause, err)
	}
	return chunks, nil
}

// SplitOversized re-chunks a single oversized chunk's content into windows
// of the LineChunker's default WindowLines/OverlapLines (cut by line count
// only), used when a Go AST or structural chunk exceeds
// MaxTokensPerChunk and needs to be broken into smaller pieces that still
// embed and retrieve well. The resulting chunks keep the original chunk's
// FileID and ContextBefore, with line numbers offset to the original
// chunk's position in the file.
func SplitOversized(chunk *types.Chunk) []*types.Chunk {
	if chunk.TokenCount <= MaxTokensPerChunk {
		return []*types.Chunk{chunk}
	}

	lc := NewLineChunker()
	lines := strings.Split(chunk.Content, "\n")
	var out []*types.Chunk

	start := 0
	for start < len(lines) {
		end := start + lc.WindowLines
		if end > len(lines) {
			end = len(lines)
		}
		content := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(content) != "" {
			sub := &types.Chunk{
				FileID:        chunk.FileID,
				Content:       content,
				ContextBefore: chunk.ContextBefore,
				StartLine:     chunk.StartLine + start,
				EndLine:       chunk.StartLine + end - 1,
				ChunkType:     chunk.ChunkType,
			}
			sub.ComputeTokenCount()
			sub.ComputeContentHash()
			out = append(out, sub)
		}
		if end >= len(lines) {
			break
		}
		start = end - lc.OverlapLines
	}

	if len(out) == 0 {
		return []*types.Chunk{chunk}
	}
	return out
}

package chunker

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/codectx-dev/codectx/pkg/types"
)

// structuralLang maps a lowercase file extension to the regex family used to
// find symbol boundaries in StructuralChunker, mirroring
// edward-ap-class-collector's InferLangByExt: the TS/JS family coalesces
// into one extractor, and Java/C++/C#/Kotlin coalesce into "brace" since
// they share a "modifiers return-type name(...) {" method shape.
func structuralLang(ext string) string {
	switch strings.ToLower(ext) {
	case ".py":
		return "py"
	case ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs":
		return "ts"
	case ".java", ".cpp", ".cc", ".cxx", ".hpp", ".hh", ".h", ".cs", ".kt", ".c":
		return "brace"
	default:
		return ""
	}
}

var (
	// class Foo:  |  def bar(...):  — indentation marks nesting, but the
	// boundary finalization pass below only needs each match's start line.
	rePyBoundary = regexp.MustCompile(`(?m)^\s*(class|def)\s+([A-Za-z_]\w*)`)

	// export (default )?(async )?class|interface|function Name
	reTSBoundary = regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?(class|interface|function)\*?\s+([A-Za-z_$][\w$]*)`)

	// public class|interface|struct|enum Name — adapted from
	// symbols_java.go's reJavaType and symbols_cpp.go's primaryRe.
	reBraceType = regexp.MustCompile(`(?m)^\s*(?:public\s+|private\s+|internal\s+|final\s+|abstract\s+|static\s+)*(class|interface|struct|enum)\s+([A-Za-z_]\w*)`)

	// Method/function signature: modifiers, a return-type token, a name,
	// then "(" — adapted from symbols_java.go's reJavaMeth. Requiring both a
	// type token and a name before "(" rejects control-flow lines like
	// "if (x)" or "while (y)", which have only one identifier there.
	reBraceMethod = regexp.MustCompile(`(?m)^\s*(?:public|protected|private|internal|static|final|virtual|override|synchronized|native|abstract|default|async|inline|const|\s)+` +
		`\s*[A-Za-z_][\w<>\[\],.:&*]*` +
		`\s+([A-Za-z_]\w*)\s*\(`)
)

type structuralBoundary struct {
	start int
	kind  types.ChunkType
}

// findBoundaries returns the start line of every symbol StructuralChunker
// recognizes in content, tagged with the chunk type that symbol becomes.
func findBoundaries(lang, content string) []structuralBoundary {
	lineOf := func(offset int) int { return 1 + strings.Count(content[:offset], "\n") }

	var out []structuralBoundary
	switch lang {
	case "py":
		for _, m := range rePyBoundary.FindAllStringSubmatchIndex(content, -1) {
			kw := content[m[2]:m[3]]
			kind := types.ChunkFunction
			if kw == "class" {
				kind = types.ChunkTypeDecl
			}
			out = append(out, structuralBoundary{start: lineOf(m[0]), kind: kind})
		}
	case "ts":
		for _, m := range reTSBoundary.FindAllStringSubmatchIndex(content, -1) {
			kw := content[m[2]:m[3]]
			kind := types.ChunkFunction
			if kw == "class" || kw == "interface" {
				kind = types.ChunkTypeDecl
			}
			out = append(out, structuralBoundary{start: lineOf(m[0]), kind: kind})
		}
	case "brace":
		for _, m := range reBraceType.FindAllStringIndex(content, -1) {
			out = append(out, structuralBoundary{start: lineOf(m[0]), kind: types.ChunkTypeDecl})
		}
		for _, m := range reBraceMethod.FindAllStringIndex(content, -1) {
			out = append(out, structuralBoundary{start: lineOf(m[0]), kind: types.ChunkMethod})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

// StructuralChunker is the regex/brace-heuristic fallback for source
// languages with no AST parser in internal/parser: Python, TypeScript/
// JavaScript, Java, and the C-like family (C, C++, C#, Kotlin). It locates
// symbol boundaries with per-language regexes grounded in
// edward-ap-class-collector's symbols_{py,ts,java,cpp}.go, then finalizes
// each boundary's end line the same way that package's manifest.go does:
// sorted starts, each end is the next boundary's start minus one, and the
// last symbol runs to EOF.
type StructuralChunker struct{}

// NewStructuralChunker builds a StructuralChunker.
func NewStructuralChunker() *StructuralChunker {
	return &StructuralChunker{}
}

// ChunkFile splits filePath by regex-recognized symbol boundaries. It
// returns nil, nil (not an error) when the extension isn't one of the
// recognized languages or no boundary was found, so Dispatch can fall back
// to the LineChunker.
func (c *StructuralChunker) ChunkFile(filePath string, fileID int64) ([]*types.Chunk, error) {
	lang := structuralLang(filepath.Ext(filePath))
	if lang == "" {
		return nil, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	content := string(data)
	lines := strings.Split(content, "\n")

	whole := &types.Chunk{FileID: fileID, Content: content, StartLine: 1, EndLine: len(lines), ChunkType: types.ChunkPackage}
	whole.ComputeTokenCount()
	if whole.TokenCount <= MaxTokensPerChunk {
		whole.ComputeContentHash()
		return []*types.Chunk{whole}, nil
	}

	boundaries := findBoundaries(lang, content)
	if len(boundaries) == 0 {
		return nil, nil
	}

	chunks := make([]*types.Chunk, 0, len(boundaries))
	for i, b := range boundaries {
		start := b.start
		end := len(lines)
		if i+1 < len(boundaries) {
			end = boundaries[i+1].start - 1
		}
		if end < start {
			end = start
		}
		if start > len(lines) {
			continue
		}
		if end > len(lines) {
			end = len(lines)
		}

		chunkContent := strings.Join(lines[start-1:end], "\n")
		if strings.TrimSpace(chunkContent) == "" {
			continue
		}

		chunk := &types.Chunk{
			FileID:    fileID,
			Content:   chunkContent,
			StartLine: start,
			EndLine:   end,
			ChunkType: b.kind,
		}
		chunk.ComputeTokenCount()
		chunk.ComputeContentHash()
		chunk = collapseOversized(chunk)
		chunks = append(chunks, SplitOversized(chunk)...)
	}

	if len(chunks) == 0 {
		return nil, nil
	}
	return chunks, nil
}

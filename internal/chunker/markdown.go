package chunker

import (
	"fmt"
	"os"
	"strings"

	"github.com/codectx-dev/codectx/pkg/types"
)

// MarkdownChunker splits a Markdown document into sections bounded by
// headings, mirroring the Go structural chunker's one-chunk-per-declaration
// shape but keyed on heading depth instead of AST boundaries.
type MarkdownChunker struct{}

// NewMarkdownChunker creates a MarkdownChunker.
func NewMarkdownChunker() *MarkdownChunker {
	return &MarkdownChunker{}
}

type markdownHeading struct {
	depth int
	line  int // 1-based
	text  string
}

// ChunkFile splits filePath's content on ATX ("#") headings. A section runs
// from its heading line to the line before the next heading of equal or
// lesser depth (or EOF). Content preceding the first heading becomes its
// own chunk so front matter and introductions are never dropped.
func (c *MarkdownChunker) ChunkFile(filePath string, fileID int64) ([]*types.Chunk, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	lines := strings.Split(string(content), "\n")
	headings := findHeadings(lines)

	if len(headings) == 0 {
		chunk := c.buildChunk(lines, 1, len(lines), fileID, "")
		if chunk == nil {
			return nil, nil
		}
		return []*types.Chunk{chunk}, nil
	}

	var chunks []*types.Chunk
	if headings[0].line > 1 {
		if chunk := c.buildChunk(lines, 1, headings[0].line-1, fileID, ""); chunk != nil {
			chunks = append(chunks, chunk)
		}
	}

	for i, h := range headings {
		end := len(lines)
		for j := i + 1; j < len(headings); j++ {
			if headings[j].depth <= h.depth {
				end = headings[j].line - 1
				break
			}
		}
		if chunk := c.buildChunk(lines, h.line, end, fileID, h.text); chunk != nil {
			chunks = append(chunks, chunk)
		}
	}

	return chunks, nil
}

func (c *MarkdownChunker) buildChunk(lines []string, start, end int, fileID int64, heading string) *types.Chunk {
	if start < 1 || end < start || start > len(lines) {
		return nil
	}
	if end > len(lines) {
		end = len(lines)
	}

	content := strings.Join(lines[start-1:end], "\n")
	if strings.TrimSpace(content) == "" {
		return nil
	}

	chunk := &types.Chunk{
		FileID:        fileID,
		Content:       content,
		ContextBefore: heading,
		StartLine:     start,
		EndLine:       end,
		ChunkType:     types.ChunkMarkdownSection,
	}
	chunk.ComputeTokenCount()
	chunk.ComputeContentHash()
	return chunk
}

func findHeadings(lines []string) []markdownHeading {
	var headings []markdownHeading
	inFence := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		depth := 0
		for depth < len(line) && depth < 6 && line[depth] == '#' {
			depth++
		}
		if depth == 0 || depth >= len(line) || line[depth] != ' ' {
			continue
		}
		headings = append(headings, markdownHeading{
			depth: depth,
			line:  i + 1,
			text:  strings.TrimSpace(line[depth:]),
		})
	}
	return headings
}

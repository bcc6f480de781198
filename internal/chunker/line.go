package chunker

import (
	"fmt"
	"os"
	"strings"

	"github.com/codectx-dev/codectx/pkg/types"
)

// LineChunker is the fallback strategy for files with no structural or
// heading-based chunker: overlapping line windows that grow one line at a
// time until the next line would push the chars/4 estimate the rest of the
// package uses past MaxTokensPerChunk. A window always holds at least one
// line, so a single line longer than the budget becomes its own chunk.
type LineChunker struct {
	// WindowLines caps how many lines a window may span even while the
	// token estimate is under budget, so a file of many short lines still
	// yields windows of bounded line count.
	WindowLines int
	// OverlapLines repeats this many trailing lines from the prior window
	// at the head of the next one, so a boundary term isn't orphaned from
	// its surrounding context.
	OverlapLines int
}

// NewLineChunker builds a LineChunker with the package's default window and
// overlap sizes.
func NewLineChunker() *LineChunker {
	return &LineChunker{WindowLines: 120, OverlapLines: 10}
}

// ChunkFile splits filePath into sequential line windows.
func (c *LineChunker) ChunkFile(filePath string, fileID int64) ([]*types.Chunk, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	lines := strings.Split(string(content), "\n")
	if len(lines) == 0 {
		return nil, nil
	}

	windowLines := c.WindowLines
	if windowLines <= 0 {
		windowLines = 120
	}
	overlap := c.OverlapLines
	if overlap < 0 || overlap >= windowLines {
		overlap = 0
	}

	var chunks []*types.Chunk
	start := 0
	for start < len(lines) {
		end, chars := start, 0
		for end < len(lines) && end-start < windowLines {
			chars += len(lines[end]) + 1
			if end > start && chars/TokensPerChar > MaxTokensPerChunk {
				break
			}
			end++
		}

		content := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(content) != "" {
			chunk := &types.Chunk{
				FileID:    fileID,
				Content:   content,
				StartLine: start + 1,
				EndLine:   end,
				ChunkType: types.ChunkLineWindow,
			}
			chunk.ComputeTokenCount()
			chunk.ComputeContentHash()
			chunks = append(chunks, chunk)
		}

		if end >= len(lines) {
			break
		}
		start = max(end-overlap, start+1)
	}

	return chunks, nil
}

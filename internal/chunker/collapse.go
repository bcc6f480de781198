package chunker

import (
	"strings"

	"github.com/codectx-dev/codectx/pkg/types"
)

// collapseOversized replaces a symbol's nested block bodies with a "..."
// sentinel when its full content exceeds MaxTokensPerChunk, trying
// progressively shallower nesting depths until the collapsed form fits or
// every depth has been tried. A struct or interface with a huge doc comment
// but no nested braces collapses to nothing useful, so only function- and
// method-shaped chunks (and type declarations, which can carry brace-heavy
// embedded struct literals) are attempted; anything that still doesn't fit
// is left for SplitOversized's line-window fallback.
func collapseOversized(chunk *types.Chunk) *types.Chunk {
	if chunk.TokenCount <= MaxTokensPerChunk || !collapsible(chunk.ChunkType) {
		return chunk
	}

	lines := strings.Split(chunk.Content, "\n")
	depth := maxBraceDepth(lines)

	for d := depth - 1; d >= 0; d-- {
		collapsed := collapseAtDepth(lines, d)
		candidate := &types.Chunk{
			FileID:        chunk.FileID,
			SymbolID:      chunk.SymbolID,
			Content:       strings.Join(collapsed, "\n"),
			ContextBefore: chunk.ContextBefore,
			ContextAfter:  chunk.ContextAfter,
			StartLine:     chunk.StartLine,
			EndLine:       chunk.EndLine,
			ChunkType:     chunk.ChunkType,
		}
		candidate.ComputeTokenCount()
		if candidate.TokenCount <= MaxTokensPerChunk {
			candidate.ComputeContentHash()
			return candidate
		}
	}

	return chunk
}

func collapsible(t types.ChunkType) bool {
	switch t {
	case types.ChunkFunction, types.ChunkMethod, types.ChunkTypeDecl:
		return true
	default:
		return false
	}
}

// maxBraceDepth returns the deepest brace nesting reached across lines, the
// starting point collapseOversized works down from.
func maxBraceDepth(lines []string) int {
	depth, max := 0, 0
	for _, line := range lines {
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if depth > max {
			max = depth
		}
	}
	return max
}

// collapseAtDepth keeps every line whose brace depth is at or below
// maxDepth either before or after that line is applied, replacing each
// contiguous run of deeper lines with a single indented "..." sentinel. A
// maxDepth of 0 collapses a symbol down to just its signature and closing
// brace; the caller falls back to SplitOversized if that still doesn't fit.
func collapseAtDepth(lines []string, maxDepth int) []string {
	out := make([]string, 0, len(lines))
	depth := 0
	collapsing := false

	for _, line := range lines {
		before := depth
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		after := depth

		if before <= maxDepth || after <= maxDepth {
			collapsing = false
			out = append(out, line)
			continue
		}

		if !collapsing {
			out = append(out, leadingWhitespace(line)+"...")
			collapsing = true
		}
	}

	return out
}

func leadingWhitespace(s string) string {
	for i, r := range s {
		if r != ' ' && r != '\t' {
			return s[:i]
		}
	}
	return s
}

package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/codectx-dev/codectx/internal/walker"
)

// CacheKeyFromDisk is the default cacheKeyOf implementation passed to Plan:
// it hashes the file's current bytes on disk. Callers that already have the
// content in memory (e.g. the orchestrator batching reads with the walker)
// should supply their own function instead to avoid a second read.
func CacheKeyFromDisk(info walker.FileInfo) (string, error) {
	data, err := os.ReadFile(info.AbsPath)
	if err != nil {
		return "", fmt.Errorf("catalog: read %s: %w", info.AbsPath, err)
	}
	return CacheKey(data), nil
}

// CacheKey hashes raw content into the hex-encoded sha256 digest used as the
// cache key throughout the catalog and the Merkle tree.
func CacheKey(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

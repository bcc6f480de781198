// Package merkle builds and persists per-tag Merkle trees over a workspace's
// file contents and diffs them against a previous tree to produce the
// added/removed leaf sets a refresh needs to reconcile.
//
// The tree is a flat, path-sorted leaf list with a single inner hash layer:
// the invariant is that the root hash is a pure function of the set of
// (path, cacheKey) leaves, not of directory structure, so there is no need
// to mirror a full directory tree (see DESIGN.md for the rationale).
package merkle

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ErrMerkleIO is returned when the persisted tree cannot be read or written.
var ErrMerkleIO = errors.New("merkle: io error")

// Leaf is one (path, cacheKey) pair contributing to the tree.
type Leaf struct {
	Path     string `json:"path"`
	CacheKey string `json:"cacheKey"`
}

// Tree is a persisted snapshot of a workspace's content-addressed leaves.
type Tree struct {
	Root  string `json:"root"`
	Leaves []Leaf `json:"leaves"`
}

// Build assembles a Tree from a path->cacheKey mapping, sorting leaves
// lexicographically by path before hashing so the root hash is a pure
// function of the leaf set.
func Build(files map[string]string) *Tree {
	leaves := make([]Leaf, 0, len(files))
	for path, key := range files {
		leaves = append(leaves, Leaf{Path: path, CacheKey: key})
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Path < leaves[j].Path })

	h := sha256.New()
	h.Write([]byte("tree"))
	for _, leaf := range leaves {
		h.Write([]byte(leaf.Path))
		h.Write([]byte{0})
		h.Write([]byte(leaf.CacheKey))
		h.Write([]byte{0})
	}

	return &Tree{
		Root:   hex.EncodeToString(h.Sum(nil)),
		Leaves: leaves,
	}
}

// Persist writes the tree as JSONL (one leaf per line, root on the first
// line) to path, replacing any existing file atomically.
func Persist(path string, t *Tree) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrMerkleIO, err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMerkleIO, err)
	}

	enc := json.NewEncoder(f)
	writeErr := enc.Encode(struct {
		Root string `json:"root"`
	}{Root: t.Root})
	for i := 0; writeErr == nil && i < len(t.Leaves); i++ {
		writeErr = enc.Encode(t.Leaves[i])
	}

	if writeErr == nil {
		writeErr = f.Sync()
	}
	if cerr := f.Close(); writeErr == nil {
		writeErr = cerr
	}
	if writeErr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrMerkleIO, writeErr)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: %v", ErrMerkleIO, err)
	}
	return nil
}

// Load reads a persisted tree. A missing file is treated as an empty tree
// (all current leaves will diff as "added") rather than an error.
func Load(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Tree{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrMerkleIO, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var t Tree
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if first {
			first = false
			var root struct {
				Root string `json:"root"`
			}
			if err := json.Unmarshal(line, &root); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMerkleIO, err)
			}
			t.Root = root.Root
			continue
		}
		var leaf Leaf
		if err := json.Unmarshal(line, &leaf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMerkleIO, err)
		}
		t.Leaves = append(t.Leaves, leaf)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMerkleIO, err)
	}

	return &t, nil
}

// Diff compares previous against current and returns the leaves added and
// removed, tie-broken lexicographically by path. A leaf whose path is
// present in both but whose cacheKey changed is reported as both removed
// (old cacheKey) and added (new cacheKey) for that path.
func Diff(previous, current *Tree) (added, removed []Leaf) {
	prevByPath := indexByPath(previous)
	currByPath := indexByPath(current)

	paths := make(map[string]struct{}, len(prevByPath)+len(currByPath))
	for p := range prevByPath {
		paths[p] = struct{}{}
	}
	for p := range currByPath {
		paths[p] = struct{}{}
	}

	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	for _, path := range sorted {
		prevKey, inPrev := prevByPath[path]
		currKey, inCurr := currByPath[path]

		switch {
		case inPrev && !inCurr:
			removed = append(removed, Leaf{Path: path, CacheKey: prevKey})
		case !inPrev && inCurr:
			added = append(added, Leaf{Path: path, CacheKey: currKey})
		case inPrev && inCurr && prevKey != currKey:
			removed = append(removed, Leaf{Path: path, CacheKey: prevKey})
			added = append(added, Leaf{Path: path, CacheKey: currKey})
		}
	}

	return added, removed
}

func indexByPath(t *Tree) map[string]string {
	if t == nil {
		return nil
	}
	m := make(map[string]string, len(t.Leaves))
	for _, leaf := range t.Leaves {
		m[leaf.Path] = leaf.CacheKey
	}
	return m
}

// ApplyDiff reconstructs the current leaf set from a previous leaf set plus
// an added/removed diff, used by the round-trip property test.
func ApplyDiff(previous []Leaf, added, removed []Leaf) []Leaf {
	byPath := make(map[string]string, len(previous))
	for _, l := range previous {
		byPath[l.Path] = l.CacheKey
	}
	for _, l := range removed {
		if byPath[l.Path] == l.CacheKey {
			delete(byPath, l.Path)
		}
	}
	for _, l := range added {
		byPath[l.Path] = l.CacheKey
	}

	out := make([]Leaf, 0, len(byPath))
	for p, k := range byPath {
		out = append(out, Leaf{Path: p, CacheKey: k})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

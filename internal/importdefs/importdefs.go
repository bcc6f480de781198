// Package importdefs implements the import-definitions sidecar (C9): for
// the file currently open in a collaborating editor, it parses import
// statements, resolves each one to a definition location through an
// IDE-provided gotoDefinition callable, and caches the resolved set per
// file behind a fixed-capacity LRU. It mirrors the cache shape already used
// by internal/embedder.Cache and internal/searcher's query cache, applied
// to a new kind of value.
package importdefs

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is importDefinitions.cacheSize's default.
const DefaultCacheSize = 10

// Location identifies a position inside a source file, the unit the
// collaborator's gotoDefinition callable operates on.
type Location struct {
	Path       string
	Line       int
	Column     int
	ImportPath string // the unquoted import spec text at this position
}

// Definition is a resolved definition location plus the source range's
// content, ready to be surfaced as a retrieval snippet.
type Definition struct {
	ImportPath string // the import spec this definition resolves, e.g. "fmt"
	Path       string
	StartLine  int
	EndLine    int
	Content    string
}

// Resolver is the IDE/filesystem collaborator's gotoDefinition contract.
// A single import can resolve to more than one location (e.g. a
// dot-import or a package with multiple declaration sites the editor
// wants to surface), so it returns a sequence.
type Resolver interface {
	GotoDefinition(ctx context.Context, loc Location) ([]Definition, error)
}

// Service resolves and caches import definitions for the active file.
type Service struct {
	resolver Resolver
	cache    *lru.Cache[string, []Definition]
	fset     *token.FileSet

	mu       sync.Mutex // serializes resolves against concurrent pre-warm
	inFlight map[string]struct{}
}

// New creates a Service with the given resolver and cache capacity.
// cacheSize <= 0 falls back to DefaultCacheSize.
func New(resolver Resolver, cacheSize int) *Service {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, []Definition](cacheSize)
	if err != nil {
		cache, _ = lru.New[string, []Definition](DefaultCacheSize)
	}
	return &Service{
		resolver: resolver,
		cache:    cache,
		fset:     token.NewFileSet(),
		inFlight: make(map[string]struct{}),
	}
}

// Resolve returns the cached definitions for path if present, otherwise
// parses the file's imports, resolves each through the collaborator, caches
// the aggregate result under path, and returns it. Eviction is strict LRU.
func (s *Service) Resolve(ctx context.Context, path string) ([]Definition, error) {
	if defs, ok := s.cache.Get(path); ok {
		return defs, nil
	}
	return s.resolveAndCache(ctx, path)
}

// Invalidate drops path's cached entry, forcing the next Resolve to
// re-parse and re-resolve. Callers use this when the file's contents
// change under an open editor.
func (s *Service) Invalidate(path string) {
	s.cache.Remove(path)
}

// OnActiveFileChanged pre-warms the cache for the newly active file
// asynchronously. It does not block the caller and swallows resolution
// errors — a failed pre-warm just means the next synchronous Resolve call
// pays the cost itself.
func (s *Service) OnActiveFileChanged(ctx context.Context, path string) {
	if _, ok := s.cache.Get(path); ok {
		return
	}

	s.mu.Lock()
	if _, running := s.inFlight[path]; running {
		s.mu.Unlock()
		return
	}
	s.inFlight[path] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, path)
			s.mu.Unlock()
		}()
		_, _ = s.resolveAndCache(ctx, path)
	}()
}

func (s *Service) resolveAndCache(ctx context.Context, path string) ([]Definition, error) {
	locations, err := s.importLocations(path)
	if err != nil {
		return nil, fmt.Errorf("importdefs: parse %s: %w", path, err)
	}

	defs := make([]Definition, 0, len(locations))
	for _, loc := range locations {
		resolved, err := s.resolver.GotoDefinition(ctx, loc)
		if err != nil {
			// One import failing to resolve doesn't fail the whole file;
			// the caller still gets definitions for every import that did.
			continue
		}
		defs = append(defs, resolved...)
	}

	s.cache.Add(path, defs)
	return defs, nil
}

// importLocations parses path and returns one Location per import spec,
// pointing at its position in source so a gotoDefinition callable can jump
// straight to it.
func (s *Service) importLocations(path string) ([]Location, error) {
	file, err := parser.ParseFile(s.fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return nil, err
	}

	locations := make([]Location, 0, len(file.Imports))
	for _, imp := range file.Imports {
		pos := s.fset.Position(specPos(imp))
		importPath, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		locations = append(locations, Location{
			Path:       path,
			Line:       pos.Line,
			Column:     pos.Column,
			ImportPath: importPath,
		})
	}
	return locations, nil
}

func specPos(imp *ast.ImportSpec) token.Pos {
	if imp.Name != nil {
		return imp.Name.Pos()
	}
	return imp.Path.Pos()
}

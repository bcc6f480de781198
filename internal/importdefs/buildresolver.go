package importdefs

import (
	"context"
	"go/build"
	"os"
	"path/filepath"
)

// BuildResolver implements Resolver using go/build's import resolution: it
// locates the package directory backing an import path (stdlib, module
// cache, or a workspace-relative package) the same way `go doc` and
// gopls's fallback path do, and points the definition at that package's
// first Go source file. It is the default, dependency-free stand-in for a
// real IDE's gotoDefinition when no editor collaborator is wired in.
type BuildResolver struct {
	// SrcDir anchors relative import resolution (typically the workspace
	// root); build.Default.GOPATH/GOROOT cover the rest.
	SrcDir string
}

// NewBuildResolver returns a BuildResolver anchored at srcDir.
func NewBuildResolver(srcDir string) *BuildResolver {
	return &BuildResolver{SrcDir: srcDir}
}

// GotoDefinition resolves the import spec at loc to its package directory
// and returns a Definition pointing at the first .go file in it by name
// (test files and build constraints are not filtered out).
func (r *BuildResolver) GotoDefinition(ctx context.Context, loc Location) ([]Definition, error) {
	return r.ResolveImportPath(loc.ImportPath)
}

// ResolveImportPath resolves a single import path directly, bypassing
// source-position lookup — useful for callers (like the MCP tool) that
// already have the import string in hand.
func (r *BuildResolver) ResolveImportPath(importPath string) ([]Definition, error) {
	pkg, err := build.Default.Import(importPath, r.SrcDir, build.FindOnly)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(pkg.Dir)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".go" {
			continue
		}
		fullPath := filepath.Join(pkg.Dir, e.Name())
		content, err := os.ReadFile(fullPath)
		if err != nil {
			continue
		}
		lineCount := 1
		for _, b := range content {
			if b == '\n' {
				lineCount++
			}
		}
		return []Definition{{
			ImportPath: importPath,
			Path:       fullPath,
			StartLine:  1,
			EndLine:    lineCount,
			Content:    string(content),
		}}, nil
	}

	return nil, os.ErrNotExist
}

package chunker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/codectx-dev/codectx/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStructuralFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestStructuralChunker_UnrecognizedExtensionReturnsNil(t *testing.T) {
	path := writeStructuralFixture(t, "notes.txt", "just some text\n")
	chunks, err := NewStructuralChunker().ChunkFile(path, 1)
	require.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestStructuralChunker_SmallFileIsOneWholeChunk(t *testing.T) {
	path := writeStructuralFixture(t, "small.py", "def greet(name):\n    print(\"hi \" + name)\n")
	chunks, err := NewStructuralChunker().ChunkFile(path, 1)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, types.ChunkPackage, chunks[0].ChunkType)
}

func TestStructuralChunker_Python_SplitsClassAndDef(t *testing.T) {
	content := "class Greeter:\n" + padding() +
		"    def hello(self, name):\n" + padding() +
		"        return \"hi \" + name\n\n" +
		"def standalone():\n" + padding() +
		"    return 1\n"
	path := writeStructuralFixture(t, "greet.py", content)

	chunks, err := NewStructuralChunker().ChunkFile(path, 7)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var sawClass, sawFunc bool
	for _, c := range chunks {
		require.Equal(t, int64(7), c.FileID)
		require.LessOrEqual(t, c.StartLine, c.EndLine)
		switch c.ChunkType {
		case types.ChunkTypeDecl:
			sawClass = true
		case types.ChunkFunction:
			sawFunc = true
		}
	}
	assert.True(t, sawClass, "expected a class boundary chunk")
	assert.True(t, sawFunc, "expected a def boundary chunk")
}

func TestStructuralChunker_TypeScript_SplitsExportedFunctionAndClass(t *testing.T) {
	content := "export class Widget {\n" + padding() + "}\n\n" +
		"export function render(w) {\n" + padding() + "  return w;\n}\n"
	path := writeStructuralFixture(t, "widget.ts", content)

	chunks, err := NewStructuralChunker().ChunkFile(path, 3)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var kinds []types.ChunkType
	for _, c := range chunks {
		kinds = append(kinds, c.ChunkType)
	}
	assert.Contains(t, kinds, types.ChunkTypeDecl)
	assert.Contains(t, kinds, types.ChunkFunction)
}

func TestStructuralChunker_Java_SplitsClassAndMethod(t *testing.T) {
	content := "public class Server {\n" + padding() +
		"    public void start() {\n" + padding() + "    }\n" +
		"}\n"
	path := writeStructuralFixture(t, "Server.java", content)

	chunks, err := NewStructuralChunker().ChunkFile(path, 9)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var kinds []types.ChunkType
	for _, c := range chunks {
		kinds = append(kinds, c.ChunkType)
	}
	assert.Contains(t, kinds, types.ChunkTypeDecl)
	assert.Contains(t, kinds, types.ChunkMethod)
}

func TestStructuralChunker_CLike_NoBoundaryFallsBackToNil(t *testing.T) {
	// reBraceMethod/reBraceType both require a leading modifier keyword or
	// indentation before the return type, the same heuristic gap
	// symbols_java.go's reJavaMeth has; an unindented "int main()" with no
	// access modifier and no class/struct declaration matches neither, so a
	// large-enough file of these never turns up a boundary.
	content := "int main() {\n" + padding() + "  return 0;\n}\n"
	path := writeStructuralFixture(t, "empty_boundaries.h", content)

	chunks, err := NewStructuralChunker().ChunkFile(path, 4)
	require.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestDispatch_PythonFileUsesStructuralChunker(t *testing.T) {
	content := "class Greeter:\n" + padding() +
		"    def hello(self, name):\n" + padding() +
		"        return \"hi \" + name\n"
	path := writeStructuralFixture(t, "greet.py", content)

	chunks, err := Dispatch(path, 5)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.NotEqual(t, types.ChunkLineWindow, c.ChunkType, "a recognized structural language should not fall back to line windows when boundaries exist")
	}
}

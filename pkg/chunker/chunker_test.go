package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextforge/contextforge/pkg/log"
	"github.com/contextforge/contextforge/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

const goSample = `package sample

import (
	"fmt"
	"strings"
)

func Greet(name string) string {
	return fmt.Sprintf("Hello, %s", name)
}

type Widget struct {
	Label string
}

func (w *Widget) Render() string {
	return strings.ToUpper(w.Label)
}
`

const pySample = `"""Module docstring."""

import os
from pathlib import Path


def top_level(x):
    return x * 2


class Shape:
    def area(self):
        return 0

    def name(self):
        return "shape"
`

// assertRoundTrip checks that every chunk's content equals the source
// slice implied by its line range.
func assertRoundTrip(t *testing.T, content string, chunks []types.CodeChunk) {
	t.Helper()
	lines := strings.Split(content, "\n")
	for _, c := range chunks {
		require.GreaterOrEqual(t, c.StartLine, 1, "chunk %s", c.Name)
		require.LessOrEqual(t, c.StartLine, c.EndLine, "chunk %s", c.Name)
		expected := strings.Join(lines[c.StartLine-1:c.EndLine], "\n")
		assert.Equal(t, expected, c.Content, "chunk %s", c.Name)
	}
}

func chunkNames(chunks []types.CodeChunk, typ types.ChunkType) []string {
	var names []string
	for _, c := range chunks {
		if c.Type == typ {
			names = append(names, c.Name)
		}
	}
	return names
}

func TestRegexGo(t *testing.T) {
	c := New(ModeRegex, 0)
	chunks := c.ChunkContent(goSample, "go")

	assert.Equal(t, []string{"Greet"}, chunkNames(chunks, types.ChunkFunction))
	assert.Equal(t, []string{"Render"}, chunkNames(chunks, types.ChunkMethod))
	assert.Equal(t, []string{"Widget"}, chunkNames(chunks, types.ChunkClass))
	assert.Len(t, chunkNames(chunks, types.ChunkImport), 1)
	assertRoundTrip(t, goSample, chunks)
}

func TestRegexPython(t *testing.T) {
	c := New(ModeRegex, 0)
	chunks := c.ChunkContent(pySample, "python")

	assert.Equal(t, []string{"top_level"}, chunkNames(chunks, types.ChunkFunction))
	assert.ElementsMatch(t, []string{"area", "name"}, chunkNames(chunks, types.ChunkMethod))
	assert.Equal(t, []string{"Shape"}, chunkNames(chunks, types.ChunkClass))
	assert.Len(t, chunkNames(chunks, types.ChunkDocstring), 1)
	assert.Len(t, chunkNames(chunks, types.ChunkImport), 1)
	assertRoundTrip(t, pySample, chunks)
}

func TestRegexJavaScript(t *testing.T) {
	src := `import { api } from "./api";

function fetchAll() {
  return api.get("/all");
}

const handler = (req) => {
  return fetchAll();
}

class Controller {
  run() {
    return handler(null);
  }
}
`
	c := New(ModeRegex, 0)
	chunks := c.ChunkContent(src, "javascript")

	assert.ElementsMatch(t, []string{"fetchAll", "handler"}, chunkNames(chunks, types.ChunkFunction))
	assert.Equal(t, []string{"Controller"}, chunkNames(chunks, types.ChunkClass))
	assertRoundTrip(t, src, chunks)
}

func TestMarkdownHeadings(t *testing.T) {
	src := "# Title\n\nintro text\n\n## Usage\n\n```go\nfunc main() {}\n```\n\n## Notes\n\nend\n"
	c := New(ModeRegex, 0)
	chunks := c.ChunkContent(src, "markdown")

	require.Len(t, chunks, 3)
	assert.Equal(t, "Title", chunks[0].Name)
	assert.Equal(t, "Usage", chunks[1].Name)
	assert.Equal(t, "Notes", chunks[2].Name)
	assert.Equal(t, "go", chunks[1].Metadata["code_languages"])
	assertRoundTrip(t, src, chunks)
}

func TestTreeSitterGo(t *testing.T) {
	c := New(ModeTreeSitter, 0)
	chunks := c.ChunkContent(goSample, "go")

	assert.Contains(t, chunkNames(chunks, types.ChunkFunction), "Greet")
	assert.Contains(t, chunkNames(chunks, types.ChunkMethod), "Render")
	assert.Contains(t, chunkNames(chunks, types.ChunkClass), "Widget")
	assertRoundTrip(t, goSample, chunks)
}

func TestTreeSitterFallbackOnError(t *testing.T) {
	// Unbalanced braces force the AST path to fall back to regex.
	src := "func Broken( {\n"
	c := New(ModeTreeSitter, 0)
	chunks := c.ChunkContent(src, "go")
	assertRoundTrip(t, src, chunks)
}

func TestOversizeSplit(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("func big() {\n")
	for i := 0; i < 50; i++ {
		sb.WriteString("\tcall_number_with_a_rather_long_name()\n")
	}
	sb.WriteString("}\n")
	src := sb.String()

	c := New(ModeRegex, 200)
	chunks := c.ChunkContent(src, "go")

	require.Greater(t, len(chunks), 1)
	prevEnd := 0
	for i, chunk := range chunks {
		assert.Contains(t, chunk.Name, "_part")
		assert.LessOrEqual(t, len(chunk.Content), 200+len("\tcall_number_with_a_rather_long_name()"))
		if i > 0 {
			assert.Equal(t, prevEnd+1, chunk.StartLine, "ranges must be contiguous")
		}
		prevEnd = chunk.EndLine
	}
	assertRoundTrip(t, src, chunks)
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"main.go", "go"},
		{"script.py", "python"},
		{"app.jsx", "javascript"},
		{"types.d.ts", "typescript"},
		{"README.md", "markdown"},
		{"Main.java", ""},
		{"lib.rs", ""},
		{"build.sh", ""},
		{"binary.exe", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, DetectLanguage(tt.path, nil), tt.path)
	}
}

func TestUnsupportedLanguage(t *testing.T) {
	c := New(ModeAuto, 0)
	assert.Nil(t, c.ChunkContent("some content", "cobol"))
}

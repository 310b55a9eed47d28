package viewer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextforge/contextforge/pkg/types"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestViewFileLineNumbers(t *testing.T) {
	path := writeTemp(t, "a.txt", "first\nsecond\nthird\n")

	v := New(0, 0)
	view, err := v.ViewFile(path, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, view.TotalLines)
	assert.False(t, view.IsTruncated)
	lines := strings.Split(strings.TrimSuffix(view.Content, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "     1\tfirst", lines[0])
	assert.Equal(t, "     2\tsecond", lines[1])
	assert.Equal(t, "     3\tthird", lines[2])
}

func TestViewFileRange(t *testing.T) {
	path := writeTemp(t, "a.txt", "one\ntwo\nthree\nfour\n")

	v := New(0, 0)
	view, err := v.ViewFile(path, Options{StartLine: 2, EndLine: 3})
	require.NoError(t, err)

	assert.Contains(t, view.Content, "     2\ttwo")
	assert.Contains(t, view.Content, "     3\tthree")
	assert.NotContains(t, view.Content, "one")
	assert.NotContains(t, view.Content, "four")
}

func TestViewFileInvalidRange(t *testing.T) {
	path := writeTemp(t, "a.txt", "one\ntwo\n")

	v := New(0, 0)
	_, err := v.ViewFile(path, Options{StartLine: 5, EndLine: 6})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestViewFileClipsOutput(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 50; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	path := writeTemp(t, "big.txt", b.String())

	v := New(0, 10)
	view, err := v.ViewFile(path, Options{})
	require.NoError(t, err)

	assert.True(t, view.IsTruncated)
	assert.Contains(t, view.Content, "response clipped")
	assert.Contains(t, view.Content, "    10\tline 10")
	assert.NotContains(t, view.Content, "line 11")
}

func TestViewFileSizeLimit(t *testing.T) {
	path := writeTemp(t, "big.txt", strings.Repeat("x", 128))

	v := New(64, 0)
	_, err := v.ViewFile(path, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestViewFileMissing(t *testing.T) {
	v := New(0, 0)
	_, err := v.ViewFile(filepath.Join(t.TempDir(), "nope.txt"), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestViewFileSearchWindows(t *testing.T) {
	content := strings.Join([]string{
		"def a():",
		"    pass",
		"",
		"",
		"def b():",
		"    pass",
		"",
		"",
		"def c():",
		"    pass",
		"# end",
	}, "\n") + "\n"
	path := writeTemp(t, "sample.py", content)

	v := New(0, 0)
	view, err := v.ViewFile(path, Options{
		SearchQueryRegex:   `def [a-z]+\(`,
		CaseSensitive:      true,
		ContextLinesBefore: 2,
		ContextLinesAfter:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, view.Matches)

	var nums []string
	for _, line := range strings.Split(strings.TrimSuffix(view.Content, "\n"), "\n") {
		line = strings.TrimPrefix(line, "> ")
		if line == "..." {
			nums = append(nums, "...")
			continue
		}
		nums = append(nums, strings.TrimSpace(strings.SplitN(line, "\t", 2)[0]))
	}
	assert.Equal(t, []string{
		"1", "2", "3",
		"...",
		"3", "4", "5", "6", "7",
		"...",
		"7", "8", "9", "10", "11",
	}, nums)

	// Matching lines carry the marker.
	assert.Contains(t, view.Content, "> "+fmt.Sprintf("%6d\tdef a():", 1))
	assert.Contains(t, view.Content, "> "+fmt.Sprintf("%6d\tdef b():", 5))
	assert.Contains(t, view.Content, "> "+fmt.Sprintf("%6d\tdef c():", 9))
}

func TestViewFileSearchCaseInsensitive(t *testing.T) {
	path := writeTemp(t, "a.txt", "Hello\nworld\nHELLO\n")

	v := New(0, 0)
	view, err := v.ViewFile(path, Options{SearchQueryRegex: "hello"})
	require.NoError(t, err)
	assert.Equal(t, 2, view.Matches)

	view, err = v.ViewFile(path, Options{SearchQueryRegex: "hello", CaseSensitive: true})
	require.NoError(t, err)
	assert.Equal(t, 0, view.Matches)
	assert.Empty(t, view.Content)
}

func TestViewFileSearchBadRegex(t *testing.T) {
	path := writeTemp(t, "a.txt", "x\n")

	v := New(0, 0)
	_, err := v.ViewFile(path, Options{SearchQueryRegex: "["})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrRegex))
}

func TestViewDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", "deep", "deeper"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "x"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "lib.go"), []byte("package pkg\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "deep", "deep.go"), []byte("x"), 0644))

	v := New(0, 0)
	view, err := v.ViewDirectory(root)
	require.NoError(t, err)

	assert.Contains(t, view.Content, "pkg/")
	assert.Contains(t, view.Content, "main.go")
	assert.Contains(t, view.Content, "lib.go")
	assert.NotContains(t, view.Content, "node_modules")
	assert.NotContains(t, view.Content, ".hidden")
	assert.NotContains(t, view.Content, ".git")
	// Two levels only.
	assert.Contains(t, view.Content, "deep/")
	assert.NotContains(t, view.Content, "deep.go")

	require.NotEmpty(t, view.Entries)
	assert.True(t, view.Entries[0].IsDir, "directories sort first")
}

func TestViewDirectoryNotADirectory(t *testing.T) {
	path := writeTemp(t, "a.txt", "x")

	v := New(0, 0)
	_, err := v.ViewDirectory(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestViewDirectoryHumanSizes(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.bin"), make([]byte, 2048), 0644))

	v := New(0, 0)
	view, err := v.ViewDirectory(root)
	require.NoError(t, err)
	require.Len(t, view.Entries, 1)
	assert.Equal(t, int64(2048), view.Entries[0].Size)
	assert.NotEmpty(t, view.Entries[0].SizeHuman)
	assert.Contains(t, view.Content, view.Entries[0].SizeHuman)
}

package editor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextforge/contextforge/pkg/types"
)

func newTestEditor(t *testing.T) (*Editor, string) {
	t.Helper()
	root := t.TempDir()
	ed, err := New(root, 7*24*time.Hour)
	require.NoError(t, err)
	return ed, root
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	abs := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0644))
	return abs
}

func TestStrReplaceSingleMatch(t *testing.T) {
	ed, root := newTestEditor(t)
	abs := writeFile(t, root, "main.py", "x = 1\nprint(x)\n")

	result, err := ed.StrReplace("main.py", []Replacement{
		{OldStr: "print(x)", NewStr: "print(x + 1)"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Greater(t, result.CharsAdded, 0)

	content, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "x = 1\nprint(x + 1)\n", string(content))
}

func TestStrReplaceAmbiguousThenRanged(t *testing.T) {
	ed, root := newTestEditor(t)
	content := strings.Join([]string{
		"def a():",
		`    print("Hello, World!")`,
		"",
		"",
		"",
		"def b():",
		`    print("Hello, World!")`,
		"",
	}, "\n")
	abs := writeFile(t, root, "hello.py", content)

	result, err := ed.StrReplace("hello.py", []Replacement{
		{OldStr: `print("Hello, World!")`, NewStr: `print("Goodbye")`},
	}, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConflict))
	assert.Equal(t, []int{2, 7}, result.MatchedLines)

	// File must be untouched after the ambiguous attempt.
	unchanged, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, content, string(unchanged))

	result, err = ed.StrReplace("hello.py", []Replacement{
		{OldStr: `print("Hello, World!")`, NewStr: `print("Goodbye")`, StartLine: 2, EndLine: 2},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)

	updated, err := os.ReadFile(abs)
	require.NoError(t, err)
	lines := strings.Split(string(updated), "\n")
	assert.Equal(t, `    print("Goodbye")`, lines[1])
	assert.Equal(t, `    print("Hello, World!")`, lines[6])
}

func TestStrReplaceNoMatch(t *testing.T) {
	ed, root := newTestEditor(t)
	writeFile(t, root, "a.txt", "hello\n")

	_, err := ed.StrReplace("a.txt", []Replacement{
		{OldStr: "absent", NewStr: "x"},
	}, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNoMatch))
}

func TestStrReplaceRangeNoMatch(t *testing.T) {
	ed, root := newTestEditor(t)
	writeFile(t, root, "a.txt", "one\ntwo\nthree\n")

	_, err := ed.StrReplace("a.txt", []Replacement{
		{OldStr: "three", NewStr: "3", StartLine: 1, EndLine: 2},
	}, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNoMatch))
}

func TestStrReplaceSequentialAbort(t *testing.T) {
	ed, root := newTestEditor(t)
	abs := writeFile(t, root, "a.txt", "alpha\nbeta\n")

	result, err := ed.StrReplace("a.txt", []Replacement{
		{OldStr: "alpha", NewStr: "ALPHA"},
		{OldStr: "gamma", NewStr: "GAMMA"},
	}, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNoMatch))
	assert.Equal(t, 1, result.Applied)
	assert.NotEmpty(t, result.BackupPath)

	// The first replacement persisted and the backup holds the original.
	content, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "ALPHA\nbeta\n", string(content))

	backup, err := os.ReadFile(result.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, "alpha\nbeta\n", string(backup))
}

func TestStrReplaceBackup(t *testing.T) {
	ed, root := newTestEditor(t)
	writeFile(t, root, "a.txt", "before\n")

	result, err := ed.StrReplace("a.txt", []Replacement{
		{OldStr: "before", NewStr: "after"},
	}, true)
	require.NoError(t, err)
	require.NotEmpty(t, result.BackupPath)
	assert.True(t, strings.HasSuffix(result.BackupPath, ".bak"))

	backup, err := os.ReadFile(result.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, "before\n", string(backup))

	assert.Contains(t, result.BackupPath, filepath.Join(root, backupDir))
}

func TestResolveRejectsEscape(t *testing.T) {
	ed, _ := newTestEditor(t)

	_, err := ed.StrReplace("../outside.txt", []Replacement{{OldStr: "a", NewStr: "b"}}, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestSaveFile(t *testing.T) {
	ed, root := newTestEditor(t)

	result, err := ed.SaveFile("sub/dir/new.txt", "content", SaveOptions{CreateParents: true, EnsureNewline: true})
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, len("content\n"), result.BytesSaved)

	content, err := os.ReadFile(filepath.Join(root, "sub/dir/new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "content\n", string(content))
}

func TestSaveFileExistingWithoutOverwrite(t *testing.T) {
	ed, root := newTestEditor(t)
	writeFile(t, root, "a.txt", "old")

	_, err := ed.SaveFile("a.txt", "new", SaveOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestSaveFileOverwriteBacksUp(t *testing.T) {
	ed, root := newTestEditor(t)
	writeFile(t, root, "a.txt", "old")

	result, err := ed.SaveFile("a.txt", "new", SaveOptions{Overwrite: true})
	require.NoError(t, err)
	assert.False(t, result.Created)
	require.NotEmpty(t, result.BackupPath)

	backup, err := os.ReadFile(result.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, "old", string(backup))

	content, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(content))
}

func TestRemoveFiles(t *testing.T) {
	ed, root := newTestEditor(t)
	writeFile(t, root, "keep.txt", "keep")
	writeFile(t, root, "gone.txt", "gone")

	outcomes := ed.RemoveFiles([]string{"gone.txt"}, RemoveOptions{})
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Removed)
	assert.Empty(t, outcomes[0].Error)

	_, err := os.Stat(filepath.Join(root, "gone.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "keep.txt"))
	assert.NoError(t, err)
}

func TestRemoveFilesProtected(t *testing.T) {
	ed, root := newTestEditor(t)
	writeFile(t, root, ".env", "SECRET=1")
	writeFile(t, root, "node_modules/pkg/index.js", "x")

	outcomes := ed.RemoveFiles([]string{".env", "node_modules/pkg/index.js"}, RemoveOptions{})
	require.Len(t, outcomes, 2)
	for _, out := range outcomes {
		assert.False(t, out.Removed)
		assert.Contains(t, out.Error, "protected")
	}

	// force overrides the protection.
	outcomes = ed.RemoveFiles([]string{".env"}, RemoveOptions{Force: true})
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Removed)
}

func TestRemoveFilesDirectory(t *testing.T) {
	ed, root := newTestEditor(t)
	writeFile(t, root, "dir/inner.txt", "x")

	outcomes := ed.RemoveFiles([]string{"dir"}, RemoveOptions{})
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Removed)
	assert.Contains(t, outcomes[0].Error, "directory")

	outcomes = ed.RemoveFiles([]string{"dir"}, RemoveOptions{AllowDirectories: true})
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Removed)
	_, err := os.Stat(filepath.Join(root, "dir"))
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveFilesDryRun(t *testing.T) {
	ed, root := newTestEditor(t)
	abs := writeFile(t, root, "a.txt", "x")

	outcomes := ed.RemoveFiles([]string{"a.txt", "missing.txt"}, RemoveOptions{DryRun: true})
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].WouldRemove)
	assert.False(t, outcomes[0].Removed)
	assert.NotEmpty(t, outcomes[1].Error)

	_, err := os.Stat(abs)
	assert.NoError(t, err)
}

func TestRemoveFilesWithBackup(t *testing.T) {
	ed, root := newTestEditor(t)
	writeFile(t, root, "a.txt", "precious")

	outcomes := ed.RemoveFiles([]string{"a.txt"}, RemoveOptions{WithBackup: true})
	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].Removed)
	require.NotEmpty(t, outcomes[0].BackupPath)

	backup, err := os.ReadFile(outcomes[0].BackupPath)
	require.NoError(t, err)
	assert.Equal(t, "precious", string(backup))
}

func TestBackupRetentionPurge(t *testing.T) {
	ed, root := newTestEditor(t)
	dir := filepath.Join(root, backupDir)
	require.NoError(t, os.MkdirAll(dir, 0755))

	stale := filepath.Join(dir, "old.txt.20200101_000000.deadbeef.bak")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0644))
	past := time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	writeFile(t, root, "a.txt", "x")
	_, err := ed.StrReplace("a.txt", []Replacement{{OldStr: "x", NewStr: "y"}}, true)
	require.NoError(t, err)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

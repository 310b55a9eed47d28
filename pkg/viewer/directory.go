package viewer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/contextforge/contextforge/pkg/types"
)

// ignoredDirs are skipped by ViewDirectory. The set mirrors the editor's
// protected patterns so listings and deletions agree on what is noise.
var ignoredDirs = map[string]bool{
	".git":          true,
	"node_modules":  true,
	"__pycache__":   true,
	".venv":         true,
	"venv":          true,
	".contextforge": true,
}

// DirEntry is one row of a directory listing.
type DirEntry struct {
	Name      string     `json:"name"`
	IsDir     bool       `json:"is_dir"`
	Size      int64      `json:"size,omitempty"`
	SizeHuman string     `json:"size_human,omitempty"`
	Children  []DirEntry `json:"children,omitempty"`
}

// DirectoryView is a rendered two-level listing.
type DirectoryView struct {
	Path    string     `json:"path"`
	Entries []DirEntry `json:"entries"`
	Content string     `json:"content"`
}

// ViewDirectory lists path two levels deep, skipping hidden entries and
// the shared ignore set, with human-readable sizes.
func (v *Viewer) ViewDirectory(path string) (*DirectoryView, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, path)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", types.ErrValidation, path)
	}

	entries, err := listLevel(path, 2)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	renderEntries(&b, entries, 0)

	return &DirectoryView{Path: path, Entries: entries, Content: b.String()}, nil
}

func listLevel(dir string, depth int) ([]DirEntry, error) {
	raw, err := os.ReadDir(dir)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrPermission, dir)
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var out []DirEntry
	for _, e := range raw {
		name := e.Name()
		if strings.HasPrefix(name, ".") || ignoredDirs[name] {
			continue
		}
		entry := DirEntry{Name: name, IsDir: e.IsDir()}
		if e.IsDir() {
			if depth > 1 {
				children, err := listLevel(filepath.Join(dir, name), depth-1)
				if err == nil {
					entry.Children = children
				}
			}
		} else {
			if info, err := e.Info(); err == nil {
				entry.Size = info.Size()
				entry.SizeHuman = humanize.Bytes(uint64(info.Size()))
			}
		}
		out = append(out, entry)
	}

	// Directories first, then files, alphabetical within each group.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsDir != out[j].IsDir {
			return out[i].IsDir
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func renderEntries(b *strings.Builder, entries []DirEntry, indent int) {
	prefix := strings.Repeat("  ", indent)
	for _, e := range entries {
		if e.IsDir {
			fmt.Fprintf(b, "%s%s/\n", prefix, e.Name)
			renderEntries(b, e.Children, indent+1)
		} else {
			fmt.Fprintf(b, "%s%s (%s)\n", prefix, e.Name, e.SizeHuman)
		}
	}
}

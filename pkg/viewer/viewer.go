package viewer

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/contextforge/contextforge/pkg/log"
	"github.com/contextforge/contextforge/pkg/types"
)

const (
	// DefaultMaxFileSize is the largest file ViewFile will render.
	DefaultMaxFileSize = 10 * 1024 * 1024
	// DefaultMaxOutputLines bounds rendered output before clipping.
	DefaultMaxOutputLines = 1000

	clippedMarker = "... response clipped ..."
)

// Options selects what part of a file to render.
type Options struct {
	// StartLine and EndLine (1-based, inclusive) extract a range. Zero
	// values render the whole file.
	StartLine int `json:"start_line,omitempty"`
	EndLine   int `json:"end_line,omitempty"`

	SearchQueryRegex   string `json:"search_query_regex,omitempty"`
	CaseSensitive      bool   `json:"case_sensitive,omitempty"`
	ContextLinesBefore int    `json:"context_lines_before,omitempty"`
	ContextLinesAfter  int    `json:"context_lines_after,omitempty"`
}

// FileView is the rendered result of ViewFile.
type FileView struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	TotalLines  int    `json:"total_lines"`
	Matches     int    `json:"matches,omitempty"`
	IsTruncated bool   `json:"is_truncated"`
}

// Viewer renders files with line numbers and searches them with context.
type Viewer struct {
	maxFileSize    int64
	maxOutputLines int
	logger         zerolog.Logger
}

// New creates a Viewer. Non-positive limits fall back to the defaults.
func New(maxFileSize int64, maxOutputLines int) *Viewer {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if maxOutputLines <= 0 {
		maxOutputLines = DefaultMaxOutputLines
	}
	return &Viewer{
		maxFileSize:    maxFileSize,
		maxOutputLines: maxOutputLines,
		logger:         log.WithComponent("viewer"),
	}
}

// ViewFile renders path with right-aligned 6-digit line numbers. A regex
// query switches to search rendering; a line range extracts a slice.
func (v *Viewer) ViewFile(path string, opts Options) (*FileView, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, path)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", types.ErrValidation, path)
	}
	if info.Size() > v.maxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", types.ErrValidation, path, info.Size(), v.maxFileSize)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrPermission, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
	view := &FileView{Path: path, TotalLines: len(lines)}

	if opts.SearchQueryRegex != "" {
		return v.renderSearch(view, lines, opts)
	}

	start, end := 1, len(lines)
	if opts.StartLine > 0 {
		start = opts.StartLine
	}
	if opts.EndLine > 0 && opts.EndLine < end {
		end = opts.EndLine
	}
	if start > end || start > len(lines) {
		return nil, fmt.Errorf("%w: invalid line range %d-%d for %d lines", types.ErrValidation, opts.StartLine, opts.EndLine, len(lines))
	}

	var b strings.Builder
	rendered := 0
	for i := start; i <= end; i++ {
		if rendered >= v.maxOutputLines {
			b.WriteString(clippedMarker + "\n")
			view.IsTruncated = true
			break
		}
		writeNumbered(&b, i, lines[i-1], false)
		rendered++
	}
	view.Content = b.String()
	return view, nil
}

// renderSearch renders one context window per matching line, windows
// separated by an ellipsis row.
func (v *Viewer) renderSearch(view *FileView, lines []string, opts Options) (*FileView, error) {
	pattern := opts.SearchQueryRegex
	if !opts.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrRegex, err)
	}

	var matches []int
	for i, line := range lines {
		if re.MatchString(line) {
			matches = append(matches, i+1)
		}
	}
	view.Matches = len(matches)
	if len(matches) == 0 {
		view.Content = ""
		return view, nil
	}

	var b strings.Builder
	rendered := 0
	for wi, m := range matches {
		if wi > 0 {
			b.WriteString("...\n")
		}
		start := m - opts.ContextLinesBefore
		if start < 1 {
			start = 1
		}
		end := m + opts.ContextLinesAfter
		if end > len(lines) {
			end = len(lines)
		}
		for i := start; i <= end; i++ {
			if rendered >= v.maxOutputLines {
				b.WriteString(clippedMarker + "\n")
				view.IsTruncated = true
				view.Content = b.String()
				return view, nil
			}
			writeNumbered(&b, i, lines[i-1], i == m)
			rendered++
		}
	}
	view.Content = b.String()
	return view, nil
}

// writeNumbered writes one rendered line. Matching lines in search mode
// get a "> " marker ahead of the line number.
func writeNumbered(b *strings.Builder, n int, line string, matched bool) {
	if matched {
		b.WriteString("> ")
	}
	fmt.Fprintf(b, "%6d\t%s\n", n, line)
}

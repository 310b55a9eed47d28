package editor

import (
	"fmt"
	"os"
	"strings"

	diffmatchpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/contextforge/contextforge/pkg/types"
)

// Replacement is one exact-match string substitution. StartLine/EndLine
// (1-based, inclusive) restrict the search window when both are set.
type Replacement struct {
	OldStr    string `json:"old_str"`
	NewStr    string `json:"new_str"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
}

// ReplaceResult reports the outcome of StrReplace.
type ReplaceResult struct {
	Applied      int    `json:"applied"`
	BackupPath   string `json:"backup_path,omitempty"`
	CharsAdded   int    `json:"chars_added"`
	CharsRemoved int    `json:"chars_removed"`
	// MatchedLines carries the 1-based line numbers of each occurrence
	// when a replacement is ambiguous.
	MatchedLines []int `json:"matched_lines,omitempty"`
}

// StrReplace applies replacements sequentially to the file at path. An
// ambiguous match (multiple occurrences and no line range) aborts with a
// conflict carrying the matched line numbers; earlier replacements stay
// applied and the backup is the recovery path.
func (e *Editor) StrReplace(path string, replacements []Replacement, withBackup bool) (*ReplaceResult, error) {
	abs, err := e.resolve(path)
	if err != nil {
		return nil, err
	}
	original, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, path)
	}

	result := &ReplaceResult{}
	if withBackup {
		backupPath, err := e.backup(abs, original)
		if err != nil {
			return nil, err
		}
		result.BackupPath = backupPath
	}

	buffer := string(original)
	for i, rep := range replacements {
		updated, matched, err := applyOne(buffer, rep)
		if err != nil {
			result.MatchedLines = matched
			// Persist whatever was already applied before reporting.
			if result.Applied > 0 {
				if werr := os.WriteFile(abs, []byte(buffer), 0644); werr != nil {
					return result, fmt.Errorf("failed to write partial result: %w", werr)
				}
			}
			return result, fmt.Errorf("replacement %d: %w", i+1, err)
		}
		buffer = updated
		result.Applied++
	}

	if err := os.WriteFile(abs, []byte(buffer), 0644); err != nil {
		return result, fmt.Errorf("failed to write %s: %w", path, err)
	}

	for _, d := range e.differ.DiffMain(string(original), buffer, false) {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			result.CharsAdded += len(d.Text)
		case diffmatchpatch.DiffDelete:
			result.CharsRemoved += len(d.Text)
		}
	}

	e.logger.Debug().
		Str("path", path).
		Int("applied", result.Applied).
		Msg("str_replace applied")
	return result, nil
}

// applyOne performs a single replacement against buffer, returning the
// updated buffer or the matched line numbers on ambiguity.
func applyOne(buffer string, rep Replacement) (string, []int, error) {
	if rep.OldStr == "" {
		return "", nil, fmt.Errorf("%w: old_str must not be empty", types.ErrValidation)
	}

	if rep.StartLine > 0 && rep.EndLine >= rep.StartLine {
		lines := strings.Split(buffer, "\n")
		if rep.StartLine > len(lines) {
			return "", nil, fmt.Errorf("%w: start_line %d beyond end of file", types.ErrValidation, rep.StartLine)
		}
		end := rep.EndLine
		if end > len(lines) {
			end = len(lines)
		}
		window := strings.Join(lines[rep.StartLine-1:end], "\n")
		if !strings.Contains(window, rep.OldStr) {
			return "", nil, fmt.Errorf("%w: old_str not found in lines %d-%d", types.ErrNoMatch, rep.StartLine, rep.EndLine)
		}
		replaced := strings.Replace(window, rep.OldStr, rep.NewStr, 1)
		lines = append(lines[:rep.StartLine-1], append(strings.Split(replaced, "\n"), lines[end:]...)...)
		return strings.Join(lines, "\n"), nil, nil
	}

	count := strings.Count(buffer, rep.OldStr)
	switch {
	case count == 0:
		return "", nil, fmt.Errorf("%w: old_str not found", types.ErrNoMatch)
	case count > 1:
		return "", matchLineNumbers(buffer, rep.OldStr),
			fmt.Errorf("%w: old_str occurs %d times; disambiguate with start_line/end_line", types.ErrConflict, count)
	}
	return strings.Replace(buffer, rep.OldStr, rep.NewStr, 1), nil, nil
}

// matchLineNumbers returns the 1-based line number of each occurrence.
func matchLineNumbers(buffer, needle string) []int {
	var out []int
	offset := 0
	for {
		idx := strings.Index(buffer[offset:], needle)
		if idx < 0 {
			break
		}
		at := offset + idx
		out = append(out, 1+strings.Count(buffer[:at], "\n"))
		offset = at + len(needle)
	}
	return out
}

package gitquery

import (
	"context"
	"strconv"
	"strings"
)

// FileChange is one file's contribution to a diff.
type FileChange struct {
	Path       string `json:"path"`
	Insertions int    `json:"insertions"`
	Deletions  int    `json:"deletions"`
}

// DiffResult is a structured diff between two refs.
type DiffResult struct {
	FromRef    string       `json:"from_ref"`
	ToRef      string       `json:"to_ref"`
	Raw        string       `json:"raw"`
	Files      []FileChange `json:"files"`
	Insertions int          `json:"insertions"`
	Deletions  int          `json:"deletions"`
}

// Diff compares two refs, optionally restricted to one file.
func (c *Client) Diff(ctx context.Context, repoPath, fromRef, toRef, file string) (*DiffResult, error) {
	if err := c.checkRepository(ctx, repoPath); err != nil {
		return nil, err
	}

	rawArgs := []string{"diff", fromRef, toRef}
	statArgs := []string{"diff", "--numstat", fromRef, toRef}
	if file != "" {
		rawArgs = append(rawArgs, "--", file)
		statArgs = append(statArgs, "--", file)
	}

	raw, err := c.run(ctx, repoPath, rawArgs...)
	if err != nil {
		return nil, err
	}
	stats, err := c.run(ctx, repoPath, statArgs...)
	if err != nil {
		return nil, err
	}

	result := &DiffResult{FromRef: fromRef, ToRef: toRef, Raw: raw}
	for _, line := range strings.Split(stats, "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), "\t", 3)
		if len(parts) != 3 {
			continue
		}
		change := FileChange{Path: parts[2]}
		if add, err := strconv.Atoi(parts[0]); err == nil {
			change.Insertions = add
		}
		if del, err := strconv.Atoi(parts[1]); err == nil {
			change.Deletions = del
		}
		result.Files = append(result.Files, change)
		result.Insertions += change.Insertions
		result.Deletions += change.Deletions
	}
	return result, nil
}

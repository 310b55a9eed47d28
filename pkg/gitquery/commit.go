package gitquery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/contextforge/contextforge/pkg/types"
)

// GetCommit fetches one commit's structured info by hash or ref.
func (c *Client) GetCommit(ctx context.Context, repoPath, hash string) (*Commit, error) {
	if err := c.checkRepository(ctx, repoPath); err != nil {
		return nil, err
	}

	out, err := c.run(ctx, repoPath, "log", "--max-count=1", "--pretty=format:"+logFormat, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: commit %s", types.ErrNotFound, hash)
	}
	commits := parseCommits(out)
	if len(commits) == 0 {
		return nil, fmt.Errorf("%w: commit %s", types.ErrNotFound, hash)
	}

	commit := commits[0]
	if err := c.enrichCommit(ctx, repoPath, &commit); err != nil {
		c.logger.Warn().Err(err).Str("hash", commit.ShortHash).Msg("failed to enrich commit")
	}
	return &commit, nil
}

// BlameLine is one line of blame output.
type BlameLine struct {
	LineNumber int    `json:"line_number"`
	CommitHash string `json:"commit_hash"`
	Author     string `json:"author"`
	AuthorMail string `json:"author_email"`
	Date       string `json:"date"`
	Content    string `json:"content"`
}

// Blame annotates file with per-line authorship. startLine/endLine
// (1-based, inclusive) restrict the range when both are positive.
func (c *Client) Blame(ctx context.Context, repoPath, file string, startLine, endLine int) ([]BlameLine, error) {
	if err := c.checkRepository(ctx, repoPath); err != nil {
		return nil, err
	}

	args := []string{"blame", "--line-porcelain"}
	if startLine > 0 && endLine >= startLine {
		args = append(args, fmt.Sprintf("-L%d,%d", startLine, endLine))
	}
	args = append(args, "--", file)

	out, err := c.run(ctx, repoPath, args...)
	if err != nil {
		return nil, err
	}
	return parseBlame(out), nil
}

// parseBlame walks line-porcelain records. Each record starts with
// "<hash> <orig-line> <final-line>", carries header fields, and ends with
// a tab-prefixed content line.
func parseBlame(out string) []BlameLine {
	var lines []BlameLine
	current := BlameLine{}
	for _, raw := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(raw, "\t"):
			current.Content = strings.TrimPrefix(raw, "\t")
			lines = append(lines, current)
			current = BlameLine{}
		case strings.HasPrefix(raw, "author "):
			current.Author = strings.TrimPrefix(raw, "author ")
		case strings.HasPrefix(raw, "author-mail "):
			current.AuthorMail = strings.Trim(strings.TrimPrefix(raw, "author-mail "), "<>")
		case strings.HasPrefix(raw, "author-time "):
			if sec, err := strconv.ParseInt(strings.TrimPrefix(raw, "author-time "), 10, 64); err == nil {
				current.Date = time.Unix(sec, 0).UTC().Format(time.RFC3339)
			}
		default:
			if current.CommitHash != "" || raw == "" {
				continue
			}
			fields := strings.Fields(raw)
			if len(fields) >= 3 && len(fields[0]) == 40 {
				current.CommitHash = fields[0]
				fmt.Sscanf(fields[2], "%d", &current.LineNumber)
			}
		}
	}
	return lines
}

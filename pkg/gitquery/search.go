package gitquery

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// maxScanCommits bounds how many recent commits a search considers.
	maxScanCommits = 500

	fieldSep  = "\x1f"
	recordSep = "\x1e"

	logFormat = "%H" + fieldSep + "%h" + fieldSep + "%an" + fieldSep + "%ae" +
		fieldSep + "%aI" + fieldSep + "%s" + fieldSep + "%b" + recordSep
)

// Commit is one structured commit record.
type Commit struct {
	Hash        string    `json:"hash"`
	ShortHash   string    `json:"short_hash"`
	Author      string    `json:"author"`
	AuthorEmail string    `json:"author_email"`
	Date        time.Time `json:"date"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body,omitempty"`
	Score       int       `json:"score,omitempty"`
	Files       []string  `json:"files,omitempty"`
	Insertions  int       `json:"insertions"`
	Deletions   int       `json:"deletions"`
	DiffPreview string    `json:"diff_preview,omitempty"`
}

// SearchOptions filters and shapes a commit search.
type SearchOptions struct {
	RepoPath      string    `json:"repo_path"`
	MaxResults    int       `json:"max_results"`
	Author        string    `json:"author,omitempty"`
	DateAfter     time.Time `json:"date_after,omitempty"`
	DateBefore    time.Time `json:"date_before,omitempty"`
	Branch        string    `json:"branch,omitempty"`
	Tag           string    `json:"tag,omitempty"`
	PathFilter    string    `json:"path_filter,omitempty"`
	IncludeDiffs  bool      `json:"include_diffs"`
	MaxDiffLength int       `json:"max_diff_length,omitempty"`
}

// Search scores recent commits against query and returns the best matches
// with per-commit change stats.
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) ([]Commit, error) {
	if err := c.checkRepository(ctx, opts.RepoPath); err != nil {
		return nil, err
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}

	args := []string{"log", "--pretty=format:" + logFormat, fmt.Sprintf("--max-count=%d", maxScanCommits)}
	if opts.Author != "" {
		args = append(args, "--author="+opts.Author)
	}
	if !opts.DateAfter.IsZero() {
		args = append(args, "--after="+opts.DateAfter.Format(time.RFC3339))
	}
	if !opts.DateBefore.IsZero() {
		args = append(args, "--before="+opts.DateBefore.Format(time.RFC3339))
	}
	switch {
	case opts.Branch != "":
		args = append(args, opts.Branch)
	case opts.Tag != "":
		args = append(args, opts.Tag)
	}
	if opts.PathFilter != "" {
		args = append(args, "--", opts.PathFilter)
	}

	out, err := c.run(ctx, opts.RepoPath, args...)
	if err != nil {
		return nil, err
	}

	commits := parseCommits(out)
	for i := range commits {
		commits[i].Score = scoreCommit(&commits[i], query)
	}
	sort.SliceStable(commits, func(i, j int) bool {
		return commits[i].Score > commits[j].Score
	})
	if len(commits) > opts.MaxResults {
		commits = commits[:opts.MaxResults]
	}

	for i := range commits {
		if err := c.enrichCommit(ctx, opts.RepoPath, &commits[i]); err != nil {
			c.logger.Warn().Err(err).Str("hash", commits[i].ShortHash).Msg("failed to enrich commit")
		}
		if opts.IncludeDiffs {
			preview, err := c.diffPreview(ctx, opts.RepoPath, commits[i].Hash, opts.MaxDiffLength)
			if err == nil {
				commits[i].DiffPreview = preview
			}
		}
	}
	return commits, nil
}

// scoreCommit implements the relevance weights: whole-query subject +10,
// whole-query body +5, then per-token subject +3, body +2, author +1.
func scoreCommit(commit *Commit, query string) int {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0
	}
	subject := strings.ToLower(commit.Subject)
	body := strings.ToLower(commit.Body)
	author := strings.ToLower(commit.Author)

	score := 0
	if strings.Contains(subject, q) {
		score += 10
	}
	if strings.Contains(body, q) {
		score += 5
	}
	for _, token := range strings.Fields(q) {
		if len(token) < 2 {
			continue
		}
		if strings.Contains(subject, token) {
			score += 3
		}
		if strings.Contains(body, token) {
			score += 2
		}
		if strings.Contains(author, token) {
			score += 1
		}
	}
	return score
}

func parseCommits(out string) []Commit {
	var commits []Commit
	for _, record := range strings.Split(out, recordSep) {
		record = strings.TrimLeft(record, "\n")
		if strings.TrimSpace(record) == "" {
			continue
		}
		fields := strings.SplitN(record, fieldSep, 7)
		if len(fields) < 7 {
			continue
		}
		date, _ := time.Parse(time.RFC3339, fields[4])
		commits = append(commits, Commit{
			Hash:        fields[0],
			ShortHash:   fields[1],
			Author:      fields[2],
			AuthorEmail: fields[3],
			Date:        date,
			Subject:     fields[5],
			Body:        strings.TrimSpace(fields[6]),
		})
	}
	return commits
}

// enrichCommit fills the file list and insertion/deletion counts.
func (c *Client) enrichCommit(ctx context.Context, repoPath string, commit *Commit) error {
	out, err := c.run(ctx, repoPath, "show", "--numstat", "--pretty=format:", commit.Hash)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), "\t", 3)
		if len(parts) != 3 {
			continue
		}
		// Binary files report "-" counts.
		if add, err := strconv.Atoi(parts[0]); err == nil {
			commit.Insertions += add
		}
		if del, err := strconv.Atoi(parts[1]); err == nil {
			commit.Deletions += del
		}
		commit.Files = append(commit.Files, parts[2])
	}
	return nil
}

func (c *Client) diffPreview(ctx context.Context, repoPath, hash string, maxLen int) (string, error) {
	out, err := c.run(ctx, repoPath, "show", "--pretty=format:", hash)
	if err != nil {
		return "", err
	}
	if maxLen <= 0 {
		maxLen = 2000
	}
	if len(out) > maxLen {
		out = out[:maxLen] + "\n... diff truncated ..."
	}
	return strings.TrimLeft(out, "\n"), nil
}
